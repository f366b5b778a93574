package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// DetailsTool handles the story_details MCP tool.
type DetailsTool struct {
	engine Engine
}

// NewDetailsTool creates a DetailsTool.
func NewDetailsTool(engine Engine) *DetailsTool {
	return &DetailsTool{engine: engine}
}

// Definition returns the MCP tool definition for story_details.
func (t *DetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("story_details",
		mcp.WithDescription(
			"Look up one story in the active tiers or the archive. Returns the story, "+
				"where it lives, its attempt count, and whether it is ready to work on. "+
				"An unknown id is not a failure: the result has found=false.",
		),
		mcp.WithString("story_id",
			mcp.Required(),
			mcp.Description("The story id, e.g. US-003"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the story_details tool call.
func (t *DetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := storyIDArg(req)
	if bad != nil {
		return bad, nil
	}

	details, err := t.engine.Details(ctx, id)
	if err != nil {
		if stories.IsNotFound(err) {
			return okResult(map[string]any{
				"found": false,
				"error": classify(err),
			}), nil
		}
		return errorResult(err), nil
	}

	return okResult(struct {
		Found bool `json:"found"`
		*stories.StoryDetails
	}{true, details}), nil
}
