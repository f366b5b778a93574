package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// NextTool handles the story_next MCP tool.
type NextTool struct {
	engine Engine
}

// NewNextTool creates a NextTool.
func NewNextTool(engine Engine) *NextTool {
	return &NextTool{engine: engine}
}

// Definition returns the MCP tool definition for story_next.
func (t *NextTool) Definition() mcp.Tool {
	return mcp.NewTool("story_next",
		mcp.WithDescription(
			"Select the next story to work on: the highest-priority story that is not "+
				"completed, not blocked, and whose dependencies are all completed. "+
				"Tiers are exhausted in order. When nothing is available, 'reason' says why "+
				"(no_storage, waiting_on_dependencies, all_complete_or_blocked) and "+
				"'diagnostics' lists what is waiting on what.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the story_next tool call.
func (t *NextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := t.engine.FindNext(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return okResult(struct {
		*stories.Selection
		FailureThreshold int `json:"failureThreshold"`
	}{sel, t.engine.FailureThreshold()}), nil
}
