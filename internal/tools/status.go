package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusTool handles the stories_status MCP tool.
type StatusTool struct {
	engine Engine
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(engine Engine) *StatusTool {
	return &StatusTool{engine: engine}
}

// Definition returns the MCP tool definition for stories_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("stories_status",
		mcp.WithDescription(
			"Report whether every active story is completed, with total, completed, "+
				"blocked and remaining counts. Blocked stories count as remaining.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the stories_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	progress, err := t.engine.IsComplete(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return okResult(progress), nil
}
