package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// HistoryTool handles the story_history MCP tool. It is only registered
// when the journal is available.
type HistoryTool struct {
	journal *journal.Journal
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(j *journal.Journal) *HistoryTool {
	return &HistoryTool{journal: j}
}

// Definition returns the MCP tool definition for story_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("story_history",
		mcp.WithDescription(
			"Show recorded lifecycle events (completed, archived, blocked, failure, reconciled), "+
				"newest first. Pass story_id for one story's history; omit it for recent "+
				"events across all stories.",
		),
		mcp.WithString("story_id",
			mcp.Description("Story id to show history for. If omitted, shows recent events."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events to return (default: 20)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the story_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stories.NormalizeID(req.GetString("story_id", ""))
	limit := intArg(req, "limit", journal.DefaultLimit)
	if limit < 1 {
		return invalidArgument("'limit' must be at least 1"), nil
	}

	var (
		events []journal.Event
		err    error
	)
	if id != "" {
		events, err = t.journal.History(ctx, id, limit)
	} else {
		events, err = t.journal.Recent(ctx, limit)
	}
	if err != nil {
		return errorResult(err), nil
	}

	out := map[string]any{"events": events}
	if id != "" {
		out["storyId"] = id
	}
	return okResult(out), nil
}
