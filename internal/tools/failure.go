package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// RecordFailureTool handles the story_record_failure MCP tool.
type RecordFailureTool struct {
	engine   Engine
	observer TransitionObserver
}

// NewRecordFailureTool creates a RecordFailureTool. observer may be nil.
func NewRecordFailureTool(engine Engine, observer TransitionObserver) *RecordFailureTool {
	return &RecordFailureTool{engine: engine, observer: observer}
}

// Definition returns the MCP tool definition for story_record_failure.
func (t *RecordFailureTool) Definition() mcp.Tool {
	return mcp.NewTool("story_record_failure",
		mcp.WithDescription(
			"Record a failed attempt at a story. attempt_ref should point at whatever "+
				"describes the attempt (a log file, a run id). Returns the new attempt count "+
				"and whether the failure threshold has been reached; blocking is up to you.",
		),
		mcp.WithString("story_id",
			mcp.Required(),
			mcp.Description("The story id that failed"),
		),
		mcp.WithString("attempt_ref",
			mcp.Required(),
			mcp.Description("Reference to the failed attempt, e.g. a log path or run id"),
		),
	)
}

// Handle processes the story_record_failure tool call.
func (t *RecordFailureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := storyIDArg(req)
	if bad != nil {
		return bad, nil
	}
	ref := req.GetString("attempt_ref", "")

	res, err := t.engine.RecordFailure(ctx, id, ref)
	if err != nil {
		return errorResult(err), nil
	}

	notifyObserver(ctx, t.observer, journal.Event{
		StoryID:   id,
		Kind:      journal.KindFailure,
		Partition: string(stories.PartitionActive),
		Detail:    ref,
	})

	out := struct {
		*stories.FailureResult
		SuggestedAction string `json:"suggestedAction,omitempty"`
	}{FailureResult: res}
	if res.ThresholdReached {
		out.SuggestedAction = "story_block"
	}
	return okResult(out), nil
}
