package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// ReconcileTool handles the stories_reconcile MCP tool.
type ReconcileTool struct {
	engine   Engine
	observer TransitionObserver
}

// NewReconcileTool creates a ReconcileTool. observer may be nil.
func NewReconcileTool(engine Engine, observer TransitionObserver) *ReconcileTool {
	return &ReconcileTool{engine: engine, observer: observer}
}

// Definition returns the MCP tool definition for stories_reconcile.
func (t *ReconcileTool) Definition() mcp.Tool {
	return mcp.NewTool("stories_reconcile",
		mcp.WithDescription(
			"Remove from the active tiers any story that is already completed in the "+
				"archive. Only needed after an interrupted story_complete left a duplicate.",
		),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

// Handle processes the stories_reconcile tool call.
func (t *ReconcileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.Reconcile(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	for _, r := range res.Removed {
		notifyObserver(ctx, t.observer, journal.Event{
			StoryID:   r.ID,
			Kind:      journal.KindReconciled,
			Partition: string(stories.PartitionActive),
			Detail:    r.Tier,
		})
	}
	return okResult(res), nil
}
