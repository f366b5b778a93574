package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// CompleteTool handles the story_complete MCP tool.
type CompleteTool struct {
	engine   Engine
	observer TransitionObserver
}

// NewCompleteTool creates a CompleteTool. observer may be nil.
func NewCompleteTool(engine Engine, observer TransitionObserver) *CompleteTool {
	return &CompleteTool{engine: engine, observer: observer}
}

// Definition returns the MCP tool definition for story_complete.
func (t *CompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("story_complete",
		mcp.WithDescription(
			"Mark a story completed. By default the story is moved to the archive; "+
				"retrying after an interrupted call is safe and never archives a second copy. "+
				"Set archive=false to mark it completed where it is.",
		),
		mcp.WithString("story_id",
			mcp.Required(),
			mcp.Description("The story id to complete"),
		),
		mcp.WithBoolean("archive",
			mcp.Description("Move the story to the archive (default: true)"),
		),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

// Handle processes the story_complete tool call.
func (t *CompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := storyIDArg(req)
	if bad != nil {
		return bad, nil
	}

	if !boolArg(req, "archive", true) {
		conf, err := t.engine.CompleteInPlace(ctx, id)
		if err != nil {
			return errorResult(err), nil
		}
		notifyObserver(ctx, t.observer, journal.Event{
			StoryID:   id,
			Kind:      journal.KindCompleted,
			Partition: string(stories.PartitionActive),
			Detail:    conf.Tier,
		})
		return okResult(conf), nil
	}

	conf, err := t.engine.CompleteAndArchive(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}

	switch {
	case !conf.AlreadyArchived:
		notifyObserver(ctx, t.observer, journal.Event{
			StoryID:   id,
			Kind:      journal.KindArchived,
			Partition: string(stories.PartitionArchive),
			Detail:    conf.Tier,
		})
	case conf.Tier != "":
		// A retry that only removed the leftover active copy.
		notifyObserver(ctx, t.observer, journal.Event{
			StoryID:   id,
			Kind:      journal.KindReconciled,
			Partition: string(stories.PartitionActive),
			Detail:    conf.Tier,
		})
	}
	return okResult(conf), nil
}
