package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// BlockTool handles the story_block MCP tool.
type BlockTool struct {
	engine   Engine
	observer TransitionObserver
}

// NewBlockTool creates a BlockTool. observer may be nil.
func NewBlockTool(engine Engine, observer TransitionObserver) *BlockTool {
	return &BlockTool{engine: engine, observer: observer}
}

// Definition returns the MCP tool definition for story_block.
func (t *BlockTool) Definition() mcp.Tool {
	return mcp.NewTool("story_block",
		mcp.WithDescription(
			"Block a story so story_next stops selecting it. Use after repeated failures "+
				"(see thresholdReached from story_record_failure). Blocking twice is harmless.",
		),
		mcp.WithString("story_id",
			mcp.Required(),
			mcp.Description("The story id to block"),
		),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

// Handle processes the story_block tool call.
func (t *BlockTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := storyIDArg(req)
	if bad != nil {
		return bad, nil
	}

	conf, err := t.engine.Block(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}

	notifyObserver(ctx, t.observer, journal.Event{
		StoryID:   id,
		Kind:      journal.KindBlocked,
		Partition: string(stories.PartitionActive),
		Detail:    conf.Tier,
	})
	return okResult(conf), nil
}
