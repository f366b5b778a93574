// Package prompts implements MCP prompt handlers for the story loop.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

// LoopPrompt handles the story-loop MCP prompt.
// It instructs the AI to work through stories until none are left.
type LoopPrompt struct {
	threshold int
}

// NewLoopPrompt creates a LoopPrompt. threshold is the default failure
// threshold used when the caller does not pass one.
func NewLoopPrompt(threshold int) *LoopPrompt {
	return &LoopPrompt{threshold: threshold}
}

// Definition returns the MCP prompt definition for registration.
func (p *LoopPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("story-loop",
		mcp.WithPromptDescription(
			"Work through the project's stories one at a time: pick the next ready story, "+
				"implement it, then complete it or record the failure.",
		),
		mcp.WithArgument("threshold",
			mcp.ArgumentDescription(
				fmt.Sprintf("Failed attempts after which a story is blocked. Default: %d", p.threshold),
			),
		),
	)
}

// Handle processes the story-loop prompt request.
func (p *LoopPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	threshold := p.threshold
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["threshold"]; ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("threshold must be a positive integer, got %q", v)
			}
			threshold = n
		}
	}

	return &mcp.GetPromptResult{
		Description: "Story loop",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Work through my stories until none are left.\n\n"+
						"Repeat:\n"+
						"1. Run `story_next`. If `available` is false, stop and report `reason` "+
						"and the waiting stories from `diagnostics`.\n"+
						"2. Implement the selected story against its acceptance criteria. "+
						"Read `previousAttempts` first if there are any.\n"+
						"3. If it works, run `story_complete` with its id.\n"+
						"4. If it fails, run `story_record_failure` with its id and a reference to "+
						"what you tried (a log path or run id).\n"+
						"5. When a story has failed %d times, run `story_block` on it and move on.\n\n"+
						"Finish with `stories_status` and summarise what was completed and what is blocked.",
					threshold,
				)),
			},
		},
	}, nil
}
