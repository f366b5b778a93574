package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the story-status MCP prompt.
// It instructs the AI to read and present the current loop state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("story-status",
		mcp.WithPromptDescription(
			"Check how far the story loop has got: completed, blocked and remaining "+
				"stories, and what is waiting on what.",
		),
	)
}

// Handle processes the story-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Story loop status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `stories_status` and `story_next` to check my stories.\n\n" +
						"Then:\n" +
						"1. Show completed, blocked and remaining counts\n" +
						"2. List blocked stories and their attempt counts (use `story_details`)\n" +
						"3. If nothing is available, explain which dependencies are holding stories back\n" +
						"4. Tell me which story will be picked next",
				),
			},
		},
	}, nil
}
