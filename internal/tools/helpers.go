// Package tools implements the MCP tool handlers for the story loop.
//
// Each tool is a struct that receives its dependencies through a
// constructor, describes itself with Definition() and serves calls with
// Handle(). Results are JSON documents: {"ok":true,...} on success and
// {"ok":false,"error":{...}} on failure, so agents can branch on fields
// instead of parsing prose.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// Error kinds reported in the failure envelope.
const (
	KindNotFound        = "not_found"
	KindMalformed       = "malformed"
	KindPersist         = "persist"
	KindInvalidArgument = "invalid_argument"
	KindInternal        = "internal"
)

// Engine is the story engine surface the tools depend on.
type Engine interface {
	FindNext(ctx context.Context) (*stories.Selection, error)
	Details(ctx context.Context, id string) (*stories.StoryDetails, error)
	CompleteAndArchive(ctx context.Context, id string) (*stories.Confirmation, error)
	CompleteInPlace(ctx context.Context, id string) (*stories.Confirmation, error)
	Block(ctx context.Context, id string) (*stories.Confirmation, error)
	RecordFailure(ctx context.Context, id, ref string) (*stories.FailureResult, error)
	IsComplete(ctx context.Context) (*stories.Progress, error)
	Reconcile(ctx context.Context) (*stories.ReconcileResult, error)
	FailureThreshold() int
}

// ToolError is the "error" member of a failure envelope.
type ToolError struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Resource string   `json:"resource,omitempty"`
	StoryID  string   `json:"storyId,omitempty"`
	Written  []string `json:"written,omitempty"`
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// storyIDArg returns the required story_id argument, or a ready-made
// error result when it is missing.
func storyIDArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id := stories.NormalizeID(req.GetString("story_id", ""))
	if id == "" {
		return "", invalidArgument("'story_id' is required")
	}
	return id, nil
}

// okResult merges fields into {"ok": true}. payload must marshal to a
// JSON object.
func okResult(payload any) *mcp.CallToolResult {
	doc := map[string]any{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return internalError(fmt.Errorf("encoding result: %w", err))
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return internalError(fmt.Errorf("encoding result: %w", err))
		}
	}
	doc["ok"] = true
	return encode(doc, false)
}

// errorResult maps an engine error to a failure envelope.
func errorResult(err error) *mcp.CallToolResult {
	return encode(map[string]any{"ok": false, "error": classify(err)}, true)
}

func invalidArgument(msg string) *mcp.CallToolResult {
	return encode(map[string]any{
		"ok":    false,
		"error": ToolError{Kind: KindInvalidArgument, Message: msg},
	}, true)
}

func internalError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(`{"ok":false,"error":{"kind":%q,"message":%q}}`, KindInternal, err.Error()))
}

func encode(doc map[string]any, isError bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return internalError(err)
	}
	if isError {
		return mcp.NewToolResultError(string(data))
	}
	return mcp.NewToolResultText(string(data))
}

// classify turns an error into the envelope's error member.
func classify(err error) ToolError {
	te := ToolError{Kind: KindInternal, Message: err.Error()}

	var (
		nf *stories.NotFoundError
		me *stories.MalformedError
		pe *stories.PersistError
	)
	switch {
	case errors.As(err, &nf):
		te.Kind = KindNotFound
		te.StoryID = nf.StoryID
		te.Resource = nf.Resource
	case errors.As(err, &me):
		te.Kind = KindMalformed
		te.Resource = me.Resource
	case errors.As(err, &pe):
		te.Kind = KindPersist
		te.Resource = pe.Resource
		te.Written = pe.Written
	case errors.Is(err, stories.ErrEmptyAttemptRef):
		te.Kind = KindInvalidArgument
	}
	return te
}
