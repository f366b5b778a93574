package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	activePath  = "/project/stories.json"
	archivePath = "/project/stories-archive.json"
)

// --- Test helpers ---

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// decode parses a tool result's JSON document.
func decode(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &doc), resultText(r))
	return doc
}

// errorKind returns error.kind of a failure envelope.
func errorKind(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, r.IsError, resultText(r))
	doc := decode(t, r)
	assert.Equal(t, false, doc["ok"])
	e, ok := doc["error"].(map[string]any)
	require.True(t, ok, "missing error member")
	kind, _ := e["kind"].(string)
	return kind
}

func newStory(id string, prio stories.Priority, deps ...string) stories.Story {
	if deps == nil {
		deps = []string{}
	}
	return stories.Story{
		ID:                 id,
		Title:              "Story " + id,
		Priority:           prio,
		AcceptanceCriteria: []string{},
		Dependencies:       deps,
	}
}

// newTestEngine seeds an in-memory filesystem. A nil slice leaves that
// file absent.
func newTestEngine(t *testing.T, active, archive []stories.Story, opts ...stories.Option) (*stories.Engine, *stories.FileStore) {
	t.Helper()
	store := stories.NewFileStoreFs(afero.NewMemMapFs())
	if active != nil {
		require.NoError(t, store.Save(activePath, &stories.Collection{Project: "demo", Stories: active}))
	}
	if archive != nil {
		require.NoError(t, store.Save(archivePath, &stories.Collection{Project: "demo", Stories: archive}))
	}
	return stories.NewEngine(store, stories.SingleFile(activePath, archivePath), opts...), store
}

// recorder is a TransitionObserver that keeps events in memory.
type recorder struct {
	events []journal.Event
}

func (r *recorder) OnTransition(_ context.Context, e journal.Event) {
	r.events = append(r.events, e)
}

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(journal.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

// --- Definitions ---

func TestDefinitions(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)
	j := newTestJournal(t)

	tests := []struct {
		name string
		def  mcp.Tool
	}{
		{"story_next", NewNextTool(engine).Definition()},
		{"story_details", NewDetailsTool(engine).Definition()},
		{"story_complete", NewCompleteTool(engine, nil).Definition()},
		{"story_block", NewBlockTool(engine, nil).Definition()},
		{"story_record_failure", NewRecordFailureTool(engine, nil).Definition()},
		{"stories_status", NewStatusTool(engine).Definition()},
		{"stories_reconcile", NewReconcileTool(engine, nil).Definition()},
		{"story_history", NewHistoryTool(j).Definition()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.def.Name)
			assert.NotEmpty(t, tt.def.Description)
		})
	}
}

// --- story_next ---

func TestNextTool_PicksHighestPriority(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{
		newStory("US-001", stories.PriorityLow),
		newStory("US-002", stories.PriorityCritical),
	}, nil)

	res, err := NewNextTool(engine).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	doc := decode(t, res)
	assert.Equal(t, true, doc["ok"])
	assert.Equal(t, true, doc["available"])
	assert.Equal(t, "active", doc["tier"])
	assert.EqualValues(t, stories.DefaultFailureThreshold, doc["failureThreshold"])
	s := doc["story"].(map[string]any)
	assert.Equal(t, "US-002", s["id"])
}

func TestNextTool_NoStorage(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)

	res, err := NewNextTool(engine).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)

	doc := decode(t, res)
	assert.Equal(t, false, doc["available"])
	assert.Equal(t, "no_storage", doc["reason"])
}

func TestNextTool_WaitingOnDependencies(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{
		newStory("US-002", stories.PriorityHigh, "US-404"),
	}, nil)

	res, err := NewNextTool(engine).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)

	doc := decode(t, res)
	assert.Equal(t, "waiting_on_dependencies", doc["reason"])
	diag := doc["diagnostics"].(map[string]any)
	assert.EqualValues(t, 1, diag["waitingStories"])
}

func TestNextTool_MalformedFile(t *testing.T) {
	engine, store := newTestEngine(t, nil, nil)
	require.NoError(t, afero.WriteFile(store.Fs(), activePath, []byte(`{"project": "x"}`), 0o644))

	res, err := NewNextTool(engine).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Equal(t, KindMalformed, errorKind(t, res))
}

// --- story_details ---

func TestDetailsTool_Found(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{
		newStory("US-002", stories.PriorityHigh, "US-001"),
	}, []stories.Story{
		{ID: "US-001", Title: "done", Priority: stories.PriorityHigh, Completed: true},
	})

	res, err := NewDetailsTool(engine).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-002",
	}))
	require.NoError(t, err)

	doc := decode(t, res)
	assert.Equal(t, true, doc["found"])
	assert.Equal(t, "active", doc["partition"])
	assert.Equal(t, true, doc["ready"])
}

func TestDetailsTool_NotFoundIsNotAFailure(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil)

	res, err := NewDetailsTool(engine).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-999",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	doc := decode(t, res)
	assert.Equal(t, false, doc["found"])
	e := doc["error"].(map[string]any)
	assert.Equal(t, KindNotFound, e["kind"])
	assert.Equal(t, "US-999", e["storyId"])
}

func TestDetailsTool_MissingID(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)

	res, err := NewDetailsTool(engine).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Equal(t, KindInvalidArgument, errorKind(t, res))
}

// --- story_complete ---

func TestCompleteTool_ArchivesByDefault(t *testing.T) {
	engine, store := newTestEngine(t, []stories.Story{
		newStory("US-001", stories.PriorityHigh),
		newStory("US-002", stories.PriorityLow),
	}, nil)
	rec := &recorder{}

	res, err := NewCompleteTool(engine, rec).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-001",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	doc := decode(t, res)
	assert.Equal(t, "archived", doc["action"])
	assert.Equal(t, archivePath, doc["destination"])

	archive, err := store.Load(archivePath)
	require.NoError(t, err)
	require.Len(t, archive.Stories, 1)
	assert.True(t, archive.Stories[0].Completed)

	active, err := store.Load(activePath)
	require.NoError(t, err)
	assert.Len(t, active.Stories, 1)

	require.Len(t, rec.events, 1)
	assert.Equal(t, journal.KindArchived, rec.events[0].Kind)
	assert.Equal(t, "US-001", rec.events[0].StoryID)
}

func TestCompleteTool_RetryAfterArchiveRecordsNothing(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{}, []stories.Story{
		{ID: "US-001", Title: "done", Completed: true, CompletedAt: "2026-01-01T00:00:00Z"},
	})
	rec := &recorder{}

	res, err := NewCompleteTool(engine, rec).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-001",
	}))
	require.NoError(t, err)

	doc := decode(t, res)
	assert.Equal(t, true, doc["alreadyArchived"])
	assert.Empty(t, rec.events)
}

func TestCompleteTool_InPlace(t *testing.T) {
	engine, store := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil)
	rec := &recorder{}

	res, err := NewCompleteTool(engine, rec).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-001",
		"archive":  false,
	}))
	require.NoError(t, err)

	doc := decode(t, res)
	assert.Equal(t, "completed", doc["action"])

	active, err := store.Load(activePath)
	require.NoError(t, err)
	assert.True(t, active.Stories[0].Completed)

	_, found, err := store.TryLoad(archivePath)
	require.NoError(t, err)
	assert.False(t, found, "in-place completion never touches the archive")

	require.Len(t, rec.events, 1)
	assert.Equal(t, journal.KindCompleted, rec.events[0].Kind)
}

func TestCompleteTool_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil)
	rec := &recorder{}

	res, err := NewCompleteTool(engine, rec).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-404",
	}))
	require.NoError(t, err)
	assert.Equal(t, KindNotFound, errorKind(t, res))
	assert.Empty(t, rec.events)
}

// --- story_block ---

func TestBlockTool(t *testing.T) {
	engine, store := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil)
	rec := &recorder{}

	res, err := NewBlockTool(engine, rec).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-001",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	active, err := store.Load(activePath)
	require.NoError(t, err)
	assert.True(t, active.Stories[0].Blocked)
	assert.False(t, active.Stories[0].Completed)

	require.Len(t, rec.events, 1)
	assert.Equal(t, journal.KindBlocked, rec.events[0].Kind)
}

func TestBlockTool_MatchesDecomposedID(t *testing.T) {
	engine, store := newTestEngine(t, []stories.Story{newStory("caf\u00e9", stories.PriorityHigh)}, nil)
	rec := &recorder{}

	res, err := NewBlockTool(engine, rec).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "cafe\u0301",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	active, err := store.Load(activePath)
	require.NoError(t, err)
	assert.True(t, active.Stories[0].Blocked)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "caf\u00e9", rec.events[0].StoryID, "journal keys use the composed form")
}

// --- story_record_failure ---

func TestRecordFailureTool_ThresholdSuggestsBlock(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil,
		stories.WithFailureThreshold(2))
	rec := &recorder{}
	tool := NewRecordFailureTool(engine, rec)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id":    "US-001",
		"attempt_ref": "logs/run-1.txt",
	}))
	require.NoError(t, err)
	doc := decode(t, res)
	assert.EqualValues(t, 1, doc["attemptCount"])
	assert.Equal(t, false, doc["thresholdReached"])
	assert.NotContains(t, doc, "suggestedAction")

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id":    "US-001",
		"attempt_ref": "logs/run-2.txt",
	}))
	require.NoError(t, err)
	doc = decode(t, res)
	assert.EqualValues(t, 2, doc["attemptCount"])
	assert.Equal(t, true, doc["thresholdReached"])
	assert.Equal(t, "story_block", doc["suggestedAction"])

	require.Len(t, rec.events, 2)
	assert.Equal(t, "logs/run-2.txt", rec.events[1].Detail)
}

func TestRecordFailureTool_EmptyRef(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil)

	res, err := NewRecordFailureTool(engine, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"story_id": "US-001",
	}))
	require.NoError(t, err)
	assert.Equal(t, KindInvalidArgument, errorKind(t, res))
}

// --- stories_status ---

func TestStatusTool(t *testing.T) {
	done := newStory("US-001", stories.PriorityHigh)
	done.Completed = true
	done2 := newStory("US-002", stories.PriorityHigh)
	done2.Completed = true
	blocked := newStory("US-003", stories.PriorityHigh)
	blocked.Blocked = true
	engine, _ := newTestEngine(t, []stories.Story{done, done2, blocked}, nil)

	res, err := NewStatusTool(engine).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)

	doc := decode(t, res)
	assert.Equal(t, false, doc["complete"])
	assert.EqualValues(t, 3, doc["totalStories"])
	assert.EqualValues(t, 2, doc["completedStories"])
	assert.EqualValues(t, 1, doc["blockedStories"])
	assert.EqualValues(t, 1, doc["remainingStories"])
}

// --- stories_reconcile ---

func TestReconcileTool(t *testing.T) {
	engine, store := newTestEngine(t, []stories.Story{
		newStory("US-001", stories.PriorityHigh),
		newStory("US-002", stories.PriorityHigh),
	}, []stories.Story{
		{ID: "US-001", Title: "done", Completed: true},
	})
	rec := &recorder{}

	res, err := NewReconcileTool(engine, rec).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)

	doc := decode(t, res)
	removed := doc["removed"].([]any)
	require.Len(t, removed, 1)

	active, err := store.Load(activePath)
	require.NoError(t, err)
	require.Len(t, active.Stories, 1)
	assert.Equal(t, "US-002", active.Stories[0].ID)

	require.Len(t, rec.events, 1)
	assert.Equal(t, journal.KindReconciled, rec.events[0].Kind)
}

// --- story_history + JournalBridge ---

func TestHistoryTool_WithBridge(t *testing.T) {
	engine, _ := newTestEngine(t, []stories.Story{newStory("US-001", stories.PriorityHigh)}, nil)
	j := newTestJournal(t)
	bridge := NewJournalBridge(j, zerolog.Nop())
	ctx := context.Background()

	_, err := NewRecordFailureTool(engine, bridge).Handle(ctx, makeReq(map[string]interface{}{
		"story_id": "US-001", "attempt_ref": "run-1",
	}))
	require.NoError(t, err)
	_, err = NewBlockTool(engine, bridge).Handle(ctx, makeReq(map[string]interface{}{
		"story_id": "US-001",
	}))
	require.NoError(t, err)

	res, err := NewHistoryTool(j).Handle(ctx, makeReq(map[string]interface{}{
		"story_id": "US-001",
	}))
	require.NoError(t, err)

	doc := decode(t, res)
	events := doc["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "blocked", events[0].(map[string]any)["kind"])
	assert.Equal(t, "failure", events[1].(map[string]any)["kind"])

	res, err = NewHistoryTool(j).Handle(ctx, makeReq(map[string]interface{}{"limit": float64(1)}))
	require.NoError(t, err)
	doc = decode(t, res)
	assert.Len(t, doc["events"].([]any), 1)
	assert.NotContains(t, doc, "storyId")
}

func TestHistoryTool_InvalidLimit(t *testing.T) {
	res, err := NewHistoryTool(newTestJournal(t)).Handle(context.Background(), makeReq(map[string]interface{}{
		"limit": float64(0),
	}))
	require.NoError(t, err)
	assert.Equal(t, KindInvalidArgument, errorKind(t, res))
}

func TestJournalBridge_NilSafe(t *testing.T) {
	assert.Nil(t, NewJournalBridge(nil, zerolog.Nop()))

	var b *JournalBridge
	assert.NotPanics(t, func() {
		b.OnTransition(context.Background(), journal.Event{StoryID: "US-001", Kind: journal.KindBlocked})
	})
	assert.NotPanics(t, func() {
		notifyObserver(context.Background(), nil, journal.Event{})
	})
}

// --- error classification ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", &stories.NotFoundError{StoryID: "x", Resource: "r"}, KindNotFound},
		{"malformed", &stories.MalformedError{Resource: "r", Err: assert.AnError}, KindMalformed},
		{"persist", &stories.PersistError{Resource: "r", Err: assert.AnError}, KindPersist},
		{"empty ref", stories.ErrEmptyAttemptRef, KindInvalidArgument},
		{"other", assert.AnError, KindInternal},
		{"cancelled", context.Canceled, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err).Kind)
		})
	}
}

func TestIntAndBoolArgs(t *testing.T) {
	req := makeReq(map[string]interface{}{"n": float64(7), "b": false, "s": "x"})

	assert.Equal(t, 7, intArg(req, "n", 1))
	assert.Equal(t, 1, intArg(req, "s", 1))
	assert.False(t, boolArg(req, "b", true))
	assert.True(t, boolArg(req, "missing", true))
}
