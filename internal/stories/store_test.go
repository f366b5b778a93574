package stories

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Load_NotFound(t *testing.T) {
	store := NewFileStoreFs(afero.NewMemMapFs())

	_, err := store.Load("/nope/stories.json")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "/nope/stories.json")
}

func TestFileStore_TryLoad_Absent(t *testing.T) {
	store := NewFileStoreFs(afero.NewMemMapFs())

	c, ok, err := store.TryLoad("/nope/archive.json")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, c)
}

func TestFileStore_Load_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"missing stories key", `{"foo": []}`, `missing "stories"`},
		{"null stories", `{"stories": null}`, `missing "stories"`},
		{"invalid syntax", `{"stories": [`, "unexpected end"},
		{"stories not a list", `{"stories": {}}`, "cannot unmarshal"},
		{"empty file", ``, "unexpected end"},
		{"story without id", `{"stories": [{"title": "x"}]}`, "has no id"},
		{"duplicate ids", `{"stories": [{"id": "a"}, {"id": "a"}]}`, "duplicate story id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/p/stories.json", []byte(tt.content), 0o644))
			store := NewFileStoreFs(fs)

			_, err := store.Load("/p/stories.json")
			require.Error(t, err)
			assert.True(t, IsMalformed(err), "want MalformedError, got %T", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Contains(t, err.Error(), "/p/stories.json")
		})
	}
}

func TestFileStore_Load_EmptyListIsValid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/stories.json", []byte(`{"stories": []}`), 0o644))

	c, err := NewFileStoreFs(fs).Load("/p/stories.json")
	require.NoError(t, err)
	assert.Empty(t, c.Stories)
}

func TestFileStore_Load_NormalizesListFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `{"stories": [{"id": "s1", "title": "t", "priority": "high", "completed": false}]}`
	require.NoError(t, afero.WriteFile(fs, "/p/stories.json", []byte(content), 0o644))

	c, err := NewFileStoreFs(fs).Load("/p/stories.json")
	require.NoError(t, err)
	require.Len(t, c.Stories, 1)
	assert.NotNil(t, c.Stories[0].Dependencies)
	assert.NotNil(t, c.Stories[0].AcceptanceCriteria)
	assert.Nil(t, c.Stories[0].Attempts)
}

func TestFileStore_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `{
  "project": "demo",
  "description": "demo project",
  "stories": [
    {"id": "s2", "title": "Second", "description": "d2", "priority": "critical", "completed": false,
     "acceptanceCriteria": ["a", "b"], "dependencies": ["s1"], "attempts": ["f/1.md"]},
    {"id": "s1", "title": "First", "description": "d1", "priority": "low", "completed": true,
     "completedAt": "2026-01-02T03:04:05Z", "blocked": true, "blockedAt": "2026-01-01T00:00:00Z",
     "acceptanceCriteria": [], "dependencies": []}
  ]
}`
	require.NoError(t, afero.WriteFile(fs, "/p/stories.json", []byte(content), 0o644))
	store := NewFileStoreFs(fs)

	first, err := store.Load("/p/stories.json")
	require.NoError(t, err)
	require.NoError(t, store.Save("/p/stories.json", first))

	second, err := store.Load("/p/stories.json")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var before, after map[string]any
	require.NoError(t, json.Unmarshal([]byte(content), &before))
	data, err := afero.ReadFile(fs, "/p/stories.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &after))
	assert.Equal(t, before, after)
}

func TestFileStore_Save_CreatesDirectoriesAndLeavesNoTemp(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStoreFs(fs)

	err := store.Save("/deep/nested/archive.json", &Collection{Stories: []Story{story("a", PriorityHigh)}})
	require.NoError(t, err)

	entries, err := afero.ReadDir(fs, "/deep/nested")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.json", entries[0].Name())
}

func TestFileStore_Save_FailureKeepsPreviousContent(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, NewFileStoreFs(base).Save("/p/stories.json", &Collection{Stories: []Story{story("a", PriorityHigh)}}))

	store := NewFileStoreFs(failingRenameFs{Fs: base, target: "/p/stories.json"})
	err := store.Save("/p/stories.json", &Collection{Stories: []Story{}})
	require.Error(t, err)
	assert.True(t, IsPersist(err))
	assert.Contains(t, err.Error(), "/p/stories.json")

	c, err := NewFileStoreFs(base).Load("/p/stories.json")
	require.NoError(t, err)
	require.Len(t, c.Stories, 1, "previous content must survive a failed save")

	entries, err := afero.ReadDir(base, "/p")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestFileStore_Save_ReadOnlyFs(t *testing.T) {
	store := NewFileStoreFs(afero.NewReadOnlyFs(afero.NewMemMapFs()))

	err := store.Save("/p/stories.json", &Collection{})
	require.Error(t, err)
	assert.True(t, IsPersist(err))
}

func TestFileStore_KeepsUnknownStoryFields(t *testing.T) {
	fixedNow(t, testTime)
	store := NewFileStoreFs(afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(store.Fs(), testActive, []byte(`{
  "stories": [
    {"id": "a", "title": "A", "priority": "high", "notes": "ask design", "meta": {"points": 3}, "dependencies": []}
  ]
}`), 0o644))
	engine := NewEngine(store, SingleFile(testActive, testArchive))

	_, err := engine.Block(context.Background(), "a")
	require.NoError(t, err)
	_, err = engine.RecordFailure(context.Background(), "a", "run-1")
	require.NoError(t, err)

	data, err := afero.ReadFile(store.Fs(), testActive)
	require.NoError(t, err)
	var raw struct {
		Stories []map[string]any `json:"stories"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Stories, 1)
	s := raw.Stories[0]
	assert.Equal(t, "ask design", s["notes"])
	assert.Equal(t, map[string]any{"points": float64(3)}, s["meta"])
	assert.Equal(t, true, s["blocked"])
	assert.Equal(t, []any{"run-1"}, s["attempts"])
}

func TestStory_ExtraNeverShadowsKnownFields(t *testing.T) {
	var s Story
	require.NoError(t, json.Unmarshal([]byte(`{"id": "a", "Title": "T", "x": null}`), &s))
	assert.Equal(t, "T", s.Title)
	assert.Equal(t, map[string]json.RawMessage{"x": json.RawMessage("null")}, s.Extra)

	s.Extra["id"] = json.RawMessage(`"other"`)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "a", back["id"])
	assert.Contains(t, back, "x")
}
