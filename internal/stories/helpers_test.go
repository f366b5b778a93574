package stories

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	testActive  = "/project/stories.json"
	testArchive = "/project/stories-archive.json"
)

// fixedNow pins timeNow for the duration of the test.
func fixedNow(t *testing.T, ts time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return ts }
	t.Cleanup(func() { timeNow = prev })
}

// story builds a minimal incomplete story.
func story(id string, prio Priority, deps ...string) Story {
	if deps == nil {
		deps = []string{}
	}
	return Story{
		ID:                 id,
		Title:              "Story " + id,
		Priority:           prio,
		AcceptanceCriteria: []string{},
		Dependencies:       deps,
	}
}

// newTestEngine seeds an in-memory filesystem with the active collection
// (and the archive when non-nil) and returns an engine over it.
func newTestEngine(t *testing.T, active []Story, archive []Story) (*Engine, *FileStore) {
	t.Helper()
	store := NewFileStoreFs(afero.NewMemMapFs())
	if active != nil {
		require.NoError(t, store.Save(testActive, &Collection{Project: "demo", Stories: active}))
	}
	if archive != nil {
		require.NoError(t, store.Save(testArchive, &Collection{Project: "demo", Stories: archive}))
	}
	return NewEngine(store, SingleFile(testActive, testArchive)), store
}

// failingRenameFs fails renames onto one target path.
type failingRenameFs struct {
	afero.Fs
	target string
}

func (f failingRenameFs) Rename(oldname, newname string) error {
	if newname == f.target {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	return f.Fs.Rename(oldname, newname)
}
