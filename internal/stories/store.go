package stories

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store defines the persistence interface for story collections.
// Names are resource locations (file paths for FileStore).
type Store interface {
	Load(name string) (*Collection, error)
	TryLoad(name string) (*Collection, bool, error)
	Save(name string, c *Collection) error
}

// FileStore implements Store with JSON files on an afero filesystem.
type FileStore struct {
	fs afero.Fs
}

// NewFileStore creates a store backed by the OS filesystem.
func NewFileStore() *FileStore {
	return NewFileStoreFs(afero.NewOsFs())
}

// NewFileStoreFs creates a store backed by the given filesystem.
func NewFileStoreFs(fs afero.Fs) *FileStore {
	return &FileStore{fs: fs}
}

// Fs returns the filesystem the store reads and writes.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// rawCollection distinguishes a missing "stories" key from an empty list.
type rawCollection struct {
	Project     string   `json:"project"`
	Description string   `json:"description"`
	Stories     *[]Story `json:"stories"`
}

// Load reads and validates the collection stored at name.
func (s *FileStore) Load(name string) (*Collection, error) {
	c, ok, err := s.TryLoad(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Resource: name}
	}
	return c, nil
}

// TryLoad is Load for resources that may legitimately not exist yet.
// A missing resource returns (nil, false, nil).
func (s *FileStore) TryLoad(name string) (*Collection, bool, error) {
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading stories file %s: %w", name, err)
	}

	c, err := decode(data)
	if err != nil {
		return nil, false, &MalformedError{Resource: name, Err: err}
	}
	return c, true, nil
}

func decode(data []byte) (*Collection, error) {
	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Stories == nil {
		return nil, errors.New(`missing "stories" list`)
	}

	c := &Collection{
		Project:     raw.Project,
		Description: raw.Description,
		Stories:     *raw.Stories,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.normalize()
	return c, nil
}

// Save replaces the collection at name atomically: the new content goes
// to a temp file beside the target and is renamed over it. On failure the
// temp file is removed and the previous content is left untouched.
func (s *FileStore) Save(name string, c *Collection) error {
	c.normalize()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return &PersistError{Resource: name, Err: fmt.Errorf("marshaling collection: %w", err)}
	}
	data = append(data, '\n')

	if err := writeFileAtomic(s.fs, name, data); err != nil {
		return &PersistError{Resource: name, Err: err}
	}
	return nil
}

// writeFileAtomic writes data to path using temp file + rename.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Same directory as the target so the rename stays on one filesystem.
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	committed = true
	return nil
}
