// Package journal keeps an append-only history of story lifecycle
// transitions in SQLite.
//
// The stories files stay the source of truth; the journal only answers
// "what happened to this story and when". It is optional: callers treat a
// failure to open it as "run without history".
package journal

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var timeNow = time.Now

// FileName is the database file inside the data directory.
const FileName = "journal.db"

// DefaultLimit caps History and Recent when no limit is given.
const DefaultLimit = 20

// Kind is the type of a recorded transition.
type Kind string

const (
	KindCompleted  Kind = "completed"
	KindArchived   Kind = "archived"
	KindBlocked    Kind = "blocked"
	KindFailure    Kind = "failure"
	KindReconciled Kind = "reconciled"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCompleted, KindArchived, KindBlocked, KindFailure, KindReconciled:
		return true
	}
	return false
}

// Event is one recorded transition.
type Event struct {
	ID        string `json:"id"`
	StoryID   string `json:"storyId"`
	Kind      Kind   `json:"kind"`
	Partition string `json:"partition,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Stats counts recorded events.
type Stats struct {
	TotalEvents int          `json:"totalEvents"`
	Stories     int          `json:"stories"`
	ByKind      map[Kind]int `json:"byKind"`
}

// Config holds journal configuration.
type Config struct {
	DataDir string
}

// DefaultConfig returns the default configuration for the journal.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".storyloop")}
}

// Journal is the SQLite-backed event log.
type Journal struct {
	db *sql.DB

	mu      sync.Mutex
	entropy io.Reader
}

// Open creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func Open(cfg Config) (*Journal, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("journal: data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	j := &Journal{db: db, entropy: ulid.Monotonic(rand.Reader, 0)}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			story_id   TEXT NOT NULL,
			kind       TEXT NOT NULL,
			partition  TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_story ON events(story_id, id);
		CREATE INDEX IF NOT EXISTS idx_events_kind  ON events(kind);
	`
	_, err := j.db.Exec(schema)
	return err
}

// newID returns a ULID for t. Monotonic entropy keeps ids sortable even
// within the same millisecond, so ordering by id is ordering by time.
func (j *Journal) newID(t time.Time) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), j.entropy).String()
}

// Record appends an event. ID and CreatedAt are assigned here; the
// returned Event carries them.
func (j *Journal) Record(ctx context.Context, e Event) (Event, error) {
	if e.StoryID == "" {
		return Event{}, fmt.Errorf("journal: story id is required")
	}
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("journal: unknown event kind %q", e.Kind)
	}

	now := timeNow().UTC()
	e.ID = j.newID(now)
	e.CreatedAt = now.Format(time.RFC3339)

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, story_id, kind, partition, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.StoryID, string(e.Kind), e.Partition, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return Event{}, fmt.Errorf("journal: record %s for %s: %w", e.Kind, e.StoryID, err)
	}
	return e, nil
}

// History returns the newest events for one story, newest first.
func (j *Journal) History(ctx context.Context, storyID string, limit int) ([]Event, error) {
	return j.query(ctx,
		`SELECT id, story_id, kind, partition, detail, created_at
		 FROM events WHERE story_id = ? ORDER BY id DESC LIMIT ?`,
		storyID, normalizeLimit(limit),
	)
}

// Recent returns the newest events across all stories, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	return j.query(ctx,
		`SELECT id, story_id, kind, partition, detail, created_at
		 FROM events ORDER BY id DESC LIMIT ?`,
		normalizeLimit(limit),
	)
}

// Stats returns aggregate counts.
func (j *Journal) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: make(map[Kind]int)}

	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT story_id) FROM events`,
	).Scan(&stats.TotalEvents, &stats.Stories)
	if err != nil {
		return nil, fmt.Errorf("journal: stats: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("journal: stats by kind: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("journal: stats by kind: %w", err)
		}
		stats.ByKind[Kind(kind)] = count
	}
	return stats, rows.Err()
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		var (
			e    Event
			kind string
		)
		if err := rows.Scan(&e.ID, &e.StoryID, &kind, &e.Partition, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Kind = Kind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
