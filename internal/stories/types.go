// Package stories is the story-selection and lifecycle engine.
//
// A project keeps its stories in JSON collections: one or more active
// tiers (the working set) and an archive of completed work. The engine
// picks the next eligible story, and applies the state transitions an
// agent reports back (complete, archive, block, record a failed attempt).
//
// Layout of the package:
// - types.go: data model and validation
// - store.go: atomic JSON persistence over afero
// - resolver.go: dependency readiness across tiers and archive
// - scheduler.go: next-story selection
// - lifecycle.go: mutating operations
package stories

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// --- Priority enum ---

// Priority orders eligible stories. Lower rank wins.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRanks maps each known priority to its scheduling rank.
var priorityRanks = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// unknownRank sorts stories with a missing or unrecognised priority
// after every known priority.
const unknownRank = 4

// Rank returns the scheduling rank of p.
func (p Priority) Rank() int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return unknownRank
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// ValidatePriority returns an error if the priority is not recognized.
func ValidatePriority(p Priority) error {
	if !p.Valid() {
		return fmt.Errorf("invalid priority %q: must be one of: critical, high, medium, low", p)
	}
	return nil
}

// --- Core data structures ---

// Story is a unit of work.
type Story struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Priority           Priority `json:"priority"`
	Completed          bool     `json:"completed"`
	CompletedAt        string   `json:"completedAt,omitempty"`
	Blocked            bool     `json:"blocked,omitempty"`
	BlockedAt          string   `json:"blockedAt,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	Dependencies       []string `json:"dependencies"`
	Attempts           []string `json:"attempts,omitempty"`

	// Extra holds keys this package does not know about, so a story
	// edited by hand keeps its own fields across a Save.
	Extra map[string]json.RawMessage `json:"-"`
}

// storyKeys are the JSON keys Story decodes itself.
var storyKeys = []string{
	"id", "title", "description", "priority", "completed", "completedAt",
	"blocked", "blockedAt", "acceptanceCriteria", "dependencies", "attempts",
}

// knownStoryKey matches keys the way encoding/json does, ignoring case.
func knownStoryKey(k string) bool {
	return slices.ContainsFunc(storyKeys, func(known string) bool {
		return strings.EqualFold(known, k)
	})
}

// storyFields is Story without its JSON methods.
type storyFields Story

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (s *Story) UnmarshalJSON(data []byte) error {
	var f storyFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if knownStoryKey(k) {
			delete(all, k)
		}
	}
	f.Extra = nil
	if len(all) > 0 {
		f.Extra = all
	}
	*s = Story(f)
	return nil
}

// MarshalJSON writes the known fields in declaration order, followed by
// Extra sorted by key. Extra never overrides a known field.
func (s Story) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(storyFields(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}

	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		if !knownStoryKey(k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	buf := bytes.NewBuffer(data[:len(data)-1])
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		if v := s.Extra[k]; len(v) > 0 {
			buf.Write(v)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AttemptCount is the number of recorded failed attempts.
func (s *Story) AttemptCount() int {
	return len(s.Attempts)
}

// Collection is the persisted shape of one stories file.
type Collection struct {
	Project     string  `json:"project,omitempty"`
	Description string  `json:"description,omitempty"`
	Stories     []Story `json:"stories"`
}

// NormalizeID returns id in Unicode NFC, the form ids are compared in.
// An id typed as "e" plus a combining accent matches a stored "é".
func NormalizeID(id string) string {
	return norm.NFC.String(id)
}

// Find returns the index of the story with the given id, or -1.
func (c *Collection) Find(id string) int {
	id = NormalizeID(id)
	for i := range c.Stories {
		if NormalizeID(c.Stories[i].ID) == id {
			return i
		}
	}
	return -1
}

// Remove deletes the story at index i, preserving the order of the rest.
func (c *Collection) Remove(i int) {
	c.Stories = append(c.Stories[:i], c.Stories[i+1:]...)
}

// normalize replaces nil slices with empty ones so the persisted shape
// always carries the list fields.
func (c *Collection) normalize() {
	if c.Stories == nil {
		c.Stories = []Story{}
	}
	for i := range c.Stories {
		s := &c.Stories[i]
		if s.AcceptanceCriteria == nil {
			s.AcceptanceCriteria = []string{}
		}
		if s.Dependencies == nil {
			s.Dependencies = []string{}
		}
	}
}

// validate checks the invariants a loaded collection must hold: every
// story has an id and ids are unique within the collection.
func (c *Collection) validate() error {
	seen := make(map[string]int, len(c.Stories))
	for i, s := range c.Stories {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("story at index %d has no id", i)
		}
		id := NormalizeID(s.ID)
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("duplicate story id %q at indexes %d and %d", s.ID, prev, i)
		}
		seen[id] = i
	}
	return nil
}
