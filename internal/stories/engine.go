package stories

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultFailureThreshold is the attempt count at which RecordFailure
// starts reporting that the story should be blocked.
const DefaultFailureThreshold = 6

// Engine runs scheduling and lifecycle operations against the resources
// its Locator names. It assumes a single writer per layout.
type Engine struct {
	store     Store
	locator   Locator
	threshold int
	log       zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFailureThreshold sets the attempt count reported as "threshold
// reached" by RecordFailure. Values < 1 keep the default.
func WithFailureThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

// WithLogger sets the logger used for transitions and storage failures.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an Engine over store, resolving resources via locator.
func NewEngine(store Store, locator Locator, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		locator:   locator,
		threshold: DefaultFailureThreshold,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FailureThreshold returns the configured failure threshold.
func (e *Engine) FailureThreshold() int {
	return e.threshold
}

// Layout resolves the current layout.
func (e *Engine) Layout() (Layout, error) {
	layout, err := e.locator.Locate()
	if err != nil {
		return Layout{}, fmt.Errorf("locating stories files: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, fmt.Errorf("invalid stories layout: %w", err)
	}
	return layout, nil
}

// loadedTier is a tier plus its collection. Collection is nil when the
// tier's resource does not exist.
type loadedTier struct {
	Tier
	Collection *Collection
}

// snapshot is every collection of a layout, loaded once per operation.
type snapshot struct {
	layout  Layout
	tiers   []loadedTier
	archive *Collection
}

// load reads all tiers and the archive. Missing resources are tolerated;
// malformed ones are not.
func (e *Engine) load(ctx context.Context) (*snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	layout, err := e.Layout()
	if err != nil {
		return nil, err
	}

	snap := &snapshot{layout: layout}
	owner := make(map[string]string)
	for _, t := range layout.Tiers {
		c, _, err := e.store.TryLoad(t.Path)
		if err != nil {
			e.log.Error().Err(err).Str("tier", t.Name).Str("path", t.Path).Msg("loading tier")
			return nil, err
		}
		if c != nil {
			// Ids are unique across the whole active partition.
			for _, s := range c.Stories {
				id := NormalizeID(s.ID)
				if prev, dup := owner[id]; dup {
					err := &MalformedError{Resource: t.Path, Err: fmt.Errorf("story id %q is already in tier %q", s.ID, prev)}
					e.log.Error().Err(err).Str("tier", t.Name).Msg("loading tier")
					return nil, err
				}
				owner[id] = t.Name
				if s.Priority != "" {
					if err := ValidatePriority(s.Priority); err != nil {
						e.log.Warn().Err(err).Str("story", s.ID).Str("tier", t.Name).Msg("story ranks after low")
					}
				}
			}
		}
		snap.tiers = append(snap.tiers, loadedTier{Tier: t, Collection: c})
	}

	archive, _, err := e.store.TryLoad(layout.Archive)
	if err != nil {
		e.log.Error().Err(err).Str("path", layout.Archive).Msg("loading archive")
		return nil, err
	}
	snap.archive = archive
	return snap, nil
}

// active returns the collections of the tiers that exist.
func (s *snapshot) active() []*Collection {
	var out []*Collection
	for _, t := range s.tiers {
		if t.Collection != nil {
			out = append(out, t.Collection)
		}
	}
	return out
}

// resolver builds a dependency resolver over the whole snapshot.
func (s *snapshot) resolver() *Resolver {
	return NewResolver(s.active(), s.archive)
}

// storageConfigured reports whether at least one tier resource exists.
func (s *snapshot) storageConfigured() bool {
	return len(s.active()) > 0
}

// locate finds the tier holding id. It returns -1 indexes when the
// story is in no tier.
func (s *snapshot) locate(id string) (tier, idx int) {
	for ti, t := range s.tiers {
		if t.Collection == nil {
			continue
		}
		if i := t.Collection.Find(id); i >= 0 {
			return ti, i
		}
	}
	return -1, -1
}

// activeResource names the tiers for error messages.
func (s *snapshot) activeResource() string {
	switch len(s.layout.Tiers) {
	case 0:
		return "active stories (no tiers configured)"
	case 1:
		return s.layout.Tiers[0].Path
	default:
		return fmt.Sprintf("%d active tiers", len(s.layout.Tiers))
	}
}
