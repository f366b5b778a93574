package tools

import (
	"context"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/rs/zerolog"
)

// TransitionObserver is notified after a story transition has been
// persisted. It's an optional dependency: tools work fine with a nil
// observer.
type TransitionObserver interface {
	OnTransition(ctx context.Context, e journal.Event)
}

// JournalBridge records transitions in the lifecycle journal.
type JournalBridge struct {
	journal *journal.Journal
	log     zerolog.Logger
}

// NewJournalBridge creates a bridge that records transitions to j.
// Returns nil if j is nil; callers should check before assigning it to a
// TransitionObserver.
func NewJournalBridge(j *journal.Journal, log zerolog.Logger) *JournalBridge {
	if j == nil {
		return nil
	}
	return &JournalBridge{journal: j, log: log}
}

// OnTransition appends e to the journal.
//
// Best-effort: the stories files are already written, so a journal
// failure is logged and otherwise ignored.
func (b *JournalBridge) OnTransition(ctx context.Context, e journal.Event) {
	if b == nil {
		return
	}
	if _, err := b.journal.Record(ctx, e); err != nil {
		b.log.Warn().Err(err).Str("story", e.StoryID).Str("kind", string(e.Kind)).
			Msg("journal: recording transition")
	}
}

// notifyObserver is a nil-safe helper called from tool Handle methods.
func notifyObserver(ctx context.Context, obs TransitionObserver, e journal.Event) {
	if obs == nil {
		return
	}
	obs.OnTransition(ctx, e)
}
