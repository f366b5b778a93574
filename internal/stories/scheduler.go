package stories

import (
	"context"
	"slices"
)

// UnavailableReason classifies why FindNext returned no story.
type UnavailableReason string

const (
	// ReasonNoStorage: none of the active tier resources exist.
	ReasonNoStorage UnavailableReason = "no_storage"
	// ReasonWaitingOnDependencies: incomplete, unblocked stories exist but
	// each has at least one unmet dependency.
	ReasonWaitingOnDependencies UnavailableReason = "waiting_on_dependencies"
	// ReasonAllCompleteOrBlocked: every story is completed or blocked.
	ReasonAllCompleteOrBlocked UnavailableReason = "all_complete_or_blocked"
)

// WaitingStory is an incomplete, unblocked story held back by dependencies.
type WaitingStory struct {
	ID    string   `json:"id"`
	Tier  string   `json:"tier"`
	Unmet []string `json:"unmetDependencies"`
}

// Diagnostics is the bookkeeping of a scheduling pass.
type Diagnostics struct {
	TiersScanned     int            `json:"tiersScanned"`
	TotalStories     int            `json:"totalStories"`
	CompletedStories int            `json:"completedStories"`
	BlockedStories   int            `json:"blockedStories"`
	WaitingStories   int            `json:"waitingStories"`
	Waiting          []WaitingStory `json:"waiting,omitempty"`
}

// Selection is the outcome of FindNext.
type Selection struct {
	Available        bool              `json:"available"`
	Story            *Story            `json:"story,omitempty"`
	AttemptCount     int               `json:"attemptCount"`
	PreviousAttempts []string          `json:"previousAttempts,omitempty"`
	Tier             string            `json:"tier,omitempty"`
	Reason           UnavailableReason `json:"reason,omitempty"`
	Diagnostics      *Diagnostics      `json:"diagnostics,omitempty"`
}

// FindNext selects the story to work on next: the highest-priority
// incomplete, unblocked, dependency-satisfied story of the first tier
// that has one. Ties keep list order.
func (e *Engine) FindNext(ctx context.Context) (*Selection, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.storageConfigured() {
		return &Selection{Reason: ReasonNoStorage, Diagnostics: &Diagnostics{}}, nil
	}

	res := snap.resolver()
	diag := &Diagnostics{}

	for _, t := range snap.tiers {
		if t.Collection == nil {
			continue
		}
		diag.TiersScanned++

		candidates := scanTier(t, res, diag)
		if len(candidates) == 0 {
			continue
		}

		winner := candidates[0]
		e.log.Debug().Str("story", winner.ID).Str("tier", t.Name).
			Int("candidates", len(candidates)).Msg("selected next story")

		story := *winner
		return &Selection{
			Available:        true,
			Story:            &story,
			AttemptCount:     story.AttemptCount(),
			PreviousAttempts: slices.Clone(story.Attempts),
			Tier:             t.Name,
		}, nil
	}

	sel := &Selection{Reason: ReasonAllCompleteOrBlocked, Diagnostics: diag}
	if diag.WaitingStories > 0 {
		sel.Reason = ReasonWaitingOnDependencies
	}
	return sel, nil
}

// scanTier returns the tier's candidates ordered by priority rank, keeping
// list order among equal ranks, and accumulates counts into diag.
func scanTier(t loadedTier, res *Resolver, diag *Diagnostics) []*Story {
	var candidates []*Story
	for i := range t.Collection.Stories {
		s := &t.Collection.Stories[i]
		diag.TotalStories++
		switch {
		case s.Completed:
			diag.CompletedStories++
		case s.Blocked:
			diag.BlockedStories++
		case res.Satisfied(s):
			candidates = append(candidates, s)
		default:
			diag.WaitingStories++
			diag.Waiting = append(diag.Waiting, WaitingStory{
				ID:    s.ID,
				Tier:  t.Name,
				Unmet: res.Unmet(s),
			})
		}
	}

	slices.SortStableFunc(candidates, func(a, b *Story) int {
		return a.Priority.Rank() - b.Priority.Rank()
	})
	return candidates
}
