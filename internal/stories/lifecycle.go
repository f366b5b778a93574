package stories

import (
	"context"
	"errors"
	"slices"
)

// Partition names where a story currently lives.
type Partition string

const (
	PartitionActive  Partition = "active"
	PartitionArchive Partition = "archive"
)

// ErrEmptyAttemptRef is returned when RecordFailure gets a blank reference.
var ErrEmptyAttemptRef = errors.New("attempt reference is required")

// Confirmation describes a completed state transition.
type Confirmation struct {
	StoryID     string `json:"storyId"`
	Action      string `json:"action"`
	Tier        string `json:"tier,omitempty"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	At          string `json:"at"`
	// AlreadyArchived is set when a retried CompleteAndArchive found the
	// story already archived and only finished the cleanup, or had
	// nothing left to do.
	AlreadyArchived bool   `json:"alreadyArchived,omitempty"`
	Story           *Story `json:"story,omitempty"`
}

// FailureResult is returned by RecordFailure.
type FailureResult struct {
	StoryID          string   `json:"storyId"`
	AttemptCount     int      `json:"attemptCount"`
	Attempts         []string `json:"attempts"`
	Threshold        int      `json:"threshold"`
	ThresholdReached bool     `json:"thresholdReached"`
}

// Progress aggregates completion state over the active tiers.
type Progress struct {
	Complete          bool `json:"complete"`
	StorageConfigured bool `json:"storageConfigured"`
	TotalStories      int  `json:"totalStories"`
	CompletedStories  int  `json:"completedStories"`
	BlockedStories    int  `json:"blockedStories"`
	RemainingStories  int  `json:"remainingStories"`
}

// StoryDetails is a story plus the fields derived from its surroundings.
type StoryDetails struct {
	Story             Story     `json:"story"`
	Partition         Partition `json:"partition"`
	Tier              string    `json:"tier,omitempty"`
	Resource          string    `json:"resource"`
	AttemptCount      int       `json:"attemptCount"`
	Ready             bool      `json:"ready"`
	UnmetDependencies []string  `json:"unmetDependencies"`
}

// ReconcileResult lists the crash leftovers removed by Reconcile.
type ReconcileResult struct {
	Removed []ReconciledStory `json:"removed"`
}

// ReconciledStory is one duplicate removed from an active tier.
type ReconciledStory struct {
	ID   string `json:"id"`
	Tier string `json:"tier"`
	Path string `json:"path"`
}

// CompleteAndArchive marks a story completed and moves it from its tier
// to the archive. The archive is written before the tier, so a crash in
// between leaves the story duplicated rather than lost; a retry (or
// Reconcile) finishes the move without archiving a second copy.
func (e *Engine) CompleteAndArchive(ctx context.Context, id string) (*Confirmation, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	archive := snap.archive
	archivePath := snap.layout.Archive
	ti, si := snap.locate(id)

	if ti < 0 {
		if archive != nil {
			if ai := archive.Find(id); ai >= 0 && archive.Stories[ai].Completed {
				story := archive.Stories[ai]
				return &Confirmation{
					StoryID:         id,
					Action:          "archived",
					Source:          snap.activeResource(),
					Destination:     archivePath,
					At:              story.CompletedAt,
					AlreadyArchived: true,
					Story:           &story,
				}, nil
			}
		}
		return nil, &NotFoundError{StoryID: id, Resource: snap.activeResource()}
	}

	src := snap.tiers[ti]
	if archive == nil {
		archive = &Collection{Project: src.Collection.Project, Stories: []Story{}}
	}

	story := src.Collection.Stories[si]
	var written []string
	alreadyArchived := false

	if ai := archive.Find(id); ai >= 0 && archive.Stories[ai].Completed {
		// Left over from an interrupted earlier run.
		alreadyArchived = true
		story = archive.Stories[ai]
	} else {
		// completedAt is stamped once, when completed first becomes true.
		if !story.Completed {
			story.Completed = true
			story.CompletedAt = now()
		}
		if ai >= 0 {
			archive.Stories[ai] = story
		} else {
			archive.Stories = append(archive.Stories, story)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.store.Save(archivePath, archive); err != nil {
			e.log.Error().Err(err).Str("story", id).Msg("archiving story")
			return nil, err
		}
		written = append(written, archivePath)
	}

	src.Collection.Remove(si)
	if err := e.store.Save(src.Path, src.Collection); err != nil {
		e.log.Error().Err(err).Str("story", id).Strs("written", written).
			Msg("removing archived story from tier")
		return nil, withWritten(err, written)
	}

	e.log.Info().Str("story", id).Str("tier", src.Name).Str("archive", archivePath).
		Bool("already_archived", alreadyArchived).Msg("story completed and archived")

	return &Confirmation{
		StoryID:         id,
		Action:          "archived",
		Tier:            src.Name,
		Source:          src.Path,
		Destination:     archivePath,
		At:              story.CompletedAt,
		AlreadyArchived: alreadyArchived,
		Story:           &story,
	}, nil
}

// CompleteInPlace marks a story completed without moving it. Completing
// an already-completed story is a no-op that keeps the original timestamp.
func (e *Engine) CompleteInPlace(ctx context.Context, id string) (*Confirmation, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	ti, si := snap.locate(id)
	if ti < 0 {
		return nil, &NotFoundError{StoryID: id, Resource: snap.activeResource()}
	}

	t := snap.tiers[ti]
	s := &t.Collection.Stories[si]
	if !s.Completed {
		s.Completed = true
		s.CompletedAt = now()
		if err := e.save(ctx, t.Path, t.Collection); err != nil {
			return nil, err
		}
		e.log.Info().Str("story", id).Str("tier", t.Name).Msg("story completed in place")
	}

	story := *s
	return &Confirmation{
		StoryID: id,
		Action:  "completed",
		Tier:    t.Name,
		Source:  t.Path,
		At:      story.CompletedAt,
		Story:   &story,
	}, nil
}

// Block excludes a story from selection. Blocking twice succeeds and
// refreshes the timestamp; no other field changes.
func (e *Engine) Block(ctx context.Context, id string) (*Confirmation, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	ti, si := snap.locate(id)
	if ti < 0 {
		return nil, &NotFoundError{StoryID: id, Resource: snap.activeResource()}
	}

	t := snap.tiers[ti]
	s := &t.Collection.Stories[si]
	s.Blocked = true
	s.BlockedAt = now()
	if err := e.save(ctx, t.Path, t.Collection); err != nil {
		return nil, err
	}
	e.log.Info().Str("story", id).Str("tier", t.Name).Int("attempts", s.AttemptCount()).Msg("story blocked")

	story := *s
	return &Confirmation{
		StoryID: id,
		Action:  "blocked",
		Tier:    t.Name,
		Source:  t.Path,
		At:      story.BlockedAt,
		Story:   &story,
	}, nil
}

// RecordFailure appends ref to the story's attempts and returns the new
// count. Reaching the threshold is only reported; blocking is the
// caller's decision.
func (e *Engine) RecordFailure(ctx context.Context, id, ref string) (*FailureResult, error) {
	if ref == "" {
		return nil, ErrEmptyAttemptRef
	}
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	ti, si := snap.locate(id)
	if ti < 0 {
		return nil, &NotFoundError{StoryID: id, Resource: snap.activeResource()}
	}

	t := snap.tiers[ti]
	s := &t.Collection.Stories[si]
	s.Attempts = append(s.Attempts, ref)
	if err := e.save(ctx, t.Path, t.Collection); err != nil {
		return nil, err
	}

	count := s.AttemptCount()
	e.log.Info().Str("story", id).Str("ref", ref).Int("attempts", count).Msg("failure recorded")

	return &FailureResult{
		StoryID:          id,
		AttemptCount:     count,
		Attempts:         slices.Clone(s.Attempts),
		Threshold:        e.threshold,
		ThresholdReached: count >= e.threshold,
	}, nil
}

// IsComplete reports whether every story in the active tiers is completed.
func (e *Engine) IsComplete(ctx context.Context) (*Progress, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	p := &Progress{StorageConfigured: snap.storageConfigured()}
	for _, c := range snap.active() {
		for _, s := range c.Stories {
			p.TotalStories++
			switch {
			case s.Completed:
				p.CompletedStories++
			case s.Blocked:
				p.BlockedStories++
			}
		}
	}
	p.RemainingStories = p.TotalStories - p.CompletedStories
	p.Complete = p.RemainingStories == 0
	return p, nil
}

// Details looks a story up in the tiers, then the archive, and derives
// its attempt count and readiness.
func (e *Engine) Details(ctx context.Context, id string) (*StoryDetails, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	res := snap.resolver()

	if ti, si := snap.locate(id); ti >= 0 {
		t := snap.tiers[ti]
		s := t.Collection.Stories[si]
		unmet := res.Unmet(&s)
		return &StoryDetails{
			Story:             s,
			Partition:         PartitionActive,
			Tier:              t.Name,
			Resource:          t.Path,
			AttemptCount:      s.AttemptCount(),
			Ready:             !s.Completed && !s.Blocked && len(unmet) == 0,
			UnmetDependencies: nonNil(unmet),
		}, nil
	}

	if snap.archive != nil {
		if ai := snap.archive.Find(id); ai >= 0 {
			s := snap.archive.Stories[ai]
			return &StoryDetails{
				Story:             s,
				Partition:         PartitionArchive,
				Resource:          snap.layout.Archive,
				AttemptCount:      s.AttemptCount(),
				UnmetDependencies: []string{},
			}, nil
		}
	}

	return nil, &NotFoundError{StoryID: id, Resource: snap.activeResource() + " or " + snap.layout.Archive}
}

// Reconcile removes from the active tiers every story that is already
// completed in the archive, repairing an interrupted CompleteAndArchive.
func (e *Engine) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Removed: []ReconciledStory{}}
	if snap.archive == nil {
		return result, nil
	}

	for _, t := range snap.tiers {
		if t.Collection == nil {
			continue
		}
		kept := t.Collection.Stories[:0]
		var removed []ReconciledStory
		for _, s := range t.Collection.Stories {
			if ai := snap.archive.Find(s.ID); ai >= 0 && snap.archive.Stories[ai].Completed {
				removed = append(removed, ReconciledStory{ID: s.ID, Tier: t.Name, Path: t.Path})
				continue
			}
			kept = append(kept, s)
		}
		if len(removed) == 0 {
			continue
		}
		t.Collection.Stories = kept
		if err := e.save(ctx, t.Path, t.Collection); err != nil {
			return nil, err
		}
		result.Removed = append(result.Removed, removed...)
		e.log.Info().Str("tier", t.Name).Int("removed", len(removed)).Msg("reconciled tier against archive")
	}
	return result, nil
}

// save persists a single collection, honouring cancellation up to the
// write itself.
func (e *Engine) save(ctx context.Context, path string, c *Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.store.Save(path, c); err != nil {
		e.log.Error().Err(err).Str("path", path).Msg("saving stories file")
		return err
	}
	return nil
}

// withWritten records already-written resources on a PersistError.
func withWritten(err error, written []string) error {
	var pe *PersistError
	if len(written) > 0 && errors.As(err, &pe) {
		pe.Written = append(pe.Written, written...)
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
