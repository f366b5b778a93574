package stories

// Resolver decides whether a story's dependencies are all completed.
//
// Lookups are one level deep: a dependency counts as met when the story
// it names is itself completed. Completion already implied its own
// dependencies were met, so cyclic or self-referencing graphs terminate.
type Resolver struct {
	active  []*Collection
	archive []*Collection
}

// NewResolver builds a resolver over the in-memory collections. Active
// collections are searched before the archive ones.
func NewResolver(active []*Collection, archive ...*Collection) *Resolver {
	r := &Resolver{}
	for _, c := range active {
		if c != nil {
			r.active = append(r.active, c)
		}
	}
	for _, c := range archive {
		if c != nil {
			r.archive = append(r.archive, c)
		}
	}
	return r
}

// Satisfied reports whether every dependency of s names a completed story.
// Missing dependencies never pass; they are "not ready", not an error.
func (r *Resolver) Satisfied(s *Story) bool {
	for _, dep := range s.Dependencies {
		if !r.met(dep) {
			return false
		}
	}
	return true
}

// Unmet returns the dependency ids of s that are not yet satisfied,
// in declaration order.
func (r *Resolver) Unmet(s *Story) []string {
	var unmet []string
	for _, dep := range s.Dependencies {
		if !r.met(dep) {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

func (r *Resolver) met(id string) bool {
	if completed, found := lookup(r.active, id); found {
		return completed
	}
	// Archived stories are always completed in practice, but the flag is
	// still checked.
	completed, _ := lookup(r.archive, id)
	return completed
}

func lookup(collections []*Collection, id string) (completed, found bool) {
	for _, c := range collections {
		if i := c.Find(id); i >= 0 {
			return c.Stories[i].Completed, true
		}
	}
	return false, false
}
