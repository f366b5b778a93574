package stories

import (
	"context"
	"slices"
)

// CollectionView is a read-only copy of one stored collection.
type CollectionView struct {
	Name    string  `json:"name,omitempty"`
	Path    string  `json:"path"`
	Exists  bool    `json:"exists"`
	Project string  `json:"project,omitempty"`
	Stories []Story `json:"stories"`
}

// View is every collection of the current layout, as stored.
type View struct {
	Tiers   []CollectionView `json:"tiers"`
	Archive CollectionView   `json:"archive"`
}

// View loads the layout and returns copies of its collections. Missing
// resources appear with Exists=false and no stories.
func (e *Engine) View(ctx context.Context) (*View, error) {
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	v := &View{
		Tiers:   make([]CollectionView, 0, len(snap.tiers)),
		Archive: viewOf("", snap.layout.Archive, snap.archive),
	}
	for _, t := range snap.tiers {
		v.Tiers = append(v.Tiers, viewOf(t.Name, t.Path, t.Collection))
	}
	return v, nil
}

func viewOf(name, path string, c *Collection) CollectionView {
	cv := CollectionView{Name: name, Path: path, Stories: []Story{}}
	if c != nil {
		cv.Exists = true
		cv.Project = c.Project
		cv.Stories = slices.Clone(c.Stories)
	}
	return cv
}
