package stories

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Tier is one active-like collection. Tiers are consulted in order: the
// scheduler exhausts a tier's candidates before looking at the next one.
type Tier struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Layout names the resources backing a project: its ordered active tiers
// and its archive.
type Layout struct {
	Tiers   []Tier `json:"tiers"`
	Archive string `json:"archive"`
}

// Validate checks that the layout names an archive and never points two
// roles at the same file. A layout without tiers is valid: it means no
// storage is configured yet.
func (l Layout) Validate() error {
	if strings.TrimSpace(l.Archive) == "" {
		return fmt.Errorf("layout has no archive")
	}

	seen := map[string]string{filepath.Clean(l.Archive): "archive"}
	for _, t := range l.Tiers {
		if strings.TrimSpace(t.Path) == "" {
			return fmt.Errorf("tier %q has no path", t.Name)
		}
		p := filepath.Clean(t.Path)
		if role, dup := seen[p]; dup {
			return fmt.Errorf("tier %q reuses %s (already used by %s)", t.Name, t.Path, role)
		}
		seen[p] = "tier " + t.Name
	}
	return nil
}

// Locator resolves which resources back the active tiers and the archive.
// The engine asks on every operation so locators may re-expand globs.
type Locator interface {
	Locate() (Layout, error)
}

// StaticLocator always returns the same layout.
type StaticLocator Layout

// Locate implements Locator.
func (l StaticLocator) Locate() (Layout, error) {
	return Layout(l), nil
}

// SingleFile is the common layout: one active file plus an archive.
func SingleFile(active, archive string) StaticLocator {
	return StaticLocator{
		Tiers:   []Tier{{Name: "active", Path: active}},
		Archive: archive,
	}
}
