package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	priorityStyles = map[stories.Priority]lipgloss.Style{
		stories.PriorityCritical: errStyle.Bold(true),
		stories.PriorityHigh:     warnStyle,
		stories.PriorityMedium:   lipgloss.NewStyle(),
		stories.PriorityLow:      dimStyle,
	}
)

// output prints v as JSON when --json is set, and through render otherwise.
func output(c *cli.Command, flags *Flags, v any, render func(p *printer)) error {
	w := c.Root().Writer
	if flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render(&printer{w: w})
	return nil
}

type printer struct {
	w io.Writer
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func priorityLabel(pr stories.Priority) string {
	if !pr.Valid() {
		return dimStyle.Render("[none]")
	}
	return priorityStyles[pr].Render("[" + strings.ToUpper(string(pr)) + "]")
}

func (p *printer) story(s *stories.Story) {
	p.line("%s %s %s", idStyle.Render(s.ID), priorityLabel(s.Priority), titleStyle.Render(s.Title))
	if s.Description != "" {
		p.line("  %s", s.Description)
	}
	if len(s.AcceptanceCriteria) > 0 {
		p.line("  Acceptance criteria:")
		for _, ac := range s.AcceptanceCriteria {
			p.line("    - %s", ac)
		}
	}
	if len(s.Dependencies) > 0 {
		p.line("  %s %s", dimStyle.Render("Depends on:"), strings.Join(s.Dependencies, ", "))
	}
}

func (p *printer) selection(sel *stories.Selection) {
	if !sel.Available {
		switch sel.Reason {
		case stories.ReasonNoStorage:
			p.line("%s", warnStyle.Render("No stories file found."))
		case stories.ReasonWaitingOnDependencies:
			p.line("%s", warnStyle.Render("Nothing ready: remaining stories wait on dependencies."))
			if sel.Diagnostics != nil {
				for _, w := range sel.Diagnostics.Waiting {
					p.line("  %s waits on %s", idStyle.Render(w.ID), strings.Join(w.Unmet, ", "))
				}
			}
		default:
			p.line("%s", okStyle.Render("Nothing left: every story is completed or blocked."))
		}
		return
	}

	p.story(sel.Story)
	if sel.Tier != "" {
		p.line("  %s %s", dimStyle.Render("Tier:"), sel.Tier)
	}
	if sel.AttemptCount > 0 {
		p.line("  %s", warnStyle.Render(fmt.Sprintf("%d previous failed attempt(s)", sel.AttemptCount)))
		for _, a := range sel.PreviousAttempts {
			p.line("    - %s", a)
		}
	}
}

func (p *printer) details(d *stories.StoryDetails) {
	p.story(&d.Story)
	where := string(d.Partition)
	if d.Tier != "" {
		where += " (" + d.Tier + ")"
	}
	p.line("  %s %s", dimStyle.Render("Location:"), where)

	state := "open"
	switch {
	case d.Story.Completed:
		state = okStyle.Render("completed")
	case d.Story.Blocked:
		state = errStyle.Render("blocked")
	case d.Ready:
		state = okStyle.Render("ready")
	}
	p.line("  %s %s", dimStyle.Render("State:"), state)
	if len(d.UnmetDependencies) > 0 {
		p.line("  %s %s", dimStyle.Render("Unmet:"), strings.Join(d.UnmetDependencies, ", "))
	}
	if d.AttemptCount > 0 {
		p.line("  %s %d", dimStyle.Render("Failed attempts:"), d.AttemptCount)
	}
}

func (p *printer) progress(pr *stories.Progress) {
	if !pr.StorageConfigured {
		p.line("%s", warnStyle.Render("No stories file found."))
		return
	}
	p.line("%d/%d completed, %d blocked, %d remaining",
		pr.CompletedStories, pr.TotalStories, pr.BlockedStories, pr.RemainingStories)
	if pr.Complete {
		p.line("%s", okStyle.Render("All done."))
	}
}

func (p *printer) confirmation(c *stories.Confirmation) {
	msg := fmt.Sprintf("%s %s", idStyle.Render(c.StoryID), c.Action)
	if c.Destination != "" {
		msg += " -> " + c.Destination
	}
	if c.AlreadyArchived {
		msg += dimStyle.Render(" (already archived)")
	}
	p.line("%s", okStyle.Render("✓")+" "+msg)
}

func (p *printer) failure(r *stories.FailureResult) {
	p.line("%s failed attempt %d of %d recorded", idStyle.Render(r.StoryID), r.AttemptCount, r.Threshold)
	if r.ThresholdReached {
		p.line("%s", errStyle.Render("Failure threshold reached: consider 'storyloop block "+r.StoryID+"'."))
	}
}

func (p *printer) reconcile(r *stories.ReconcileResult) {
	if len(r.Removed) == 0 {
		p.line("%s", okStyle.Render("Nothing to reconcile."))
		return
	}
	for _, s := range r.Removed {
		p.line("removed archived duplicate %s from %s", idStyle.Render(s.ID), s.Tier)
	}
}

func (p *printer) events(events []journal.Event) {
	if len(events) == 0 {
		p.line("%s", dimStyle.Render("No events recorded."))
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-10s %s", dimStyle.Render(e.CreatedAt), e.Kind, idStyle.Render(e.StoryID))
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		p.line("%s", line)
	}
}
