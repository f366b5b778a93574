// Package resources implements MCP resource handlers for the story loop.
//
// Resources provide read-only data the host can consume for context.
// They use URI-based addressing (stories://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs.
const (
	ActiveURI  = "stories://active"
	ArchiveURI = "stories://archive"
	StatusURI  = "stories://status"
)

// Source is the read side of the story engine.
type Source interface {
	View(ctx context.Context) (*stories.View, error)
	IsComplete(ctx context.Context) (*stories.Progress, error)
	FailureThreshold() int
}

// Handler manages story resource endpoints.
type Handler struct {
	source  Source
	journal *journal.Journal
}

// NewHandler creates a resource Handler. j may be nil.
func NewHandler(source Source, j *journal.Journal) *Handler {
	return &Handler{source: source, journal: j}
}

// ActiveResource returns the MCP resource definition for the active tiers.
func (h *Handler) ActiveResource() mcp.Resource {
	return mcp.NewResource(
		ActiveURI,
		"Active Stories",
		mcp.WithResourceDescription("Every active tier, in scheduling order, with its stories"),
		mcp.WithMIMEType("application/json"),
	)
}

// ArchiveResource returns the MCP resource definition for the archive.
func (h *Handler) ArchiveResource() mcp.Resource {
	return mcp.NewResource(
		ArchiveURI,
		"Archived Stories",
		mcp.WithResourceDescription("Completed stories moved out of the active tiers"),
		mcp.WithMIMEType("application/json"),
	)
}

// StatusResource returns the MCP resource definition for loop progress.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Story Loop Status",
		mcp.WithResourceDescription("Completion counts, failure threshold, and journal statistics"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleActive returns the active tiers as JSON.
func (h *Handler) HandleActive(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	v, err := h.source.View(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, map[string]any{"tiers": v.Tiers})
}

// HandleArchive returns the archive as JSON.
func (h *Handler) HandleArchive(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	v, err := h.source.View(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, v.Archive)
}

// HandleStatus returns progress plus journal statistics when available.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	progress, err := h.source.IsComplete(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	status := map[string]any{
		"progress":         progress,
		"failureThreshold": h.source.FailureThreshold(),
	}
	if h.journal != nil {
		if stats, err := h.journal.Stats(ctx); err == nil {
			status["journal"] = stats
		}
	}
	return jsonResource(req.Params.URI, status)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
