// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"path/filepath"
	"strconv"

	"github.com/HendryAvila/storyloop/internal/config"
	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/logging"
	"github.com/HendryAvila/storyloop/internal/prompts"
	"github.com/HendryAvila/storyloop/internal/resources"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/HendryAvila/storyloop/internal/tools"
	"github.com/HendryAvila/storyloop/internal/watcher"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Options configures New.
type Options struct {
	Config *config.Config
	// Store defaults to the OS filesystem.
	Store stories.Store
	// Watch enables resource-updated notifications when stories files
	// change on disk.
	Watch bool
}

// NewEngine builds the story engine for cfg.
func NewEngine(cfg *config.Config, store stories.Store) *stories.Engine {
	if store == nil {
		store = stories.NewFileStore()
	}
	return stories.NewEngine(store, cfg,
		stories.WithFailureThreshold(cfg.FailureThreshold),
		stories.WithLogger(logging.Component("engine")),
	)
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function closes the journal and the file watcher
// and must be called on shutdown (typically via defer). It is always
// non-nil and safe to call even if optional subsystems failed to start.
func New(opts Options) (*server.MCPServer, func(), error) {
	cfg := opts.Config
	log := logging.Component("server")
	engine := NewEngine(cfg, opts.Store)

	s := server.NewMCPServer(
		"storyloop",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions(cfg.FailureThreshold)),
	)

	// --- Journal ---
	//
	// The journal is an independent subsystem: if it fails to open, the
	// story tools keep working without history.
	var cleanups []func()
	var observer tools.TransitionObserver
	var j *journal.Journal
	if cfg.JournalEnabled() {
		var err error
		j, err = journal.Open(journal.Config{DataDir: cfg.DataDir()})
		if err != nil {
			log.Warn().Err(err).Msg("journal disabled")
			j = nil
		} else {
			cleanups = append(cleanups, func() {
				if err := j.Close(); err != nil {
					log.Warn().Err(err).Msg("closing journal")
				}
			})
			observer = tools.NewJournalBridge(j, logging.Component("journal"))
		}
	}

	// --- Tools ---
	next := tools.NewNextTool(engine)
	s.AddTool(next.Definition(), next.Handle)

	details := tools.NewDetailsTool(engine)
	s.AddTool(details.Definition(), details.Handle)

	complete := tools.NewCompleteTool(engine, observer)
	s.AddTool(complete.Definition(), complete.Handle)

	block := tools.NewBlockTool(engine, observer)
	s.AddTool(block.Definition(), block.Handle)

	fail := tools.NewRecordFailureTool(engine, observer)
	s.AddTool(fail.Definition(), fail.Handle)

	status := tools.NewStatusTool(engine)
	s.AddTool(status.Definition(), status.Handle)

	reconcile := tools.NewReconcileTool(engine, observer)
	s.AddTool(reconcile.Definition(), reconcile.Handle)

	if j != nil {
		history := tools.NewHistoryTool(j)
		s.AddTool(history.Definition(), history.Handle)
	}

	// --- Prompts ---
	loop := prompts.NewLoopPrompt(cfg.FailureThreshold)
	s.AddPrompt(loop.Definition(), loop.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Resources ---
	rh := resources.NewHandler(engine, j)
	s.AddResource(rh.ActiveResource(), rh.HandleActive)
	s.AddResource(rh.ArchiveResource(), rh.HandleArchive)
	s.AddResource(rh.StatusResource(), rh.HandleStatus)

	// --- Watcher ---
	if opts.Watch {
		if w, err := watchLayout(s, cfg, log); err != nil {
			log.Warn().Err(err).Msg("file watching disabled")
		} else {
			cleanups = append(cleanups, func() { _ = w.Close() })
		}
	}

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return s, cleanup, nil
}

// watchLayout notifies clients when a stories file changes on disk.
func watchLayout(s *server.MCPServer, cfg *config.Config, log zerolog.Logger) (*watcher.Watcher, error) {
	layout, err := cfg.Locate()
	if err != nil {
		return nil, err
	}

	paths := []string{layout.Archive}
	for _, t := range layout.Tiers {
		paths = append(paths, t.Path)
	}

	onChange := func(path string) {
		for _, uri := range changedURIs(layout.Archive, path) {
			s.SendNotificationToAllClients("notifications/resources/updated", map[string]any{"uri": uri})
		}
		log.Debug().Str("path", path).Msg("stories file changed")
	}

	return watcher.New(paths, onChange,
		watcher.WithDirs(cfg.GlobDirs()...),
		watcher.WithMatcher(cfg.MatchesTier),
		watcher.WithLogger(log),
	)
}

// changedURIs maps a changed file to the resources that read it.
func changedURIs(archive, path string) []string {
	if filepath.Clean(path) == filepath.Clean(archive) {
		return []string{resources.ArchiveURI, resources.StatusURI}
	}
	return []string{resources.ActiveURI, resources.StatusURI}
}

// serverInstructions tells the AI how to drive the story loop.
func serverInstructions(threshold int) string {
	return `You have access to storyloop, which hands out a project's user stories one at a time.

## The loop

1. Call story_next. It returns the highest-priority story that is not completed,
   not blocked, and whose dependencies are all completed.
2. Implement that story. Its acceptanceCriteria define done.
3. On success call story_complete with its id. The story moves to the archive.
4. On failure call story_record_failure with its id and an attempt_ref pointing at
   what you tried. When thresholdReached is true (` + strconv.Itoa(threshold) + ` failures),
   call story_block and move on.
5. Repeat until story_next reports available=false, then call stories_status.

## When nothing is available

- reason=no_storage: no stories file exists yet.
- reason=waiting_on_dependencies: every remaining story depends on something
  unfinished. diagnostics.waiting lists what each one is waiting for.
- reason=all_complete_or_blocked: you are done, apart from blocked stories.

## Results

Every tool returns JSON. "ok": false means the call failed; error.kind is one of
not_found, malformed, persist, invalid_argument, internal. A persist error with
"written" set means story_complete was interrupted: retry it, or run
stories_reconcile.`
}
