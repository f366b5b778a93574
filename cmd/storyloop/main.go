// storyloop hands out a project's user stories one at a time, over MCP or
// from the command line.
//
// Usage:
//
//	storyloop serve              # MCP server on stdio
//	storyloop serve --http :8080 # MCP server over streamable HTTP
//	storyloop next               # show the story that would be picked
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/HendryAvila/storyloop/internal/config"
	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/logging"
	"github.com/HendryAvila/storyloop/internal/server"
	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/HendryAvila/storyloop/internal/tools"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// Flags are the global options shared by every command.
type Flags struct {
	ConfigPath string
	Active     string
	Archive    string
	LogLevel   string
	LogFile    string
	DataDir    string
	JSON       bool
}

// App holds what the Before hook builds for the commands.
type App struct {
	Config *config.Config
	Engine *stories.Engine
	Log    zerolog.Logger

	journal *journal.Journal
}

// Journal opens the lifecycle journal on first use. It returns nil when
// the journal is disabled or cannot be opened.
func (a *App) Journal() *journal.Journal {
	if a.journal != nil || !a.Config.JournalEnabled() {
		return a.journal
	}
	j, err := journal.Open(journal.Config{DataDir: a.Config.DataDir()})
	if err != nil {
		a.Log.Warn().Err(err).Msg("journal disabled")
		return nil
	}
	a.journal = j
	return j
}

// Observer returns the journal bridge, or nil without a journal.
func (a *App) Observer() tools.TransitionObserver {
	if b := tools.NewJournalBridge(a.Journal(), logging.Component("journal")); b != nil {
		return b
	}
	return nil
}

func (a *App) close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

func version() string {
	v := server.Version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}
	return v
}

func newApp(stdout io.Writer) *cli.Command {
	var (
		flags     = &Flags{}
		app       = &App{}
		logCloser func()
	)

	root := &cli.Command{
		Name:      "storyloop",
		Usage:     "Pick, complete and block user stories for an agent work loop",
		UsageText: "storyloop [global options] command [command options]",
		Description: `storyloop keeps a project's user stories in JSON files and hands them out
one at a time: highest priority first, and only once their dependencies are done.

Run 'storyloop serve' to expose it to an AI agent over MCP.`,
		Version: version(),
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (default: nearest " + config.FileName + ")",
				Sources:     cli.EnvVars("STORYLOOP_CONFIG"),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "active",
				Usage:       "active stories file (replaces configured tiers)",
				Sources:     cli.EnvVars("STORYLOOP_ACTIVE"),
				Destination: &flags.Active,
			},
			&cli.StringFlag{
				Name:        "archive",
				Usage:       "archive file for completed stories",
				Sources:     cli.EnvVars("STORYLOOP_ARCHIVE"),
				Destination: &flags.Archive,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("STORYLOOP_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (default: stderr)",
				Sources:     cli.EnvVars("STORYLOOP_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "directory holding the journal database",
				Sources:     cli.EnvVars("STORYLOOP_DATA_DIR"),
				Destination: &flags.DataDir,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &flags.JSON,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			wd, err := os.Getwd()
			if err != nil {
				return ctx, fmt.Errorf("getting working directory: %w", err)
			}

			configPath := flags.ConfigPath
			if configPath == "" {
				configPath = config.Discover(wd)
			}
			cfg, err := config.Load(configPath, wd)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			err = cfg.Apply(config.Overrides{
				Active:   flags.Active,
				Archive:  flags.Archive,
				LogLevel: flags.LogLevel,
				LogFile:  flags.LogFile,
				DataDir:  flags.DataDir,
			}, wd)
			if err != nil {
				return ctx, fmt.Errorf("invalid flags: %w", err)
			}

			logger, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			logging.Install(logger)
			logCloser = closer

			app.Config = cfg
			app.Log = logging.Component("cli")
			app.Engine = server.NewEngine(cfg, nil)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			app.close()
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	root.Commands = []*cli.Command{
		serveCmd(app),
		nextCmd(flags, app),
		statusCmd(flags, app),
		showCmd(flags, app),
		completeCmd(flags, app),
		blockCmd(flags, app),
		failCmd(flags, app),
		reconcileCmd(flags, app),
		historyCmd(flags, app),
		versionCmd(),
	}
	return root
}

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
