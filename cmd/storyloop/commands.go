package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/storyloop/internal/journal"
	"github.com/HendryAvila/storyloop/internal/logging"
	"github.com/HendryAvila/storyloop/internal/server"
	"github.com/HendryAvila/storyloop/internal/stories"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
)

func serveCmd(app *App) *cli.Command {
	var (
		httpAddr string
		noWatch  bool
	)
	return &cli.Command{
		Name:      "serve",
		Usage:     "Start the MCP server",
		UsageText: "storyloop serve [--http addr] [--no-watch]",
		Description: `Serves the story tools over MCP. By default the server speaks stdio, which is
what MCP hosts launch. With --http it serves streamable HTTP at /mcp instead.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "http",
				Usage:       "listen address for streamable HTTP (e.g. :8080)",
				Sources:     cli.EnvVars("STORYLOOP_HTTP"),
				Destination: &httpAddr,
			},
			&cli.BoolFlag{
				Name:        "no-watch",
				Usage:       "do not notify clients when stories files change on disk",
				Destination: &noWatch,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s, cleanup, err := server.New(server.Options{Config: app.Config, Watch: !noWatch})
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			if httpAddr == "" {
				return mcpserver.ServeStdio(s)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := logging.Component("http")
			return server.ServeHTTP(ctx, httpAddr, server.HTTPHandler(s, log), log)
		},
	}
}

func nextCmd(flags *Flags, app *App) *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "Show the story that would be worked on next",
		Action: func(ctx context.Context, c *cli.Command) error {
			sel, err := app.Engine.FindNext(ctx)
			if err != nil {
				return err
			}
			return output(c, flags, sel, func(p *printer) { p.selection(sel) })
		},
	}
}

func statusCmd(flags *Flags, app *App) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show completion counts",
		Action: func(ctx context.Context, c *cli.Command) error {
			progress, err := app.Engine.IsComplete(ctx)
			if err != nil {
				return err
			}
			return output(c, flags, progress, func(p *printer) { p.progress(progress) })
		},
	}
}

func showCmd(flags *Flags, app *App) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one story",
		ArgsUsage: "STORY_ID",
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := storyID(c)
			if err != nil {
				return err
			}
			details, err := app.Engine.Details(ctx, id)
			if err != nil {
				return err
			}
			return output(c, flags, details, func(p *printer) { p.details(details) })
		},
	}
}

func completeCmd(flags *Flags, app *App) *cli.Command {
	var inPlace bool
	return &cli.Command{
		Name:      "complete",
		Usage:     "Mark a story completed and move it to the archive",
		ArgsUsage: "STORY_ID",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "in-place",
				Usage:       "mark completed without moving it to the archive",
				Destination: &inPlace,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := storyID(c)
			if err != nil {
				return err
			}

			var conf *stories.Confirmation
			if inPlace {
				conf, err = app.Engine.CompleteInPlace(ctx, id)
				if err != nil {
					return err
				}
				record(ctx, app, journal.Event{StoryID: id, Kind: journal.KindCompleted, Partition: string(stories.PartitionActive), Detail: conf.Tier})
			} else {
				conf, err = app.Engine.CompleteAndArchive(ctx, id)
				if err != nil {
					return err
				}
				switch {
				case !conf.AlreadyArchived:
					record(ctx, app, journal.Event{StoryID: id, Kind: journal.KindArchived, Partition: string(stories.PartitionArchive), Detail: conf.Tier})
				case conf.Tier != "":
					record(ctx, app, journal.Event{StoryID: id, Kind: journal.KindReconciled, Partition: string(stories.PartitionActive), Detail: conf.Tier})
				}
			}
			return output(c, flags, conf, func(p *printer) { p.confirmation(conf) })
		},
	}
}

func blockCmd(flags *Flags, app *App) *cli.Command {
	return &cli.Command{
		Name:      "block",
		Usage:     "Exclude a story from selection",
		ArgsUsage: "STORY_ID",
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := storyID(c)
			if err != nil {
				return err
			}
			conf, err := app.Engine.Block(ctx, id)
			if err != nil {
				return err
			}
			record(ctx, app, journal.Event{StoryID: id, Kind: journal.KindBlocked, Partition: string(stories.PartitionActive), Detail: conf.Tier})
			return output(c, flags, conf, func(p *printer) { p.confirmation(conf) })
		},
	}
}

func failCmd(flags *Flags, app *App) *cli.Command {
	return &cli.Command{
		Name:      "fail",
		Usage:     "Record a failed attempt at a story",
		ArgsUsage: "STORY_ID ATTEMPT_REF",
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := storyID(c)
			if err != nil {
				return err
			}
			ref := c.Args().Get(1)
			res, err := app.Engine.RecordFailure(ctx, id, ref)
			if err != nil {
				return err
			}
			record(ctx, app, journal.Event{StoryID: id, Kind: journal.KindFailure, Partition: string(stories.PartitionActive), Detail: ref})
			return output(c, flags, res, func(p *printer) { p.failure(res) })
		},
	}
}

func reconcileCmd(flags *Flags, app *App) *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Remove active stories that are already archived",
		Action: func(ctx context.Context, c *cli.Command) error {
			res, err := app.Engine.Reconcile(ctx)
			if err != nil {
				return err
			}
			for _, r := range res.Removed {
				record(ctx, app, journal.Event{StoryID: r.ID, Kind: journal.KindReconciled, Partition: string(stories.PartitionActive), Detail: r.Tier})
			}
			return output(c, flags, res, func(p *printer) { p.reconcile(res) })
		},
	}
}

func historyCmd(flags *Flags, app *App) *cli.Command {
	var limit int
	return &cli.Command{
		Name:      "history",
		Usage:     "Show recorded lifecycle events",
		ArgsUsage: "[STORY_ID]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum number of events",
				Value:       journal.DefaultLimit,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			j := app.Journal()
			if j == nil {
				return fmt.Errorf("journal is disabled")
			}

			var (
				events []journal.Event
				err    error
			)
			if id := stories.NormalizeID(c.Args().First()); id != "" {
				events, err = j.History(ctx, id, limit)
			} else {
				events, err = j.Recent(ctx, limit)
			}
			if err != nil {
				return err
			}
			return output(c, flags, events, func(p *printer) { p.events(events) })
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(ctx context.Context, c *cli.Command) error {
			_, err := fmt.Fprintf(c.Root().Writer, "storyloop %s\n", version())
			return err
		},
	}
}

// storyID returns the first argument in the form story ids are compared in.
func storyID(c *cli.Command) (string, error) {
	id := stories.NormalizeID(c.Args().First())
	if id == "" {
		return "", fmt.Errorf("story id is required")
	}
	return id, nil
}

// record appends e to the journal, if there is one.
func record(ctx context.Context, app *App, e journal.Event) {
	if obs := app.Observer(); obs != nil {
		obs.OnTransition(ctx, e)
	}
}
