package cmd

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feedhound/aggregator"
	"feedhound/config"
	"feedhound/db"
	"feedhound/fetch"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Run one fetch cycle and print the newest items",
		Description: `Fetches all enabled sources concurrently, reconciles the results
into the database and prints the merged item history, newest first.

With --use-file or --sources the database is bypassed entirely:
each listed source is fetched unconditionally, parsed and merged
in memory. This mode keeps no state and performs no deduplication
against history.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:  "sources",
				Usage: "TOML sources file (switches to file-source mode)",
			},
			&cli.BoolFlag{
				Name:  "use-file",
				Usage: "Force file-source mode even without --sources",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only include items from sources with this category",
			},
			&cli.IntFlag{
				Name:  "since",
				Usage: "Only include items published in the last N hours",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Limit the number of printed items",
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Value:   aggregator.DefaultConcurrency,
				Usage:   "Maximum number of in-flight fetches",
				EnvVars: []string{"FEEDHOUND_CONCURRENCY"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   20 * time.Second,
				Usage:   "Per-request fetch timeout",
				EnvVars: []string{"FEEDHOUND_TIMEOUT"},
			},
			&cli.DurationFlag{
				Name:  "cycle-timeout",
				Usage: "Deadline for the whole cycle; unfinished fetches count as transient failures",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print items as JSON",
			},
		},
		Action: func(ctx *cli.Context) error {
			runCtx := ctx.Context
			if deadline := ctx.Duration("cycle-timeout"); deadline > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, deadline)
				defer cancel()
			}

			var since *time.Time
			if hours := ctx.Int("since"); hours > 0 {
				cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
				since = &cutoff
			}

			opts := aggregator.Options{
				Since:       since,
				Category:    ctx.String("category"),
				Limit:       ctx.Int("limit"),
				Concurrency: ctx.Int("concurrency"),
			}
			client := fetch.NewClient(ctx.Duration("timeout"))

			if ctx.Bool("use-file") || ctx.String("sources") != "" {
				sources, err := loadStaticSources(ctx.String("sources"))
				if err != nil {
					return err
				}
				items, report := aggregator.FetchStatic(runCtx, client, sources, opts)
				summarizeReport(report)
				return printItems(items, ctx.Bool("json"))
			}

			store, err := openStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			items, report, err := aggregator.New(store, client).RunCycle(runCtx, opts)
			if err != nil {
				return err
			}
			summarizeReport(report)
			return printItems(items, ctx.Bool("json"))
		},
	}
}

// loadStaticSources resolves the file-source list: an explicit path, a
// sources.toml next to the working directory, or the built-in set.
func loadStaticSources(path string) ([]config.StaticSource, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultSourcesPath); err == nil {
			path = config.DefaultSourcesPath
		}
	}
	if path == "" {
		log.Info("No sources file found, using built-in sources")
		return config.BuiltinStaticSources(), nil
	}
	return config.LoadSourcesFile(path)
}

// openStore migrates the database and seeds the built-in sources into a
// fresh one, so the tool works out of the box.
func openStore(path string) (*db.Store, error) {
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := store.SeedSources(config.BuiltinSources()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
