package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedhound",
		Usage: "Aggregate RSS and Atom feeds into a local database",
		Description: `feedhound fetches RSS 2.0 and Atom 1.0 feeds, deduplicates their
		entries into an SQLite database and answers time-windowed,
		category-filtered queries over the accumulated history.

		Fetches are conditional: ETag and Last-Modified validators are
		cached per source, so unchanged feeds cost a 304 and no parsing.

		Flags can generally be set via environment variables, e.g.:

		--database => FEEDHOUND_DATABASE=data/feeds.db
		--concurrency => FEEDHOUND_CONCURRENCY=8
		`,
		Commands: []*cli.Command{
			initCmd(),
			fetchCmd(),
			addCmd(),
			listCmd(),
			removeCmd(),
			enableCmd(),
			disableCmd(),
			sourcesCmd(),
			serveCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func databaseFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   "data/feeds.db",
		Usage:   "SQLite database file location",
		EnvVars: []string{"FEEDHOUND_DATABASE"},
	}
}
