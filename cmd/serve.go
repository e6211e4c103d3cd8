package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"feedhound/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a read-only HTTP API over the database",
		Description: `Starts an HTTP server exposing the stored sources and items as
JSON, plus Prometheus metrics on /metrics. The server never fetches;
run 'feedhound fetch' (e.g. from cron) to refresh the database.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.IntFlag{
				Name:    "port",
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"FEEDHOUND_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			store, err := openStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			app := server.Server(server.Config{Store: store})
			return app.Listen(fmt.Sprintf(":%d", ctx.Int("port")))
		},
	}
}
