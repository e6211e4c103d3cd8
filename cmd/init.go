package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"feedhound/config"
	"feedhound/db"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:        "init",
		Usage:       "Initialize the database and seed built-in sources",
		Description: `Runs database migrations and, if the database holds no sources yet, seeds the built-in starter set. Safe to run repeatedly.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			store, err := db.Open(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			seeded, err := store.SeedSources(config.BuiltinSources())
			if err != nil {
				return err
			}
			if seeded > 0 {
				fmt.Printf("Initialized %s with %d built-in sources\n", ctx.String("database"), seeded)
			} else {
				fmt.Printf("Database %s already initialized\n", ctx.String("database"))
			}
			return nil
		},
	}
}
