package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feedhound/aggregator"
	"feedhound/config"
	"feedhound/fetch"
)

func addCmd() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a feed source to the database",
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:     "url",
				Usage:    "RSS or Atom feed URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Category tag for filtering",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Human readable label; defaults to the feed's own title",
			},
			&cli.BoolFlag{
				Name:  "no-fetch",
				Usage: "Skip the immediate fetch after adding",
			},
		},
		Action: func(ctx *cli.Context) error {
			store, err := openStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.AddSource(ctx.String("url"), ctx.String("category"), ctx.String("label"), false)
			if err != nil {
				return err
			}
			fmt.Printf("Added source: id=%d url=%s category=%s\n", id, ctx.String("url"), ctx.String("category"))

			if ctx.Bool("no-fetch") {
				return nil
			}

			client := fetch.NewClient(0)
			_, report, err := aggregator.New(store, client).RunCycle(ctx.Context, aggregator.Options{})
			if err != nil {
				return err
			}
			summarizeReport(report)
			return nil
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List feed sources in the database",
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include disabled sources",
			},
		},
		Action: func(ctx *cli.Context) error {
			store, err := openStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			sources, err := store.ListSources(!ctx.Bool("all"))
			if err != nil {
				return err
			}

			fmt.Printf("%d sources:\n", len(sources))
			for _, src := range sources {
				marker := "-"
				if src.Builtin {
					marker = "*"
				}
				state := ""
				if !src.Enabled {
					state = " (disabled)"
				}
				fmt.Printf("%s %3d [%s] %s  -> %s%s\n", marker, src.ID, src.Category, src.DisplayName(), src.URL, state)
			}
			return nil
		},
	}
}

func removeCmd() *cli.Command {
	return &cli.Command{
		Name:  "remove",
		Usage: "Remove a source and all of its items",
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.Int64Flag{
				Name:     "id",
				Usage:    "Source id (see list)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: func(ctx *cli.Context) error {
			store, err := openStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			id := ctx.Int64("id")
			src, err := store.GetSource(id)
			if err != nil {
				return err
			}

			if !ctx.Bool("yes") {
				answer, err := prompt.New().
					Ask(fmt.Sprintf("Remove %q and all of its items? (y/N)", src.DisplayName())).
					Input("n")
				if err != nil {
					return err
				}
				if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := store.RemoveSource(id); err != nil {
				return err
			}
			fmt.Printf("Removed source %d (%s)\n", id, src.URL)
			return nil
		},
	}
}

func enableCmd() *cli.Command {
	return setEnabledCmd("enable", "Re-enable a disabled source", true)
}

func disableCmd() *cli.Command {
	return setEnabledCmd("disable", "Disable a source without removing it", false)
}

func setEnabledCmd(name, usage string, enabled bool) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.Int64Flag{
				Name:     "id",
				Usage:    "Source id (see list)",
				Required: true,
			},
		},
		Action: func(ctx *cli.Context) error {
			store, err := openStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetSourceEnabled(ctx.Int64("id"), enabled); err != nil {
				return err
			}
			fmt.Printf("Source %d %sd\n", ctx.Int64("id"), name)
			return nil
		},
	}
}

func sourcesCmd() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Show the file-mode sources configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sources",
				Usage: "TOML sources file",
			},
		},
		Action: func(ctx *cli.Context) error {
			path := ctx.String("sources")
			if path == "" {
				if _, err := os.Stat(config.DefaultSourcesPath); err == nil {
					path = config.DefaultSourcesPath
				}
			}

			var sources []config.StaticSource
			if path == "" {
				sources = config.BuiltinStaticSources()
				fmt.Println("Built-in sources (create sources.toml to override):")
			} else {
				var err error
				sources, err = config.LoadSourcesFile(path)
				if err != nil {
					return err
				}
				fmt.Printf("Sources from %s:\n", path)
			}

			byCategory := lo.GroupBy(sources, func(s config.StaticSource) string {
				return s.Category
			})
			for category, group := range byCategory {
				if category == "" {
					category = "(uncategorized)"
				}
				fmt.Printf("- %s: %d sources\n", category, len(group))
			}
			log.WithField("total", len(sources)).Debug("Sources loaded")
			return nil
		},
	}
}
