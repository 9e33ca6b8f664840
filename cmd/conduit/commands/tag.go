package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"conduit/internal/releases"
	"conduit/internal/versionutil"
)

// TagCommand exposes release tag ordering and UI matching.
func TagCommand() *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "Compare and match release tags",
		Commands: []*cli.Command{
			tagCompareCommand(),
			tagMatchUICommand(),
		},
	}
}

func tagCompareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Order two release tags",
		ArgsUsage: "<tag-a> <tag-b>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return errors.New("two tags are required")
			}
			cmp, err := versionutil.CompareTags(c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, cmp)
			return nil
		},
	}
}

func tagMatchUICommand() *cli.Command {
	return &cli.Command{
		Name:      "match-ui",
		Usage:     "Pick the Conduit UI release compatible with a Conduit tag",
		ArgsUsage: "<conduit-tag>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "tags",
				Usage: "Comma separated UI tags to choose from instead of the published releases",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return errors.New("a Conduit tag is required")
			}
			primary := c.Args().First()

			var companions []string
			if list := c.String("tags"); list != "" {
				for _, t := range strings.Split(list, ",") {
					if t = strings.TrimSpace(t); t != "" {
						companions = append(companions, t)
					}
				}
			} else {
				svc, err := newServices(c)
				if err != nil {
					return err
				}
				defer svc.Close()

				companions, err = svc.Releases().AvailableTags(ctx, releases.RepoConduitUI)
				if err != nil {
					return fmt.Errorf("failed to list %s releases: %w", releases.RepoConduitUI, err)
				}
			}

			ui, err := versionutil.MatchingUITag(primary, companions)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, ui)
			return nil
		},
	}
}
