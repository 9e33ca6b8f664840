package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"conduit/cmd/conduit/output"
	"conduit/domain/deployment"
	"conduit/internal/deploy"
	"conduit/internal/releases"
)

// DeployCommand manages the local Conduit deployment.
func DeployCommand() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Manage a local Conduit deployment",
		Commands: []*cli.Command{
			deploySetupCommand(),
			deployStartCommand(),
			deployStopCommand(),
			deployRemoveCommand(),
			deployUpdateCommand(),
			deployStatusCommand(),
			deployTagsCommand(),
			deployHistoryCommand(),
		},
	}
}

func userConfigFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Select the Conduit version and modules interactively",
	}
}

func targetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "target",
		Aliases: []string{"t"},
		Usage:   "Conduit release tag to deploy",
	}
}

func noBrowserFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "no-browser",
		Usage: "Do not open the Conduit UI once started",
	}
}

// withManager runs fn with a Manager and releases its resources afterwards.
func withManager(ctx context.Context, c *cli.Command, fn func(*deploy.Manager) error) error {
	svc, err := newServices(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.Updater().Hint(ctx, c.Root().ErrWriter)

	m, err := svc.Manager(ctx)
	if err != nil {
		return err
	}
	return fn(m)
}

func deploySetupCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Bootstrap a local Conduit deployment",
		Flags: []cli.Flag{userConfigFlag(), targetFlag(), noBrowserFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withManager(ctx, c, func(m *deploy.Manager) error {
				return m.Setup(ctx, deploy.SetupOptions{
					UserConfig:  c.Bool("config"),
					Target:      c.String("target"),
					OpenBrowser: !c.Bool("no-browser"),
				})
			})
		},
	}
}

func deployStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Bring up the active deployment",
		Flags: []cli.Flag{noBrowserFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withManager(ctx, c, func(m *deploy.Manager) error {
				return m.Start(ctx, deploy.StartOptions{OpenBrowser: !c.Bool("no-browser")})
			})
		},
	}
}

func deployStopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the active deployment",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withManager(ctx, c, func(m *deploy.Manager) error {
				return m.Stop(ctx)
			})
		},
	}
}

func deployRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:    "rm",
		Aliases: []string{"remove"},
		Usage:   "Remove the active deployment",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wipe-data",
				Usage: "Also remove the deployment's data volumes",
			},
			&cli.BoolFlag{
				Name:  "defaults",
				Usage: "Skip prompts and keep data unless --wipe-data is set",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withManager(ctx, c, func(m *deploy.Manager) error {
				return m.Remove(ctx, deploy.RemoveOptions{
					WipeData: c.Bool("wipe-data"),
					Defaults: c.Bool("defaults"),
				})
			})
		},
	}
}

func deployUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Move the active deployment to another Conduit release",
		Flags: []cli.Flag{userConfigFlag(), targetFlag(), noBrowserFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withManager(ctx, c, func(m *deploy.Manager) error {
				return m.Update(ctx, deploy.UpdateOptions{
					UserConfig:  c.Bool("config"),
					Target:      c.String("target"),
					OpenBrowser: !c.Bool("no-browser"),
				})
			})
		},
	}
}

func deployStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the active deployment",
		Flags: []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withManager(ctx, c, func(m *deploy.Manager) error {
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return render(c, statusTable{st}, st)
			})
		},
	}
}

func deployTagsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "List the supported release tags",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ui",
				Usage: "List Conduit UI tags instead",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := newServices(c)
			if err != nil {
				return err
			}
			defer svc.Close()

			repo := releases.RepoConduit
			if c.Bool("ui") {
				repo = releases.RepoConduitUI
			}
			tags, err := svc.Releases().AvailableTags(ctx, repo)
			if err != nil {
				return fmt.Errorf("failed to list %s releases: %w", repo, err)
			}
			for _, tag := range tags {
				fmt.Fprintln(c.Root().Writer, tag)
			}
			return nil
		},
	}
}

func deployHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show past deployment operations",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries, 0 for all",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "tag",
				Usage: "Only show entries for a release tag",
			},
			jsonFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := newServices(c)
			if err != nil {
				return err
			}
			defer svc.Close()

			repo, err := svc.History()
			if err != nil {
				return err
			}

			var events []deployment.Event
			if tag := c.String("tag"); tag != "" {
				events, err = repo.FindByTag(ctx, tag)
			} else {
				events, err = repo.FindAll(ctx, int(c.Int("limit")))
			}
			if err != nil {
				return fmt.Errorf("failed to read deployment history: %w", err)
			}
			return render(c, historyTable(events), events)
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of a table",
	}
}

// render prints table through the table formatter, or data as JSON with --json.
func render(c *cli.Command, table output.Tabular, data any) error {
	var (
		text string
		err  error
	)
	if c.Bool("json") {
		text, err = output.New(true).Format(data)
	} else {
		text, err = output.New(false).Format(table)
	}
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprintln(c.Root().Writer, text)
	return nil
}

type statusTable struct {
	st *deploy.Status
}

func (s statusTable) Header() output.Row {
	return output.Row{"TAG", "UI TAG", "MODULES", "RUNNING", "UI"}
}

func (s statusTable) Rows() []output.Row {
	running := "no"
	if s.st.Running {
		running = "yes"
	}
	return []output.Row{{s.st.Tag, s.st.UITag, strings.Join(s.st.Modules, ","), running, s.st.UIURL}}
}

type historyTable []deployment.Event

func (h historyTable) Header() output.Row {
	return output.Row{"TIME", "ACTION", "TAG", "UI TAG", "OUTCOME", "DETAIL"}
}

func (h historyTable) Rows() []output.Row {
	rows := make([]output.Row, 0, len(h))
	for _, e := range h {
		rows = append(rows, output.Row{
			e.CreatedAt.Local().Format(time.DateTime),
			string(e.Action),
			e.Tag,
			e.UITag,
			string(e.Outcome),
			e.Detail,
		})
	}
	return rows
}
