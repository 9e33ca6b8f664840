package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"conduit/version"
)

// CLICommand manages the conduit binary itself.
func CLICommand() *cli.Command {
	return &cli.Command{
		Name:  "cli",
		Usage: "Manage the CLI installation",
		Commands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Update the CLI to the latest release",
				Action: func(ctx context.Context, c *cli.Command) error {
					svc, err := newServices(c)
					if err != nil {
						return err
					}
					defer svc.Close()

					return svc.Updater().Update(ctx)
				},
			},
		},
	}
}

// VersionCommand prints the build version.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the CLI version",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Fprintln(c.Root().Writer, version.Version)
			return nil
		},
	}
}
