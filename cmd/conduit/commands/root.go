package commands

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"conduit/cmd/conduit/config"
	"conduit/version"
)

// NewApp creates the root CLI application
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "conduit",
		Usage:   "Conduit CLI - deploy and manage Conduit locally",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error)",
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			DeployCommand(),
			TagCommand(),
			InitCommand(),
			CLICommand(),
			VersionCommand(),
		},
	}
}

// setupLogging applies --log-level, falling back to CONDUIT_LOG_LEVEL and the config file.
func setupLogging(ctx context.Context, c *cli.Command) (context.Context, error) {
	level := c.String("log-level")
	if level == "" {
		cfg, err := config.Load()
		if err != nil {
			return ctx, fmt.Errorf("failed to load config: %w", err)
		}
		level = cfg.LogLevel()
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return ctx, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	errWriter := c.Root().ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	log.SetOutput(errWriter)
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	return ctx, nil
}
