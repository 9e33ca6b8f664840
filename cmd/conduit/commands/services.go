package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"conduit/cmd/conduit/config"
	"conduit/domain/deployment"
	"conduit/internal/cmdexec"
	"conduit/internal/compose"
	"conduit/internal/dbconn"
	"conduit/internal/deploy"
	"conduit/internal/docker"
	"conduit/internal/download"
	"conduit/internal/health"
	"conduit/internal/lockfile"
	"conduit/internal/preflight"
	"conduit/internal/prompt"
	"conduit/internal/releases"
	gormrepo "conduit/internal/repository/gorm"
	"conduit/internal/selfupdate"
	"conduit/version"
)

const historyDB = "history.db"

// newPrompter is swapped in tests.
var newPrompter = func() prompt.Prompter {
	return prompt.NewTerminal()
}

// services builds the collaborators of a command on demand and closes
// whatever it opened.
type services struct {
	cfg     *config.Config
	out     io.Writer
	exec    *cmdexec.Executor
	closers []func() error
}

func newServices(c *cli.Command) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	exec := cmdexec.New()
	exec.Stdout = c.Root().Writer
	exec.Stderr = c.Root().ErrWriter
	return &services{cfg: cfg, out: c.Root().Writer, exec: exec}, nil
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.WithError(err).Debug("failed to release resource")
		}
	}
	s.closers = nil
}

func (s *services) Releases() *releases.Client {
	return releases.NewClient(s.cfg.GitHubToken(),
		releases.WithBaseURL(s.cfg.GitHubAPIURL()),
		releases.WithOrganization(s.cfg.Organization()),
	)
}

func (s *services) History() (deployment.Repository, error) {
	db, err := dbconn.Open(dbconn.WithPath(filepath.Join(s.cfg.Dirs().Data, historyDB)))
	if err != nil {
		return nil, fmt.Errorf("failed to open deployment history: %w", err)
	}
	s.closers = append(s.closers, func() error { return dbconn.Close(db) })

	if err := dbconn.Migrate(db, &deployment.Event{}); err != nil {
		return nil, err
	}
	return gormrepo.NewEventRepository(db), nil
}

func (s *services) Manager(ctx context.Context) (*deploy.Manager, error) {
	engine, err := docker.New()
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, engine.Close)
	if err := engine.Ping(ctx); err != nil {
		return nil, err
	}

	runner, err := compose.Detect(ctx, s.exec, s.cfg.ComposeCommand())
	if err != nil {
		return nil, err
	}
	log.WithField("compose", runner.String()).Debug("using compose")

	history, err := s.History()
	if err != nil {
		log.WithError(err).Warn("deployment history disabled")
		history = nil
	}

	dirs := s.cfg.Dirs()
	paths := deploy.NewPaths(dirs.Config, dirs.Cache)

	return deploy.NewManager(deploy.Config{
		Paths:         paths,
		Releases:      s.Releases(),
		Compose:       runner,
		Engine:        engine,
		Fetcher:       download.New(download.DefaultPolicy()),
		Prompter:      newPrompter(),
		History:       history,
		Preflight:     s.Preflight(),
		Readiness:     health.New(health.Config{URL: deploy.DefaultAdminURL + "/health"}),
		Lock:          lockfile.New(paths.LockFile()),
		Out:           s.out,
		RawContentURL: s.cfg.RawContentURL(),
		Organization:  s.cfg.Organization(),
		UIURL:         s.cfg.UIURL(),
		OpenURL:       s.openBrowser(ctx),
	}), nil
}

// Preflight measures free disk space where manifests are cached.
func (s *services) Preflight() *preflight.Checker {
	return preflight.New(preflight.Config{CacheDir: s.cfg.Dirs().Cache})
}

func (s *services) Updater() *selfupdate.Updater {
	return selfupdate.New(selfupdate.Config{
		Releases:       s.Releases(),
		Downloader:     download.New(download.DefaultPolicy()),
		Runner:         s.exec,
		CacheDir:       s.cfg.Dirs().Cache,
		CurrentVersion: version.Version,
		Out:            s.out,
	})
}

func (s *services) openBrowser(ctx context.Context) func(string) error {
	return func(url string) error {
		name := "xdg-open"
		switch runtime.GOOS {
		case "darwin":
			name = "open"
		case "windows":
			return errors.New("opening a browser is not supported on windows")
		}
		_, err := s.exec.Output(ctx, name, url)
		return err
	}
}
