// Package deploy manages the local Conduit deployment: selecting release tags,
// fetching the compose manifests and driving compose through its lifecycle.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"conduit/domain/deployment"
	"conduit/internal/compose"
	"conduit/internal/preflight"
	"conduit/internal/prompt"
	"conduit/internal/releases"
)

const (
	// DefaultUIURL is where the Conduit UI listens once started.
	DefaultUIURL = "http://localhost:8080"
	// DefaultAdminURL is the administrative API of a local deployment.
	DefaultAdminURL = "http://localhost:3030"

	coreContainer = "conduit"
	lockTimeout   = 30 * time.Minute
)

var (
	// ErrAborted is returned when the user declines to continue.
	ErrAborted = errors.New("aborted by user")

	ErrNoDeployment    = errors.New("no deployment available")
	ErrMissingManifest = errors.New("deployment files could not be retrieved, did you run deploy setup?")
	ErrUnknownTag      = errors.New("unknown or unsupported Conduit tag")
	ErrPreflightFailed = errors.New("preflight checks failed")

	errUpToDate = errors.New("deployment up to date")
)

type ReleaseLister interface {
	AvailableTags(ctx context.Context, repo string) ([]string, error)
}

type Composer interface {
	Up(ctx context.Context, opts compose.Options) error
	Stop(ctx context.Context, opts compose.Options) error
	Remove(ctx context.Context, opts compose.Options, removeVolumes bool) error
}

type Engine interface {
	ContainerIsUp(ctx context.Context, name string) (bool, error)
	ListVolumes(ctx context.Context, nameFilter string) ([]string, error)
	RemoveVolume(ctx context.Context, name string) error
}

type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

type Preflight interface {
	Check(ctx context.Context, ports []uint32) *preflight.Result
}

type Readiness interface {
	WaitReady(ctx context.Context) error
}

type Locker interface {
	Acquire(expiration time.Duration, command string) error
	Release() error
}

// Config wires the collaborators of a Manager. History, Preflight, Readiness,
// Lock and OpenURL are optional.
type Config struct {
	Paths         Paths
	Releases      ReleaseLister
	Compose       Composer
	Engine        Engine
	Fetcher       Fetcher
	Prompter      prompt.Prompter
	History       deployment.Repository
	Preflight     Preflight
	Readiness     Readiness
	Lock          Locker
	Out           io.Writer
	RawContentURL string
	Organization  string
	UIURL         string
	OpenURL       func(url string) error
	Environ       func() []string
}

type Manager struct {
	paths         Paths
	store         *Store
	releases      ReleaseLister
	compose       Composer
	engine        Engine
	fetcher       Fetcher
	prompter      prompt.Prompter
	history       deployment.Repository
	preflight     Preflight
	readiness     Readiness
	lock          Locker
	out           io.Writer
	rawContentURL string
	organization  string
	uiURL         string
	openURL       func(url string) error
	environ       func() []string
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		paths:         cfg.Paths,
		store:         NewStore(cfg.Paths),
		releases:      cfg.Releases,
		compose:       cfg.Compose,
		engine:        cfg.Engine,
		fetcher:       cfg.Fetcher,
		prompter:      cfg.Prompter,
		history:       cfg.History,
		preflight:     cfg.Preflight,
		readiness:     cfg.Readiness,
		lock:          cfg.Lock,
		out:           cfg.Out,
		rawContentURL: cfg.RawContentURL,
		organization:  cfg.Organization,
		uiURL:         cfg.UIURL,
		openURL:       cfg.OpenURL,
		environ:       cfg.Environ,
	}
	if m.out == nil {
		m.out = io.Discard
	}
	if m.prompter == nil {
		m.prompter = prompt.Defaults{}
	}
	if m.rawContentURL == "" {
		m.rawContentURL = DefaultRawContentURL
	}
	if m.organization == "" {
		m.organization = releases.DefaultOrganization
	}
	if m.uiURL == "" {
		m.uiURL = DefaultUIURL
	}
	if m.environ == nil {
		m.environ = os.Environ
	}
	return m
}

// Store exposes the on-disk deployment state.
func (m *Manager) Store() *Store {
	return m.store
}

type StartOptions struct {
	OpenBrowser bool
}

type SetupOptions struct {
	UserConfig  bool
	Target      string
	OpenBrowser bool
}

type RemoveOptions struct {
	WipeData bool
	Defaults bool
}

type UpdateOptions struct {
	UserConfig  bool
	Target      string
	OpenBrowser bool
}

// Status describes the active deployment.
type Status struct {
	Tag     string   `json:"tag"`
	UITag   string   `json:"ui_tag"`
	Modules []string `json:"modules"`
	Running bool     `json:"running"`
	UIURL   string   `json:"ui_url"`
}

// run serializes a state-changing operation and records its outcome.
func (m *Manager) run(ctx context.Context, action deployment.Action, fn func(ev *deployment.Event) error) error {
	if m.lock != nil {
		if err := m.lock.Acquire(lockTimeout, "deploy "+string(action)); err != nil {
			return err
		}
		defer func() {
			if err := m.lock.Release(); err != nil {
				log.WithError(err).Warn("failed to release deployment lock")
			}
		}()
	}

	ev := &deployment.Event{Action: action}
	err := fn(ev)
	switch {
	case errors.Is(err, errUpToDate):
		return nil
	case errors.Is(err, ErrAborted):
		return err
	}
	m.record(ctx, ev, err)
	return err
}

func (m *Manager) record(ctx context.Context, ev *deployment.Event, err error) {
	if m.history == nil {
		return
	}
	if err != nil {
		ev.Outcome = deployment.OutcomeFailed
		ev.Detail = err.Error()
	} else {
		ev.Outcome = deployment.OutcomeSucceeded
	}
	if herr := m.history.Create(ctx, ev); herr != nil {
		log.WithError(herr).Warn("failed to record deployment history")
	}
}

func describe(ev *deployment.Event, tag string, cfg *Configuration) {
	ev.Tag = tag
	if cfg != nil {
		ev.UITag = cfg.UITag()
		ev.Modules = slices.Clone(cfg.Modules)
	}
}

func (m *Manager) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

func (m *Manager) println(args ...any) {
	fmt.Fprintln(m.out, args...)
}

var (
	friendlyAborts = []string{
		"Alright then, see you around!",
		"Don't be a stranger!",
		"After a while, crocodile.",
	}
	grumpyAborts = []string{
		"Hey, make up your mind buddy!",
		"I am sworn to carry your burdens...",
		"How dare you disturb my slumber over this?",
	}
)

func (m *Manager) abort(lines []string) error {
	m.println(lines[rand.IntN(len(lines))])
	return ErrAborted
}

// activeTag returns the active tag or ErrNoDeployment.
func (m *Manager) activeTag() (string, error) {
	tag, err := m.store.ActiveTag()
	if err != nil {
		return "", err
	}
	if tag == "" {
		return "", ErrNoDeployment
	}
	return tag, nil
}

// activeDeployment loads the active tag, its configuration and verifies its
// manifests are present.
func (m *Manager) activeDeployment() (string, *Configuration, error) {
	tag, err := m.activeTag()
	if err != nil {
		return "", nil, err
	}
	if !m.store.HasManifests(tag) {
		return "", nil, ErrMissingManifest
	}
	cfg, err := m.store.LoadConfiguration(tag)
	if err != nil {
		return "", nil, err
	}
	return tag, cfg, nil
}

func (m *Manager) composeOptions(tag string, cfg *Configuration) (compose.Options, map[string]string, error) {
	tp := m.paths.ForTag(tag)
	env, merged, err := buildEnv(m.environ(), tp.Env, cfg)
	if err != nil {
		return compose.Options{}, nil, err
	}
	return compose.Options{
		Dir:      tp.ManifestDir,
		File:     tp.Compose,
		Env:      env,
		Profiles: cfg.Modules,
	}, merged, nil
}

// IsRunning reports whether the active deployment's core container is up.
func (m *Manager) IsRunning(ctx context.Context) (bool, error) {
	tag, err := m.store.ActiveTag()
	if err != nil || tag == "" {
		return false, err
	}
	return m.engine.ContainerIsUp(ctx, coreContainer)
}

func (m *Manager) Status(ctx context.Context) (*Status, error) {
	tag, err := m.activeTag()
	if err != nil {
		return nil, err
	}
	cfg, err := m.store.LoadConfiguration(tag)
	if err != nil {
		return nil, err
	}
	running, err := m.IsRunning(ctx)
	if err != nil {
		log.WithError(err).Warn("could not determine whether the deployment is running")
	}
	return &Status{
		Tag:     tag,
		UITag:   cfg.UITag(),
		Modules: cfg.Modules,
		Running: running,
		UIURL:   m.uiURL,
	}, nil
}

// Start brings up the active deployment.
func (m *Manager) Start(ctx context.Context, opts StartOptions) error {
	return m.run(ctx, deployment.ActionStart, func(ev *deployment.Event) error {
		tag, cfg, err := m.activeDeployment()
		if err != nil {
			return err
		}
		describe(ev, tag, cfg)
		return m.startDeployment(ctx, tag, cfg, opts)
	})
}

func (m *Manager) startDeployment(ctx context.Context, tag string, cfg *Configuration, opts StartOptions) error {
	composeOpts, env, err := m.composeOptions(tag, cfg)
	if err != nil {
		return err
	}

	if m.preflight != nil {
		if err := m.checkHost(ctx, composeOpts.File, cfg.Modules, env); err != nil {
			return err
		}
	}

	m.printf("Starting Conduit %s...\n", tag)
	if err := m.compose.Up(ctx, composeOpts); err != nil {
		return err
	}
	if m.readiness != nil {
		m.println("Waiting for Conduit to become ready...")
		if err := m.readiness.WaitReady(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.printf("Warning: Conduit is not healthy yet, check the container logs (%v)\n", err)
		}
	}
	m.printf("Conduit UI available at %s\n", m.uiURL)

	if opts.OpenBrowser && m.openURL != nil {
		if err := m.openURL(m.uiURL); err != nil {
			log.WithError(err).Warn("failed to open browser")
		}
	}
	return nil
}

func (m *Manager) checkHost(ctx context.Context, composePath string, modules []string, env map[string]string) error {
	file, err := compose.LoadFile(composePath)
	if err != nil {
		return err
	}
	ports, err := file.HostPorts(modules, env)
	if err != nil {
		return err
	}

	running, err := m.IsRunning(ctx)
	if err != nil {
		log.WithError(err).Debug("skipping port checks, deployment state unknown")
		ports = nil
	} else if running {
		// Our own containers hold the ports of a running deployment.
		ports = nil
	}

	result := m.preflight.Check(ctx, ports)
	for _, w := range result.Warnings {
		m.printf("Warning: %s\n", w)
	}
	if !result.Passed {
		return fmt.Errorf("%w: %s", ErrPreflightFailed, result.Error())
	}
	return nil
}

// Stop brings down the active deployment without removing it.
func (m *Manager) Stop(ctx context.Context) error {
	return m.run(ctx, deployment.ActionStop, func(ev *deployment.Event) error {
		tag, cfg, err := m.activeDeployment()
		if err != nil {
			return err
		}
		describe(ev, tag, cfg)
		return m.stopDeployment(ctx, tag, cfg)
	})
}

func (m *Manager) stopDeployment(ctx context.Context, tag string, cfg *Configuration) error {
	composeOpts, _, err := m.composeOptions(tag, cfg)
	if err != nil {
		return err
	}
	m.printf("Stopping Conduit %s...\n", tag)
	return m.compose.Stop(ctx, composeOpts)
}
