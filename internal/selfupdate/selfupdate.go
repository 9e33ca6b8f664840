// Package selfupdate upgrades the CLI through the official bootstrap script.
package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"conduit/internal/cmdexec"
	"conduit/internal/releases"
	"conduit/internal/versionutil"
)

const (
	DefaultScriptURL = "https://getconduit.dev/bootstrap"

	scriptName  = "get-conduit.sh"
	hintTimeout = 3 * time.Second
)

var ErrUnsupportedPlatform = errors.New("self-managed CLI updates are not supported on your platform")

type LatestReleaser interface {
	LatestTag(ctx context.Context, repo string) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

type Runner interface {
	Run(ctx context.Context, cmd cmdexec.Command) error
}

// InstallType identifies who manages the CLI binary.
type InstallType int

const (
	InstallSystem InstallType = iota
	InstallHomebrew
)

type Config struct {
	Releases       LatestReleaser
	Downloader     Downloader
	Runner         Runner
	CacheDir       string
	CurrentVersion string
	ScriptURL      string
	GOOS           string
	Executable     func() (string, error)
	Out            io.Writer
}

type Updater struct {
	releases   LatestReleaser
	downloader Downloader
	runner     Runner
	cacheDir   string
	current    string
	scriptURL  string
	goos       string
	executable func() (string, error)
	out        io.Writer
}

func New(cfg Config) *Updater {
	u := &Updater{
		releases:   cfg.Releases,
		downloader: cfg.Downloader,
		runner:     cfg.Runner,
		cacheDir:   cfg.CacheDir,
		current:    cfg.CurrentVersion,
		scriptURL:  cfg.ScriptURL,
		goos:       cfg.GOOS,
		executable: cfg.Executable,
		out:        cfg.Out,
	}
	if u.scriptURL == "" {
		u.scriptURL = DefaultScriptURL
	}
	if u.goos == "" {
		u.goos = runtime.GOOS
	}
	if u.executable == nil {
		u.executable = os.Executable
	}
	if u.out == nil {
		u.out = io.Discard
	}
	return u
}

// Info is the result of an update check.
type Info struct {
	Current   string
	Latest    string
	Available bool
}

// Check compares the running version with the latest CLI release. Development
// builds never report updates.
func (u *Updater) Check(ctx context.Context) (*Info, error) {
	current := currentTag(u.current)
	if current == "" || current == "dev" {
		return &Info{Current: current}, nil
	}

	latest, err := u.releases.LatestTag(ctx, releases.RepoCLI)
	if err != nil {
		return nil, err
	}

	info := &Info{Current: current, Latest: latest}
	newer, err := versionutil.IsNewer(latest, current)
	if err != nil {
		log.WithError(err).Debug("falling back to tag inequality for update check")
		info.Available = latest != current
		return info, nil
	}
	info.Available = newer
	return info, nil
}

func currentTag(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// PlatformSupported reports whether the bootstrap script can run here.
func (u *Updater) PlatformSupported() bool {
	return u.goos == "linux" || u.goos == "darwin"
}

// InstallType inspects the running binary's location.
func (u *Updater) InstallType() InstallType {
	exe, err := u.executable()
	if err != nil {
		return InstallSystem
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	if strings.Contains(exe, "/Cellar/") || strings.Contains(exe, "/homebrew/") {
		return InstallHomebrew
	}
	return InstallSystem
}

// Update installs the latest CLI release when one is available.
func (u *Updater) Update(ctx context.Context) error {
	if !u.PlatformSupported() {
		return ErrUnsupportedPlatform
	}

	info, err := u.Check(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve latest CLI release info: %w", err)
	}
	if !info.Available {
		fmt.Fprintln(u.out, "No CLI updates available.")
		return nil
	}

	if u.InstallType() == InstallHomebrew {
		fmt.Fprintln(u.out, "Your CLI updates are handled by Homebrew, run: brew upgrade conduit")
		return nil
	}

	if err := os.MkdirAll(u.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	script := filepath.Join(u.cacheDir, scriptName)
	defer os.Remove(script)

	fmt.Fprintf(u.out, "Updating CLI %s -> %s...\n", info.Current, info.Latest)
	if err := u.downloader.Download(ctx, u.scriptURL, script); err != nil {
		return fmt.Errorf("failed to retrieve update script: %w", err)
	}
	if err := u.runner.Run(ctx, cmdexec.Command{Name: "sh", Args: []string{script, "--no-deploy"}}); err != nil {
		return fmt.Errorf("failed to update CLI: %w", err)
	}
	return nil
}

// Hint prints a notice when a newer CLI exists. Failures are only logged.
func (u *Updater) Hint(ctx context.Context, w io.Writer) {
	ctx, cancel := context.WithTimeout(ctx, hintTimeout)
	defer cancel()

	info, err := u.Check(ctx)
	if err != nil {
		log.WithError(err).Debug("skipping CLI update hint")
		return
	}
	if info.Available {
		fmt.Fprintf(w, "A new CLI version is available (%s -> %s), run 'conduit cli update'.\n", info.Current, info.Latest)
	}
}
