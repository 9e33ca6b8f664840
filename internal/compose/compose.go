// Package compose drives the docker compose CLI for a deployment manifest.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	log "github.com/sirupsen/logrus"

	"conduit/internal/cmdexec"
)

// ErrComposeNotFound is returned when neither compose v2 nor v1 is installed.
var ErrComposeNotFound = errors.New("could not detect Docker Compose version, is Docker Compose installed?")

// Executor runs compose processes.
type Executor interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
	Run(ctx context.Context, cmd cmdexec.Command) error
}

// Runner invokes a detected compose binary.
type Runner struct {
	name    string
	prefix  []string
	version int
	exec    Executor
}

// Options select the manifest a compose command operates on.
type Options struct {
	Dir      string
	File     string
	Env      []string
	Profiles []string
}

// Detect picks the compose command. A non-empty override is split into words
// and used verbatim; otherwise "docker compose" (v2) is preferred over the
// standalone "docker-compose" (v1) binary.
func Detect(ctx context.Context, exec Executor, override string) (*Runner, error) {
	if strings.TrimSpace(override) != "" {
		words, err := shellwords.Parse(override)
		if err != nil {
			return nil, fmt.Errorf("invalid compose command %q: %w", override, err)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("invalid compose command %q", override)
		}
		log.WithField("command", override).Debug("using configured compose command")
		return &Runner{name: words[0], prefix: words[1:], version: 2, exec: exec}, nil
	}

	if out, err := exec.Output(ctx, "docker", "compose", "version", "--short"); err == nil {
		if major(out) >= 2 {
			return &Runner{name: "docker", prefix: []string{"compose"}, version: 2, exec: exec}, nil
		}
	} else {
		log.WithError(err).Debug("docker compose plugin not available")
	}

	if out, err := exec.Output(ctx, "docker-compose", "version", "--short"); err == nil {
		if major(out) == 1 {
			return &Runner{name: "docker-compose", version: 1, exec: exec}, nil
		}
	} else {
		log.WithError(err).Debug("docker-compose binary not available")
	}

	return nil, ErrComposeNotFound
}

// NewRunner builds a runner for a known compose command.
func NewRunner(exec Executor, version int, name string, prefix ...string) *Runner {
	return &Runner{name: name, prefix: prefix, version: version, exec: exec}
}

// major extracts the leading number of a version string like "2.24.6" or "v2.24.6".
func major(version string) int {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	end := strings.IndexFunc(version, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		version = version[:end]
	}
	n, err := strconv.Atoi(version)
	if err != nil {
		return 0
	}
	return n
}

// Version is the compose major version, 1 or 2.
func (r *Runner) Version() int {
	return r.version
}

func (r *Runner) String() string {
	return strings.Join(append([]string{r.name}, r.prefix...), " ")
}

// Up creates and starts the containers of the active profiles in the background.
func (r *Runner) Up(ctx context.Context, opts Options) error {
	return r.run(ctx, opts, "up", "-d")
}

// Stop stops running containers without removing them.
func (r *Runner) Stop(ctx context.Context, opts Options) error {
	return r.run(ctx, opts, "stop")
}

// Remove stops and removes the containers. Anonymous volumes are removed when
// removeVolumes is set; named volumes must be removed through the engine.
func (r *Runner) Remove(ctx context.Context, opts Options, removeVolumes bool) error {
	args := []string{"rm", "-f", "-s"}
	if removeVolumes {
		args = append(args, "-v")
	}
	return r.run(ctx, opts, args...)
}

func (r *Runner) run(ctx context.Context, opts Options, command ...string) error {
	cmd := cmdexec.Command{
		Name: r.name,
		Args: r.Args(opts, command...),
		Dir:  opts.Dir,
		Env:  opts.Env,
	}
	log.WithField("command", cmd.String()).Debug("running compose")
	if err := r.exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("compose %s failed: %w", command[0], err)
	}
	return nil
}

// Args builds the full argument list for a compose subcommand.
func (r *Runner) Args(opts Options, command ...string) []string {
	args := append([]string{}, r.prefix...)
	if opts.File != "" {
		args = append(args, "-f", opts.File)
	}
	for _, p := range opts.Profiles {
		args = append(args, "--profile", p)
	}
	return append(args, command...)
}
