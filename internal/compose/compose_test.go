package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/cmdexec"
)

type fakeExecutor struct {
	outputs map[string]string
	errs    map[string]error
	runs    []cmdexec.Command
	runErr  error
}

func (f *fakeExecutor) Output(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	out, ok := f.outputs[key]
	if !ok {
		return "", errors.New("executable file not found in $PATH")
	}
	return out, nil
}

func (f *fakeExecutor) Run(ctx context.Context, cmd cmdexec.Command) error {
	f.runs = append(f.runs, cmd)
	return f.runErr
}

func TestDetect_PrefersComposeV2(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"docker compose version --short": "2.24.6\n",
		"docker-compose version --short": "1.29.2",
	}}

	r, err := Detect(context.Background(), exec, "")

	require.NoError(t, err)
	assert.Equal(t, 2, r.Version())
	assert.Equal(t, "docker compose", r.String())
}

func TestDetect_AcceptsVPrefixedVersion(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"docker compose version --short": "v2.3.3",
	}}

	r, err := Detect(context.Background(), exec, "")

	require.NoError(t, err)
	assert.Equal(t, 2, r.Version())
}

func TestDetect_FallsBackToComposeV1(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"docker-compose version --short": "1.29.2",
	}}

	r, err := Detect(context.Background(), exec, "")

	require.NoError(t, err)
	assert.Equal(t, 1, r.Version())
	assert.Equal(t, "docker-compose", r.String())
}

func TestDetect_NotInstalled(t *testing.T) {
	_, err := Detect(context.Background(), &fakeExecutor{}, "")

	assert.ErrorIs(t, err, ErrComposeNotFound)
}

func TestDetect_IgnoresUnsupportedVersions(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"docker compose version --short": "garbage",
		"docker-compose version --short": "2.20.0",
	}}

	_, err := Detect(context.Background(), exec, "")

	assert.ErrorIs(t, err, ErrComposeNotFound)
}

func TestDetect_Override(t *testing.T) {
	r, err := Detect(context.Background(), &fakeExecutor{}, `podman compose --podman-path "/opt/podman bin/podman"`)

	require.NoError(t, err)
	assert.Equal(t, []string{"compose", "--podman-path", "/opt/podman bin/podman", "-f", "compose.yml", "stop"},
		r.Args(Options{File: "compose.yml"}, "stop"))
	assert.Equal(t, "podman", r.name)
}

func TestDetect_InvalidOverride(t *testing.T) {
	_, err := Detect(context.Background(), &fakeExecutor{}, `docker "compose`)

	assert.Error(t, err)
}

func TestRunner_Up(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRunner(exec, 2, "docker", "compose")

	err := r.Up(context.Background(), Options{
		Dir:      "/cache/deploy/manifests/v0.16.0",
		File:     "compose.yml",
		Env:      []string{"IMAGE_TAG=v0.16.0"},
		Profiles: []string{"mongodb", "authentication"},
	})

	require.NoError(t, err)
	require.Len(t, exec.runs, 1)
	assert.Equal(t, cmdexec.Command{
		Name: "docker",
		Args: []string{"compose", "-f", "compose.yml", "--profile", "mongodb", "--profile", "authentication", "up", "-d"},
		Dir:  "/cache/deploy/manifests/v0.16.0",
		Env:  []string{"IMAGE_TAG=v0.16.0"},
	}, exec.runs[0])
}

func TestRunner_Stop(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRunner(exec, 1, "docker-compose")

	require.NoError(t, r.Stop(context.Background(), Options{File: "compose.yml", Profiles: []string{"mongodb"}}))

	assert.Equal(t, []string{"-f", "compose.yml", "--profile", "mongodb", "stop"}, exec.runs[0].Args)
}

func TestRunner_Remove(t *testing.T) {
	tests := []struct {
		name          string
		removeVolumes bool
		want          []string
	}{
		{"keep volumes", false, []string{"compose", "--profile", "redis", "rm", "-f", "-s"}},
		{"remove volumes", true, []string{"compose", "--profile", "redis", "rm", "-f", "-s", "-v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			r := NewRunner(exec, 2, "docker", "compose")

			require.NoError(t, r.Remove(context.Background(), Options{Profiles: []string{"redis"}}, tt.removeVolumes))
			assert.Equal(t, tt.want, exec.runs[0].Args)
		})
	}
}

func TestRunner_WrapsFailure(t *testing.T) {
	exec := &fakeExecutor{runErr: errors.New("exit status 1")}
	r := NewRunner(exec, 2, "docker", "compose")

	err := r.Up(context.Background(), Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "compose up failed")
}

func TestMajor(t *testing.T) {
	assert.Equal(t, 2, major("2.24.6"))
	assert.Equal(t, 2, major("v2.24.6-desktop.1"))
	assert.Equal(t, 1, major("1.29.2\n"))
	assert.Equal(t, 0, major(""))
	assert.Equal(t, 0, major("unknown"))
}
