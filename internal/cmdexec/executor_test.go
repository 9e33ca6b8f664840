package cmdexec

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExecute_RunsCommand - verifies command is executed and output returned
func TestExecute_RunsCommand(t *testing.T) {
	executor := New()

	output, err := executor.Execute(context.Background(), "echo hello")

	assert.NoError(t, err)
	assert.Equal(t, "hello\n", output)
}

// TestExecute_ReturnsError - verifies error returned for failed command
func TestExecute_ReturnsError(t *testing.T) {
	executor := New()

	_, err := executor.Execute(context.Background(), "command_that_does_not_exist_12345")

	assert.Error(t, err)
}

// TestExecute_RespectsContext - verifies context cancellation stops execution
func TestExecute_RespectsContext(t *testing.T) {
	executor := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, "sleep 5")

	assert.Error(t, err)
}

func TestOutput_TrimsStdout(t *testing.T) {
	executor := New()

	out, err := executor.Output(context.Background(), "echo", "  2.24.1  ")

	require.NoError(t, err)
	assert.Equal(t, "2.24.1", out)
}

func TestOutput_IncludesStderrInError(t *testing.T) {
	executor := New()

	_, err := executor.Output(context.Background(), "/bin/sh", "-c", "echo broken >&2; exit 3")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRun_StreamsOutputWithDirAndEnv(t *testing.T) {
	var stdout bytes.Buffer
	executor := &Executor{Stdout: &stdout, Stderr: &stdout}
	dir := t.TempDir()

	err := executor.Run(context.Background(), Command{
		Name: "/bin/sh",
		Args: []string{"-c", "pwd; echo $IMAGE_TAG"},
		Dir:  dir,
		Env:  []string{"IMAGE_TAG=v0.16.0"},
	})

	require.NoError(t, err)
	assert.Contains(t, stdout.String(), dir)
	assert.Contains(t, stdout.String(), "v0.16.0")
}

func TestRun_WrapsFailure(t *testing.T) {
	executor := &Executor{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	err := executor.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "exit 1"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/bin/sh -c exit 1")
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "docker compose up -d", Command{Name: "docker", Args: []string{"compose", "up", "-d"}}.String())
	assert.Equal(t, "docker", Command{Name: "docker"}.String())
}
