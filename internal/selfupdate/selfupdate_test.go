package selfupdate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/cmdexec"
)

type fakeReleases struct {
	tag   string
	err   error
	calls int
}

func (f *fakeReleases) LatestTag(ctx context.Context, repo string) (string, error) {
	f.calls++
	if repo != "CLI" {
		return "", errors.New("unexpected repo " + repo)
	}
	return f.tag, f.err
}

type fakeDownloader struct {
	urls []string
	err  error
}

func (f *fakeDownloader) Download(ctx context.Context, url, dest string) error {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("#!/bin/sh\n"), 0755)
}

type fakeRunner struct {
	cmds      []cmdexec.Command
	sawScript bool
	err       error
}

func (f *fakeRunner) Run(ctx context.Context, cmd cmdexec.Command) error {
	f.cmds = append(f.cmds, cmd)
	if len(cmd.Args) > 0 {
		_, statErr := os.Stat(cmd.Args[0])
		f.sawScript = statErr == nil
	}
	return f.err
}

func newTestUpdater(t *testing.T, current, latest string) (*Updater, *fakeReleases, *fakeDownloader, *fakeRunner, *bytes.Buffer) {
	t.Helper()
	rel := &fakeReleases{tag: latest}
	dl := &fakeDownloader{}
	run := &fakeRunner{}
	out := &bytes.Buffer{}
	u := New(Config{
		Releases:       rel,
		Downloader:     dl,
		Runner:         run,
		CacheDir:       filepath.Join(t.TempDir(), "cache"),
		CurrentVersion: current,
		GOOS:           "linux",
		Executable:     func() (string, error) { return "/usr/local/bin/conduit", nil },
		Out:            out,
	})
	return u, rel, dl, run, out
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		latest    string
		available bool
	}{
		{"newer release", "0.16.0", "v0.16.1", true},
		{"v prefixed current", "v0.16.1", "v0.16.1", false},
		{"ahead of latest", "0.17.0-rc1", "v0.16.1", false},
		{"stable beats rc", "0.17.0-rc1", "v0.17.0", true},
		{"malformed latest falls back to inequality", "0.16.0", "nightly", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _, _, _, _ := newTestUpdater(t, tt.current, tt.latest)

			info, err := u.Check(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.available, info.Available)
			assert.Equal(t, tt.latest, info.Latest)
		})
	}
}

func TestCheck_DevBuildNeverUpdates(t *testing.T) {
	u, rel, _, _, _ := newTestUpdater(t, "dev", "v0.16.1")

	info, err := u.Check(context.Background())

	require.NoError(t, err)
	assert.False(t, info.Available)
	assert.Zero(t, rel.calls)
}

func TestCheck_ReleaseLookupFails(t *testing.T) {
	u, rel, _, _, _ := newTestUpdater(t, "0.16.0", "")
	rel.err = errors.New("rate limited")

	_, err := u.Check(context.Background())

	assert.ErrorContains(t, err, "rate limited")
}

func TestUpdate_RunsBootstrapScript(t *testing.T) {
	u, _, dl, run, out := newTestUpdater(t, "0.16.0", "v0.16.1")

	require.NoError(t, u.Update(context.Background()))

	assert.Equal(t, []string{DefaultScriptURL}, dl.urls)
	require.Len(t, run.cmds, 1)
	assert.Equal(t, "sh", run.cmds[0].Name)
	assert.Equal(t, "--no-deploy", run.cmds[0].Args[1])
	assert.True(t, run.sawScript)
	assert.Contains(t, out.String(), "Updating CLI v0.16.0 -> v0.16.1...")

	_, err := os.Stat(run.cmds[0].Args[0])
	assert.True(t, os.IsNotExist(err), "script should be removed after running")
}

func TestUpdate_NoUpdateAvailable(t *testing.T) {
	u, _, dl, _, out := newTestUpdater(t, "0.16.1", "v0.16.1")

	require.NoError(t, u.Update(context.Background()))

	assert.Empty(t, dl.urls)
	assert.Contains(t, out.String(), "No CLI updates available.")
}

func TestUpdate_UnsupportedPlatform(t *testing.T) {
	u, rel, _, _, _ := newTestUpdater(t, "0.16.0", "v0.16.1")
	u.goos = "windows"

	assert.ErrorIs(t, u.Update(context.Background()), ErrUnsupportedPlatform)
	assert.Zero(t, rel.calls)
}

func TestUpdate_HomebrewInstall(t *testing.T) {
	u, _, dl, _, out := newTestUpdater(t, "0.16.0", "v0.16.1")
	u.executable = func() (string, error) { return "/opt/homebrew/Cellar/conduit/0.16.0/bin/conduit", nil }

	require.NoError(t, u.Update(context.Background()))

	assert.Empty(t, dl.urls)
	assert.Contains(t, out.String(), "brew upgrade conduit")
}

func TestUpdate_DownloadFails(t *testing.T) {
	u, _, dl, run, _ := newTestUpdater(t, "0.16.0", "v0.16.1")
	dl.err = errors.New("HTTP 503")

	err := u.Update(context.Background())

	assert.ErrorContains(t, err, "failed to retrieve update script")
	assert.Empty(t, run.cmds)
}

func TestUpdate_ScriptFails(t *testing.T) {
	u, _, _, run, _ := newTestUpdater(t, "0.16.0", "v0.16.1")
	run.err = errors.New("exit status 1")

	assert.ErrorContains(t, u.Update(context.Background()), "failed to update CLI")
}

func TestHint(t *testing.T) {
	u, _, _, _, _ := newTestUpdater(t, "0.16.0", "v0.16.1")
	var w bytes.Buffer

	u.Hint(context.Background(), &w)

	assert.Equal(t, "A new CLI version is available (v0.16.0 -> v0.16.1), run 'conduit cli update'.\n", w.String())
}

func TestHint_SilentOnFailure(t *testing.T) {
	u, rel, _, _, _ := newTestUpdater(t, "0.16.0", "")
	rel.err = errors.New("offline")
	var w bytes.Buffer

	u.Hint(context.Background(), &w)

	assert.Empty(t, w.String())
}

func TestInstallType(t *testing.T) {
	u, _, _, _, _ := newTestUpdater(t, "0.16.0", "v0.16.1")
	assert.Equal(t, InstallSystem, u.InstallType())

	u.executable = func() (string, error) { return "/home/linuxbrew/.linuxbrew/Cellar/conduit/bin/conduit", nil }
	assert.Equal(t, InstallHomebrew, u.InstallType())

	u.executable = func() (string, error) { return "", errors.New("unknown") }
	assert.Equal(t, InstallSystem, u.InstallType())
}
