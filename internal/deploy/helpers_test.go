package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conduit/domain/deployment"
	"conduit/internal/compose"
	"conduit/internal/preflight"
	"conduit/internal/prompt"
)

const testComposeFile = `
services:
  conduit:
    container_name: conduit
    image: ghcr.io/conduitplatform/conduit:${IMAGE_TAG}
    ports:
      - "${CONDUIT_HTTP_PORT:-3000}:3000"
  conduit-ui:
    image: ghcr.io/conduitplatform/conduit-ui:${UI_IMAGE_TAG}
    ports:
      - "8080:8080"
  conduit-mongo:
    profiles: ["mongodb"]
    ports:
      - "27017:27017"
  conduit-postgres:
    profiles: ["postgres"]
  authentication:
    profiles: ["authentication"]
  chat:
    profiles: ["chat"]
volumes:
  mongo:
  postgres:
`

const testEnvFile = "COMPOSE_PROJECT_NAME=conduit\nIMAGE_TAG=latest\n"

type mockReleases struct {
	mock.Mock
}

func (m *mockReleases) AvailableTags(ctx context.Context, repo string) ([]string, error) {
	args := m.Called(ctx, repo)
	tags, _ := args.Get(0).([]string)
	return tags, args.Error(1)
}

type mockComposer struct {
	mock.Mock
}

func (m *mockComposer) Up(ctx context.Context, opts compose.Options) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockComposer) Stop(ctx context.Context, opts compose.Options) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockComposer) Remove(ctx context.Context, opts compose.Options, removeVolumes bool) error {
	return m.Called(ctx, opts, removeVolumes).Error(0)
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) ContainerIsUp(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockEngine) ListVolumes(ctx context.Context, nameFilter string) ([]string, error) {
	args := m.Called(ctx, nameFilter)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *mockEngine) RemoveVolume(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

// fakeFetcher serves manifest files by their repository path suffix.
type fakeFetcher struct {
	files map[string]string
	urls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{files: map[string]string{
		"docker/docker-compose.yml": testComposeFile,
		"docker/.env":               testEnvFile,
		"docker/prometheus.cfg.yml": "global:\n  scrape_interval: 15s\n",
		"docker/loki.cfg.yml":       "auth_enabled: false\n",
	}}
}

func (f *fakeFetcher) Download(ctx context.Context, url, dest string) error {
	f.urls = append(f.urls, url)
	for suffix, content := range f.files {
		if strings.HasSuffix(url, "/"+suffix) {
			return os.WriteFile(dest, []byte(content), 0644)
		}
	}
	return errors.New("HTTP 404")
}

type memoryHistory struct {
	mu     sync.Mutex
	events []deployment.Event
}

func (h *memoryHistory) Create(ctx context.Context, e *deployment.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.ID = "evt_test"
	h.events = append(h.events, *e)
	return nil
}

func (h *memoryHistory) FindAll(ctx context.Context, limit int) ([]deployment.Event, error) {
	return h.events, nil
}

func (h *memoryHistory) FindByTag(ctx context.Context, tag string) ([]deployment.Event, error) {
	var out []deployment.Event
	for _, e := range h.events {
		if e.Tag == tag {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePreflight struct {
	result *preflight.Result
	ports  []uint32
}

func (f *fakePreflight) Check(ctx context.Context, ports []uint32) *preflight.Result {
	f.ports = ports
	return f.result
}

type fakeLocker struct {
	acquireErr error
	acquired   []string
	released   int
}

func (l *fakeLocker) Acquire(expiration time.Duration, command string) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired = append(l.acquired, command)
	return nil
}

func (l *fakeLocker) Release() error {
	l.released++
	return nil
}

type fakeReadiness struct {
	err   error
	calls int
}

func (f *fakeReadiness) WaitReady(ctx context.Context) error {
	f.calls++
	return f.err
}

type harness struct {
	manager  *Manager
	paths    Paths
	releases *mockReleases
	compose  *mockComposer
	engine   *mockEngine
	fetcher  *fakeFetcher
	history  *memoryHistory
	prompter *prompt.Scripted
	lock     *fakeLocker
	out      *bytes.Buffer
	opened   []string
}

func newHarness(t *testing.T, answers ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		paths:    NewPaths(filepath.Join(dir, "config"), filepath.Join(dir, "cache")),
		releases: new(mockReleases),
		compose:  new(mockComposer),
		engine:   new(mockEngine),
		fetcher:  newFakeFetcher(),
		history:  &memoryHistory{},
		prompter: prompt.NewScripted(answers...),
		lock:     &fakeLocker{},
		out:      &bytes.Buffer{},
	}
	h.manager = NewManager(Config{
		Paths:    h.paths,
		Releases: h.releases,
		Compose:  h.compose,
		Engine:   h.engine,
		Fetcher:  h.fetcher,
		Prompter: h.prompter,
		History:  h.history,
		Lock:     h.lock,
		Out:      h.out,
		OpenURL: func(url string) error {
			h.opened = append(h.opened, url)
			return nil
		},
		Environ: func() []string { return []string{"PATH=/usr/bin", "IMAGE_TAG=from-shell"} },
	})
	return h
}

func (h *harness) withTags(conduit, ui []string) {
	h.releases.On("AvailableTags", mock.Anything, "Conduit").Return(conduit, nil)
	h.releases.On("AvailableTags", mock.Anything, "Conduit-UI").Return(ui, nil)
}

// seed installs an existing deployment of tag.
func (h *harness) seed(t *testing.T, tag string, cfg *Configuration) {
	t.Helper()
	tp := h.paths.ForTag(tag)
	require.NoError(t, os.MkdirAll(tp.ManifestDir, 0755))
	require.NoError(t, os.WriteFile(tp.Compose, []byte(testComposeFile), 0644))
	require.NoError(t, os.WriteFile(tp.Env, []byte(testEnvFile), 0644))
	store := NewStore(h.paths)
	require.NoError(t, store.SaveConfiguration(tag, cfg))
	require.NoError(t, store.SetActive(tag))
}

func (h *harness) assertExpectations(t *testing.T) {
	h.releases.AssertExpectations(t)
	h.compose.AssertExpectations(t)
	h.engine.AssertExpectations(t)
}

func profiles(want ...string) any {
	return mock.MatchedBy(func(o compose.Options) bool {
		if len(o.Profiles) != len(want) {
			return false
		}
		for i := range want {
			if o.Profiles[i] != want[i] {
				return false
			}
		}
		return true
	})
}

func hasEnv(o compose.Options, kv string) bool {
	for _, e := range o.Env {
		if e == kv {
			return true
		}
	}
	return false
}
