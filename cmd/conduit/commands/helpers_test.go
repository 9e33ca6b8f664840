package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"conduit/internal/prompt"

	"github.com/stretchr/testify/require"
)

// runApp executes the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := NewApp()

	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr

	err := app.Run(context.Background(), append([]string{"conduit", "--log-level", "error"}, args...))
	return stdout.String(), err
}

// isolate points every CLI directory and remote endpoint at test-local values.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CONDUIT_HOME", home)
	t.Setenv("CONDUIT_GITHUB_API", "http://127.0.0.1:1")
	t.Setenv("CONDUIT_ORG", "")
	t.Setenv("CONDUIT_LOG_LEVEL", "")
	t.Setenv("GITHUB_TOKEN", "")
	return home
}

func usePrompter(t *testing.T, p prompt.Prompter) {
	t.Helper()
	prev := newPrompter
	newPrompter = func() prompt.Prompter { return p }
	t.Cleanup(func() { newPrompter = prev })
}

// fakeGitHub serves release listings per repository.
func fakeGitHub(t *testing.T, releases map[string][]string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// repos/<org>/<repo>/releases
		if len(parts) != 4 || parts[0] != "repos" || parts[3] != "releases" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body := make([]map[string]any, 0)
		for _, tag := range releases[parts[2]] {
			body = append(body, map[string]any{
				"tag_name":   tag,
				"prerelease": strings.Contains(tag, "-rc"),
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(server.Close)
	t.Setenv("CONDUIT_GITHUB_API", server.URL)
}
