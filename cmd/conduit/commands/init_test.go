package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"conduit/internal/apiconfig"
	"conduit/internal/crypto"
	"conduit/internal/httpclient"
	"conduit/internal/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAdminAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.Header.Get("masterkey") != "master" || req.Username != "admin" || req.Password != "admin" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "jwt"})
	})
	mux.HandleFunc("GET /admin/config/security", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"config": map[string]any{"clientValidation": map[string]any{"enabled": false}},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func storeFor(home, passphrase string) *apiconfig.Store {
	return apiconfig.NewStore(filepath.Join(home, "config"), crypto.NewHostCipher(passphrase))
}

func TestInit(t *testing.T) {
	t.Run("stores the connection and encrypted credentials", func(t *testing.T) {
		home := isolate(t)
		server := fakeAdminAPI(t)
		usePrompter(t, prompt.NewScripted("pw", "pw", server.URL, "n", "master", "admin", "admin"))

		out, err := runApp(t, "init")

		require.NoError(t, err)
		assert.Contains(t, out, "Login Successful!")
		assert.FileExists(t, filepath.Join(home, "cache", crypto.VerificationFile))

		api, err := storeFor(home, "pw").LoadAPI()
		require.NoError(t, err)
		assert.Equal(t, server.URL, api.AdminURL)
		assert.Empty(t, api.AppURL)
		assert.Equal(t, "master", api.MasterKey)

		admin, err := storeFor(home, "pw").LoadAdmin()
		require.NoError(t, err)
		assert.Equal(t, "admin", admin.Password)

		raw, err := os.ReadFile(filepath.Join(home, "config", "admin.json"))
		require.NoError(t, err)
		assert.NotContains(t, string(raw), `"password": "admin"`)
	})

	t.Run("retries unreachable servers and failed logins", func(t *testing.T) {
		home := isolate(t)
		server := fakeAdminAPI(t)
		p := prompt.NewScripted(
			"pw", "other", // mismatched confirmation
			"pw", "pw",
			"http://127.0.0.1:1", server.URL,
			"y", server.URL,
			"master", "admin", "wrong",
			"master", "admin", "admin",
		)
		usePrompter(t, p)

		out, err := runApp(t, "init")

		require.NoError(t, err)
		assert.Contains(t, out, "Passphrases do not match")
		assert.Contains(t, out, "Could not ping Conduit's Administrative HTTP server at http://127.0.0.1:1")
		assert.Contains(t, out, "Login failed!")
		assert.Empty(t, p.Answers)

		api, err := storeFor(home, "pw").LoadAPI()
		require.NoError(t, err)
		assert.Equal(t, server.URL, api.AppURL)
	})

	t.Run("relogin reuses urls and master key", func(t *testing.T) {
		home := isolate(t)
		server := fakeAdminAPI(t)
		usePrompter(t, prompt.NewScripted("pw", "pw", server.URL, "n", "master", "admin", "admin"))
		_, err := runApp(t, "init")
		require.NoError(t, err)

		p := prompt.NewScripted("pw", "", "admin")
		usePrompter(t, p)

		_, err = runApp(t, "init", "--relogin")

		require.NoError(t, err)
		assert.Equal(t, []string{
			"Enter your CLI passphrase",
			"Specify the admin username",
			"Specify the admin password",
		}, p.Asked)

		api, err := storeFor(home, "pw").LoadAPI()
		require.NoError(t, err)
		assert.Equal(t, "master", api.MasterKey)
	})

	t.Run("relogin without configuration fails", func(t *testing.T) {
		isolate(t)
		usePrompter(t, prompt.NewScripted("pw", "pw"))

		_, err := runApp(t, "init", "--relogin")

		assert.ErrorIs(t, err, apiconfig.ErrNotInitialized)
	})

	t.Run("gives up after repeated wrong passphrases", func(t *testing.T) {
		home := isolate(t)
		require.NoError(t, crypto.WriteVerification(
			crypto.VerificationPath(filepath.Join(home, "cache")), crypto.NewHostCipher("right")))
		usePrompter(t, prompt.NewScripted("a", "b", "c"))

		out, err := runApp(t, "init")

		assert.ErrorIs(t, err, crypto.ErrInvalidPassphrase)
		assert.Contains(t, out, "Invalid passphrase")
	})

	t.Run("server errors end the login loop", func(t *testing.T) {
		isolate(t)
		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		server := httptest.NewServer(mux)
		defer server.Close()
		p := prompt.NewScripted("pw", "pw", server.URL, "n", "master", "admin", "admin", "master", "admin", "admin")
		usePrompter(t, p)

		out, err := runApp(t, "init")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.NotContains(t, out, "Login failed!")
		assert.Len(t, p.Answers, 3)
	})
}

func TestReachableURL_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := prompt.NewScripted("http://127.0.0.1:1", "http://127.0.0.1:2", "http://127.0.0.1:3")
	var out bytes.Buffer

	_, err := reachableURL(ctx, p, &out, httpclient.NewClient(healthTimeout), "",
		"Specify the Administrative API url of your Conduit installation", defaultAdminURL, "Administrative")

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, out.String(), "Could not ping")
	assert.Len(t, p.Answers, 3)
}

func TestUnlockCipher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("new passphrase", func(t *testing.T) {
		p := prompt.NewScripted("pw", "pw")

		_, err := unlockCipher(ctx, p, &bytes.Buffer{}, filepath.Join(t.TempDir(), crypto.VerificationFile))

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, p.Asked)
	})

	t.Run("existing passphrase", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), crypto.VerificationFile)
		require.NoError(t, crypto.WriteVerification(path, crypto.NewHostCipher("pw")))
		p := prompt.NewScripted("pw")

		_, err := unlockCipher(ctx, p, &bytes.Buffer{}, path)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, p.Asked)
	})
}
