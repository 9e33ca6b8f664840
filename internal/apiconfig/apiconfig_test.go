package apiconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"conduit/internal/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), crypto.NewCipher("passphrase", "test-host"))
}

func TestAPI(t *testing.T) {
	t.Run("should round trip", func(t *testing.T) {
		s := newTestStore(t)
		api := API{AdminURL: "http://localhost:3030", AppURL: "http://localhost:3000", MasterKey: "M4ST3RK3Y"}

		require.NoError(t, s.SaveAPI(api))

		got, err := s.LoadAPI()
		require.NoError(t, err)
		assert.Equal(t, api, *got)
	})

	t.Run("should reject invalid urls", func(t *testing.T) {
		s := newTestStore(t)

		err := s.SaveAPI(API{AdminURL: "not a url", AppURL: "http://localhost:3000", MasterKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AdminURL")
	})

	t.Run("should report missing file as not initialized", func(t *testing.T) {
		_, err := newTestStore(t).LoadAPI()
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("should write private files", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SaveAPI(API{AdminURL: "http://a", AppURL: "http://b", MasterKey: "k"}))

		info, err := os.Stat(filepath.Join(s.Dir(), "config.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})
}

func TestAdmin(t *testing.T) {
	t.Run("should encrypt the password on disk", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SaveAdmin(Admin{Username: "admin", Password: "admin-pass"}))

		data, err := os.ReadFile(filepath.Join(s.Dir(), "admin.json"))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "admin-pass")

		var raw map[string]string
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Equal(t, "admin", raw["admin"])
		assert.Contains(t, raw["password"], ":")
	})

	t.Run("should decrypt on load", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SaveAdmin(Admin{Username: "admin", Password: "admin-pass"}))

		got, err := s.LoadAdmin()
		require.NoError(t, err)
		assert.Equal(t, "admin-pass", got.Password)
	})

	t.Run("should require a username", func(t *testing.T) {
		err := newTestStore(t).SaveAdmin(Admin{Password: "x"})
		assert.Error(t, err)
	})

	t.Run("should fail without a cipher", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)
		err := s.SaveAdmin(Admin{Username: "admin", Password: "x"})
		assert.Error(t, err)
	})
}

func TestSecurityClient(t *testing.T) {
	t.Run("should round trip with encrypted secret", func(t *testing.T) {
		s := newTestStore(t)
		sc := SecurityClient{ClientID: "client-1", ClientSecret: "shh", Alias: "cli-host_abc123"}

		require.NoError(t, s.SaveSecurityClient(sc))

		data, err := os.ReadFile(filepath.Join(s.Dir(), "security_client.json"))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "shh")

		got, err := s.LoadSecurityClient()
		require.NoError(t, err)
		assert.Equal(t, sc, *got)
	})

	t.Run("should delete", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SaveSecurityClient(SecurityClient{ClientID: "c", ClientSecret: "s"}))
		require.NoError(t, s.DeleteSecurityClient())

		_, err := s.LoadSecurityClient()
		assert.ErrorIs(t, err, ErrNotInitialized)
	})
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAPI(API{AdminURL: "http://a", AppURL: "http://b", MasterKey: "k"}))
	require.NoError(t, s.SaveAdmin(Admin{Username: "u", Password: "p"}))

	require.NoError(t, s.Clear())

	_, err := s.LoadAPI()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.LoadAdmin()
	assert.ErrorIs(t, err, ErrNotInitialized)
}
