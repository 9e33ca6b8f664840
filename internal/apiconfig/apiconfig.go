// Package apiconfig persists the admin API connection and the credentials used against it.
//
// Secrets (the admin password and the security client secret) are encrypted with
// a passphrase cipher before they reach disk.
package apiconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"conduit/internal/crypto"
	"conduit/internal/validation"
)

const (
	apiFile            = "config.json"
	adminFile          = "admin.json"
	securityClientFile = "security_client.json"
)

// ErrNotInitialized is returned when the CLI has not been connected to an admin API yet.
var ErrNotInitialized = errors.New("CLI not initialized, run 'conduit init'")

// API is the admin API endpoint and master key.
type API struct {
	AdminURL  string `json:"adminUrl" validate:"required,url"`
	AppURL    string `json:"appUrl,omitempty" validate:"omitempty,url"`
	MasterKey string `json:"masterKey" validate:"required"`
}

// Admin holds the admin login. Password is plaintext in memory only.
type Admin struct {
	Username string `json:"admin" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SecurityClient is the client registered for this host when client validation is enabled.
type SecurityClient struct {
	ClientID     string `json:"clientId" validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
	Alias        string `json:"alias,omitempty"`
}

// Store reads and writes the credential files in a single directory.
type Store struct {
	dir    string
	cipher *crypto.Cipher
}

// NewStore returns a Store rooted at dir. cipher may be nil when only the
// unencrypted API file is needed.
func NewStore(dir string, cipher *crypto.Cipher) *Store {
	return &Store{dir: dir, cipher: cipher}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) SaveAPI(api API) error {
	if err := validation.Struct(api); err != nil {
		return err
	}
	return s.write(apiFile, api)
}

func (s *Store) LoadAPI() (*API, error) {
	var api API
	if err := s.read(apiFile, &api); err != nil {
		return nil, err
	}
	if err := validation.Struct(api); err != nil {
		return nil, fmt.Errorf("%s: %w", apiFile, err)
	}
	return &api, nil
}

func (s *Store) SaveAdmin(admin Admin) error {
	if err := validation.Struct(admin); err != nil {
		return err
	}
	enc, err := s.encrypt(admin.Password)
	if err != nil {
		return err
	}
	admin.Password = enc
	return s.write(adminFile, admin)
}

func (s *Store) LoadAdmin() (*Admin, error) {
	var admin Admin
	if err := s.read(adminFile, &admin); err != nil {
		return nil, err
	}
	if err := validation.Struct(admin); err != nil {
		return nil, fmt.Errorf("%s: %w", adminFile, err)
	}
	plain, err := s.decrypt(admin.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", adminFile, err)
	}
	admin.Password = plain
	return &admin, nil
}

func (s *Store) SaveSecurityClient(sc SecurityClient) error {
	if err := validation.Struct(sc); err != nil {
		return err
	}
	enc, err := s.encrypt(sc.ClientSecret)
	if err != nil {
		return err
	}
	sc.ClientSecret = enc
	return s.write(securityClientFile, sc)
}

// LoadSecurityClient returns ErrNotInitialized when no client was stored.
func (s *Store) LoadSecurityClient() (*SecurityClient, error) {
	var sc SecurityClient
	if err := s.read(securityClientFile, &sc); err != nil {
		return nil, err
	}
	if err := validation.Struct(sc); err != nil {
		return nil, fmt.Errorf("%s: %w", securityClientFile, err)
	}
	plain, err := s.decrypt(sc.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", securityClientFile, err)
	}
	sc.ClientSecret = plain
	return &sc, nil
}

func (s *Store) DeleteSecurityClient() error {
	return s.remove(securityClientFile)
}

// Clear removes every credential file.
func (s *Store) Clear() error {
	for _, name := range []string{apiFile, adminFile, securityClientFile} {
		if err := s.remove(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) encrypt(v string) (string, error) {
	if s.cipher == nil {
		return "", errors.New("no passphrase cipher configured")
	}
	return s.cipher.Encrypt(v)
}

func (s *Store) decrypt(v string) (string, error) {
	if s.cipher == nil {
		return "", errors.New("no passphrase cipher configured")
	}
	return s.cipher.Decrypt(v)
}

func (s *Store) write(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotInitialized
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) remove(name string) error {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}
