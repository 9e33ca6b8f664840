package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes deployment state under Paths.
type Store struct {
	paths Paths
}

func NewStore(paths Paths) *Store {
	return &Store{paths: paths}
}

func (s *Store) Paths() Paths {
	return s.paths
}

// ActiveTag returns the tag of the active deployment or "" when there is none.
func (s *Store) ActiveTag() (string, error) {
	data, err := os.ReadFile(s.paths.ActiveFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read active deployment: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) SetActive(tag string) error {
	if err := os.MkdirAll(s.paths.ConfigBase, 0755); err != nil {
		return fmt.Errorf("failed to create deployment config directory: %w", err)
	}
	if err := os.WriteFile(s.paths.ActiveFile(), []byte(tag), 0644); err != nil {
		return fmt.Errorf("failed to mark %s active: %w", tag, err)
	}
	return nil
}

func (s *Store) UnsetActive() error {
	if err := os.Remove(s.paths.ActiveFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to unset active deployment: %w", err)
	}
	return nil
}

func (s *Store) LoadConfiguration(tag string) (*Configuration, error) {
	data, err := os.ReadFile(s.paths.ForTag(tag).DeploymentConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing configuration for %s", ErrNoDeployment, tag)
		}
		return nil, fmt.Errorf("failed to read deployment configuration: %w", err)
	}
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse deployment configuration for %s: %w", tag, err)
	}
	if cfg.Environment == nil {
		cfg.Environment = map[string]string{}
	}
	return &cfg, nil
}

func (s *Store) SaveConfiguration(tag string, cfg *Configuration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to store deployment configuration: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deployment configuration: %w", err)
	}
	path := s.paths.ForTag(tag).DeploymentConfig
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create deployment config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write deployment configuration: %w", err)
	}
	return nil
}

func (s *Store) DeleteConfiguration(tag string) error {
	if err := os.RemoveAll(s.paths.ForTag(tag).DeploymentConfig); err != nil {
		return fmt.Errorf("failed to remove deployment configuration: %w", err)
	}
	return nil
}

// HasManifests reports whether the compose and env files of tag are present.
func (s *Store) HasManifests(tag string) bool {
	tp := s.paths.ForTag(tag)
	for _, f := range []string{tp.Compose, tp.Env} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}
