// Package config loads the conduit CLI settings.
//
// Every setting resolves with the priority: environment variable, then the
// config file, then the built-in default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/goccy/go-yaml"

	"conduit/internal/deploy"
	"conduit/internal/releases"
)

const (
	appName        = "conduit"
	configFileName = "config.yml"

	envHome           = "CONDUIT_HOME"
	envGitHubAPI      = "CONDUIT_GITHUB_API"
	envRawContentURL  = "CONDUIT_RAW_CONTENT_URL"
	envOrganization   = "CONDUIT_ORG"
	envLogLevel       = "CONDUIT_LOG_LEVEL"
	envComposeCommand = "CONDUIT_COMPOSE_COMMAND"
	envUIURL          = "CONDUIT_UI_URL"
	envGitHubToken    = "GITHUB_TOKEN"

	defaultLogLevel = "info"
)

// Config holds the settings read from config.yml.
type Config struct {
	GitHubAPI  string `yaml:"github_api"`
	RawContent string `yaml:"raw_content_url"`
	Org        string `yaml:"organization"`
	Level      string `yaml:"log_level"`
	Compose    string `yaml:"compose_command"`
	UI         string `yaml:"ui_url"`

	dirs Dirs
}

// Dirs are the per-user directories of the CLI.
type Dirs struct {
	Config string
	Cache  string
	Data   string
}

// ResolveDirs honours CONDUIT_HOME, falling back to the XDG base directories.
func ResolveDirs() Dirs {
	if home := os.Getenv(envHome); home != "" {
		return Dirs{
			Config: filepath.Join(home, "config"),
			Cache:  filepath.Join(home, "cache"),
			Data:   filepath.Join(home, "data"),
		}
	}
	return Dirs{
		Config: filepath.Join(xdg.ConfigHome, appName),
		Cache:  filepath.Join(xdg.CacheHome, appName),
		Data:   filepath.Join(xdg.DataHome, appName),
	}
}

// Load reads config.yml from the config directory. A missing file is not an error.
func Load() (*Config, error) {
	cfg := &Config{dirs: ResolveDirs()}

	if err := loadFromFile(cfg, filepath.Join(cfg.dirs.Config, configFileName)); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) Dirs() Dirs {
	return c.dirs
}

// FilePath is where Load looks for config.yml.
func (c *Config) FilePath() string {
	return filepath.Join(c.dirs.Config, configFileName)
}

func (c *Config) GitHubAPIURL() string {
	return resolve(envGitHubAPI, c.GitHubAPI, releases.DefaultAPIURL)
}

func (c *Config) RawContentURL() string {
	return resolve(envRawContentURL, c.RawContent, deploy.DefaultRawContentURL)
}

func (c *Config) Organization() string {
	return resolve(envOrganization, c.Org, releases.DefaultOrganization)
}

func (c *Config) LogLevel() string {
	return resolve(envLogLevel, c.Level, defaultLogLevel)
}

// ComposeCommand is empty unless the user overrides compose detection.
func (c *Config) ComposeCommand() string {
	return resolve(envComposeCommand, c.Compose, "")
}

func (c *Config) UIURL() string {
	return resolve(envUIURL, c.UI, deploy.DefaultUIURL)
}

// GitHubToken is only read from the environment.
func (c *Config) GitHubToken() string {
	return os.Getenv(envGitHubToken)
}

func resolve(env, file, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if file != "" {
		return file
	}
	return def
}
