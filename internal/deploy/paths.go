package deploy

import (
	"path/filepath"
)

const (
	composeFile    = "compose.yml"
	envFile        = "env"
	prometheusFile = "prometheus.cfg.yml"
	lokiFile       = "loki.cfg.yml"
	activeFile     = "active"
	lockFile       = "deploy.lock"
)

// Paths locates deployment state on disk.
type Paths struct {
	// ConfigBase holds one JSON configuration per tag plus the active marker.
	ConfigBase string
	// ManifestBase holds the downloaded compose manifests, one directory per tag.
	ManifestBase string
}

// TagPaths are the files belonging to one deployment tag.
type TagPaths struct {
	DeploymentConfig string
	ManifestDir      string
	Compose          string
	Env              string
	Prometheus       string
	Loki             string
}

func NewPaths(configDir, cacheDir string) Paths {
	return Paths{
		ConfigBase:   filepath.Join(configDir, "deploy"),
		ManifestBase: filepath.Join(cacheDir, "deploy", "manifests"),
	}
}

func (p Paths) ForTag(tag string) TagPaths {
	manifestDir := filepath.Join(p.ManifestBase, tag)
	return TagPaths{
		DeploymentConfig: filepath.Join(p.ConfigBase, tag),
		ManifestDir:      manifestDir,
		Compose:          filepath.Join(manifestDir, composeFile),
		Env:              filepath.Join(manifestDir, envFile),
		Prometheus:       filepath.Join(manifestDir, prometheusFile),
		Loki:             filepath.Join(manifestDir, lokiFile),
	}
}

func (p Paths) ActiveFile() string {
	return filepath.Join(p.ConfigBase, activeFile)
}

func (p Paths) LockFile() string {
	return filepath.Join(p.ConfigBase, lockFile)
}
