package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultRawContentURL serves the repository files of a release tag.
const DefaultRawContentURL = "https://raw.githubusercontent.com"

type manifestFile struct {
	repoPath string
	name     string
	dest     string
}

var manifestFiles = []manifestFile{
	{"docker/docker-compose.yml", "compose", composeFile},
	{"docker/.env", "env", envFile},
	{"docker/prometheus.cfg.yml", "prometheus configuration", prometheusFile},
	{"docker/loki.cfg.yml", "loki configuration", lokiFile},
}

// manifestURL builds the raw file URL of repoPath at tag.
func manifestURL(base, org, tag, repoPath string) string {
	return fmt.Sprintf("%s/%s/Conduit/%s/%s", strings.TrimRight(base, "/"), org, tag, repoPath)
}

func (m *Manager) fetchManifests(ctx context.Context, tag string) error {
	dir := m.paths.ForTag(tag).ManifestDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	for _, f := range manifestFiles {
		url := manifestURL(m.rawContentURL, m.organization, tag, f.repoPath)
		log.WithField("url", url).Debug("downloading deployment manifest")
		if err := m.fetcher.Download(ctx, url, filepath.Join(dir, f.dest)); err != nil {
			return fmt.Errorf("failed to download %s file: %w", f.name, err)
		}
	}
	return nil
}
