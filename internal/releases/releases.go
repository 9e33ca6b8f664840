// Package releases lists published Conduit release tags from the GitHub API.
package releases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"conduit/internal/httpclient"
	"conduit/internal/versionutil"
)

const (
	DefaultAPIURL       = "https://api.github.com"
	DefaultOrganization = "ConduitPlatform"

	// Release trains.
	RepoConduit   = "Conduit"
	RepoConduitUI = "Conduit-UI"
	RepoCLI       = "CLI"

	// MinSupportedTag is the oldest Conduit release the CLI can deploy.
	MinSupportedTag = "v0.15.0"

	acceptHeader = "application/vnd.github.v3+json"
	pageSize     = 100
)

// ErrNoSupportedReleases is returned when a release train has no deployable tags.
var ErrNoSupportedReleases = errors.New("no supported versions available")

// Release is the subset of the GitHub release object the CLI uses.
type Release struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Prerelease bool   `json:"prerelease"`
	Draft      bool   `json:"draft"`
	HTMLURL    string `json:"html_url"`
}

// Lister abstracts release listing for testability.
type Lister interface {
	AvailableTags(ctx context.Context, repo string) ([]string, error)
	LatestTag(ctx context.Context, repo string) (string, error)
}

// Client implements Lister against the GitHub REST API.
type Client struct {
	baseURL      string
	organization string
	client       *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithOrganization(org string) Option {
	return func(c *Client) {
		c.organization = org
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a release client. token may be empty.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:      DefaultAPIURL,
		organization: DefaultOrganization,
		client:       httpclient.NewAuthenticatedClient(30*time.Second, token),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AvailableTags returns every deployable tag of repo: stable releases newest
// first, followed by release candidates newest first. Tags that are not
// well-formed or older than MinSupportedTag are dropped.
func (c *Client) AvailableTags(ctx context.Context, repo string) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", c.baseURL, c.organization, repo, pageSize)

	var releases []Release
	if err := c.getJSON(ctx, url, &releases); err != nil {
		return nil, fmt.Errorf("failed to list %s releases: %w", repo, err)
	}

	tags := FilterSupported(releases)
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSupportedReleases, repo)
	}
	return tags, nil
}

// LatestTag returns the tag of the latest published release of repo.
func (c *Client) LatestTag(ctx context.Context, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.organization, repo)

	var release Release
	if err := c.getJSON(ctx, url, &release); err != nil {
		return "", fmt.Errorf("could not retrieve latest %s release info: %w", repo, err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("latest %s release has no tag", repo)
	}
	return release.TagName, nil
}

// FilterSupported extracts deployable tags from releases, stable ones first.
func FilterSupported(releases []Release) []string {
	minimum := versionutil.MustParseTag(MinSupportedTag)

	var stable, candidates []string
	for _, r := range releases {
		if r.Draft || !strings.HasPrefix(r.TagName, "v") {
			continue
		}
		tag, err := versionutil.ParseTag(r.TagName)
		if err != nil {
			log.WithField("tag", r.TagName).Debug("skipping malformed release tag")
			continue
		}
		if tag.Compare(minimum) == versionutil.SecondIsNewer {
			continue
		}
		if tag.IsStable() {
			stable = append(stable, r.TagName)
		} else {
			candidates = append(candidates, r.TagName)
		}
	}

	// Already validated above, sorting cannot fail.
	_ = versionutil.SortDescending(stable)
	_ = versionutil.SortDescending(candidates)

	return append(stable, candidates...)
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
