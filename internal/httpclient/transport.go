// Package httpclient provides HTTP client utilities with CLI identification headers.
package httpclient

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"conduit/version"
)

// CLITransport wraps an http.RoundTripper and identifies the CLI to remote APIs.
// When Token is set it is sent as a bearer token unless the request already
// carries an Authorization header.
type CLITransport struct {
	Base  http.RoundTripper
	Token string
}

// UserAgent returns the User-Agent sent by the CLI.
func UserAgent() string {
	return fmt.Sprintf("conduit-cli/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)
}

// RoundTrip implements http.RoundTripper.
func (t *CLITransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	clone := req.Clone(req.Context())

	clone.Header.Set("User-Agent", UserAgent())
	clone.Header.Set("X-Conduit-CLI-Version", version.Version)
	if t.Token != "" && clone.Header.Get("Authorization") == "" {
		clone.Header.Set("Authorization", "Bearer "+t.Token)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// NewClient returns an *http.Client configured with CLITransport and the specified timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &CLITransport{},
		Timeout:   timeout,
	}
}

// NewAuthenticatedClient is like NewClient but attaches token to every request.
func NewAuthenticatedClient(timeout time.Duration, token string) *http.Client {
	return &http.Client{
		Transport: &CLITransport{Token: token},
		Timeout:   timeout,
	}
}
