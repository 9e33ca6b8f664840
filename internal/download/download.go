// Package download fetches the small remote files a deployment needs
// (compose manifests, env templates, monitoring configs, the CLI bootstrap
// script) into the local cache.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"conduit/internal/httpclient"
)

var (
	// ErrDownloadFailed is returned once every attempt hit a transient failure.
	ErrDownloadFailed = errors.New("download failed after retries")
	// ErrTooLarge is returned when the body exceeds Policy.MaxSize.
	ErrTooLarge = errors.New("remote file exceeds size limit")
)

// DefaultMaxSize bounds a single file. Manifests and scripts are a few KiB.
const DefaultMaxSize = 4 << 20

// Policy controls retries and limits of a Client.
type Policy struct {
	Attempts   int           // total attempts, at least one
	Backoff    time.Duration // first wait, doubled after every failure
	MaxBackoff time.Duration // cap for Backoff and Retry-After
	Timeout    time.Duration // per request
	MaxSize    int64
}

// DefaultPolicy waits 1s, 2s, 4s between four attempts.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   4,
		Backoff:    time.Second,
		MaxBackoff: 8 * time.Second,
		Timeout:    30 * time.Second,
		MaxSize:    DefaultMaxSize,
	}
}

// Client downloads files, retrying on transport errors, 429 and 5xx.
type Client struct {
	http   *http.Client
	policy Policy
	wait   func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithWait replaces the pause between attempts.
func WithWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(cl *Client) {
		cl.wait = fn
	}
}

func New(policy Policy, opts ...Option) *Client {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.MaxSize <= 0 {
		policy.MaxSize = DefaultMaxSize
	}
	c := &Client{policy: policy, wait: wait}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewClient(policy.Timeout)
	}
	return c
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusError is a response other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Temporary reports whether the request is worth repeating.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// transientError marks failures of the connection or the body stream.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Download stores the body of url at destPath. The destination is replaced
// atomically and left untouched when the download fails.
func (c *Client) Download(ctx context.Context, url, destPath string) error {
	delay := c.policy.Backoff
	var lastErr error

	for attempt := 1; ; attempt++ {
		body, err := c.fetch(ctx, url)
		if err == nil {
			return writeFile(destPath, body)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if attempt >= c.policy.Attempts {
			break
		}

		pause := delay
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > pause {
			pause = min(se.RetryAfter, c.policy.MaxBackoff)
		}
		log.WithFields(log.Fields{"url": url, "attempt": attempt}).WithError(err).Debugf("retrying download in %s", pause)
		if err := c.wait(ctx, pause); err != nil {
			return err
		}
		delay = min(delay*2, c.policy.MaxBackoff)
	}

	return fmt.Errorf("%w: %v", ErrDownloadFailed, lastErr)
}

func retryable(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Temporary()
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.policy.MaxSize+1))
	if err != nil {
		return nil, &transientError{err: err}
	}
	if int64(len(body)) > c.policy.MaxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, url, c.policy.MaxSize)
	}
	return body, nil
}

// retryAfter understands the delay-seconds form only.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func writeFile(destPath string, body []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destPath)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, bytes.NewReader(body)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmpPath, destPath)
}
