// Package health waits for a freshly started Conduit deployment to answer its health endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"conduit/internal/httpclient"
)

// ErrNotReady is returned when the endpoint never became healthy.
var ErrNotReady = errors.New("deployment did not become healthy")

const (
	DefaultRetries  = 30
	DefaultInterval = 2 * time.Second
	requestTimeout  = 5 * time.Second
)

// Config configures the Checker.
type Config struct {
	URL           string // e.g. http://localhost:3030/health
	MaxRetries    int
	RetryInterval time.Duration
	InitialWait   time.Duration
	SleepFunc     func(ctx context.Context, d time.Duration) error
	HTTPClient    *http.Client
}

// Checker polls a health endpoint until it answers with 2xx.
type Checker struct {
	config Config
	client *http.Client
}

func New(cfg Config) *Checker {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultRetries
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultInterval
	}
	if cfg.SleepFunc == nil {
		cfg.SleepFunc = sleep
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.NewClient(requestTimeout)
	}

	return &Checker{config: cfg, client: client}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// URL is the polled endpoint.
func (c *Checker) URL() string {
	return c.config.URL
}

// WaitReady performs an initial wait, then one attempt plus MaxRetries retries.
func (c *Checker) WaitReady(ctx context.Context) error {
	if c.config.InitialWait > 0 {
		if err := c.config.SleepFunc(ctx, c.config.InitialWait); err != nil {
			return err
		}
	}

	var lastErr error
	total := c.config.MaxRetries + 1
	for attempt := 0; attempt < total; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = c.check(ctx)
		if lastErr == nil {
			return nil
		}
		log.WithError(lastErr).WithField("attempt", attempt+1).Debug("deployment not healthy yet")

		if attempt < total-1 {
			if err := c.config.SleepFunc(ctx, c.config.RetryInterval); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w: %v", ErrNotReady, lastErr)
}

func (c *Checker) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
