// Package adminapi talks to the administrative HTTP API of a running Conduit deployment.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"conduit/internal/apiconfig"
	"conduit/internal/crypto"
	"conduit/internal/httpclient"
)

const (
	defaultTimeout = 30 * time.Second
	clientPlatform = "CLI"
)

var (
	ErrUnauthorized             = errors.New("login failed")
	ErrClientValidationDisabled = errors.New("security clients are disabled")
)

// SecurityClientStore persists the security client registered for this host.
type SecurityClientStore interface {
	LoadSecurityClient() (*apiconfig.SecurityClient, error)
	SaveSecurityClient(apiconfig.SecurityClient) error
}

// Client is an admin API session. Login stores the JWT used by later requests.
type Client struct {
	baseURL   string
	masterKey string
	token     string
	hostname  string
	http      *http.Client
	store     SecurityClientStore

	clientValidation bool
	securityClient   *apiconfig.SecurityClient
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithHostname(h string) Option {
	return func(c *Client) { c.hostname = h }
}

func WithSecurityClientStore(s SecurityClientStore) Option {
	return func(c *Client) { c.store = s }
}

// New returns a Client for the admin API at baseURL.
func New(baseURL, masterKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		masterKey: masterKey,
		hostname:  crypto.Hostname(),
		http:      httpclient.NewClient(defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HealthCheck reports whether the HTTP server at baseURL answers GET /health with 2xx.
func HealthCheck(ctx context.Context, hc *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check at %s returned status %d", baseURL, resp.StatusCode)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return HealthCheck(ctx, c.http, c.baseURL)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges admin credentials for a JWT.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/admin/login", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	c.token = resp.Token
	return resp.Token, nil
}

// ModuleConfig returns the configuration object of module.
func (c *Client) ModuleConfig(ctx context.Context, module string) (map[string]any, error) {
	var resp struct {
		Config map[string]any `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/config/"+module, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to retrieve %s configuration: %w", module, err)
	}
	return resp.Config, nil
}

// SecurityClientInfo is an entry of the registered security clients list.
type SecurityClientInfo struct {
	ID        string `json:"_id"`
	ClientID  string `json:"clientId"`
	Platform  string `json:"platform"`
	Alias     string `json:"alias,omitempty"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"createdAt"`
}

func (c *Client) SecurityClients(ctx context.Context) ([]SecurityClientInfo, error) {
	if !c.clientValidation {
		return nil, ErrClientValidationDisabled
	}
	var resp struct {
		Clients []SecurityClientInfo `json:"clients"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/security/client", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list security clients: %w", err)
	}
	return resp.Clients, nil
}

type createClientRequest struct {
	Platform string `json:"platform"`
	Alias    string `json:"alias"`
	Notes    string `json:"notes"`
}

// CreateSecurityClient registers a new CLI client named after this host and stores it.
func (c *Client) CreateSecurityClient(ctx context.Context) (*apiconfig.SecurityClient, error) {
	if !c.clientValidation {
		return nil, ErrClientValidationDisabled
	}

	req := createClientRequest{
		Platform: clientPlatform,
		Alias:    fmt.Sprintf("cli-%s_%s", c.hostname, uuid.NewString()[:6]),
		Notes:    fmt.Sprintf("A Conduit CLI Client for %s", c.hostname),
	}
	var resp struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/security/client", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create security client: %w", err)
	}

	sc := &apiconfig.SecurityClient{ClientID: resp.ClientID, ClientSecret: resp.ClientSecret, Alias: req.Alias}
	if c.store != nil {
		if err := c.store.SaveSecurityClient(*sc); err != nil {
			return nil, err
		}
	}
	log.WithField("alias", req.Alias).Debug("created security client")
	return sc, nil
}

// Initialize logs in and, when the security module enforces client validation,
// makes sure a registered security client is available.
func (c *Client) Initialize(ctx context.Context, username, password string) error {
	if _, err := c.Login(ctx, username, password); err != nil {
		return err
	}

	cfg, err := c.ModuleConfig(ctx, "security")
	if err != nil {
		return err
	}
	if !clientValidationEnabled(cfg) {
		c.clientValidation = false
		c.securityClient = nil
		return nil
	}
	c.clientValidation = true

	var stored *apiconfig.SecurityClient
	if c.store != nil {
		if sc, err := c.store.LoadSecurityClient(); err == nil {
			stored = sc
		} else {
			log.WithError(err).Debug("no usable stored security client")
		}
	}

	if stored != nil {
		clients, err := c.SecurityClients(ctx)
		if err != nil {
			return err
		}
		for _, cl := range clients {
			if cl.ClientID == stored.ClientID {
				c.securityClient = stored
				return nil
			}
		}
	}

	sc, err := c.CreateSecurityClient(ctx)
	if err != nil {
		return err
	}
	c.securityClient = sc
	return nil
}

// SecurityClient returns the active client, or nil when client validation is disabled.
func (c *Client) SecurityClient() *apiconfig.SecurityClient {
	if !c.clientValidation {
		return nil
	}
	return c.securityClient
}

func clientValidationEnabled(cfg map[string]any) bool {
	cv, ok := cfg["clientValidation"].(map[string]any)
	if !ok {
		return false
	}
	enabled, _ := cv["enabled"].(bool)
	return enabled
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("masterkey", c.masterKey)
	if c.token != "" {
		req.Header.Set("Authorization", "JWT "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d, body: %s", ErrUnauthorized, resp.StatusCode, string(msg))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
