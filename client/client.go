package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout is applied when no http.Client is supplied.
const DefaultTimeout = 15 * time.Second

// AuthClient calls a passport server and remembers the last token.
type AuthClient struct {
	mu         sync.Mutex
	serverURL  string
	prefix     string
	httpClient *http.Client
	cache      TokenCache
	token      *CachedToken
}

// envelope mirrors the server's JSON reply.
type envelope struct {
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Field string          `json:"field,omitempty"`
}

// APIError is a failure reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("passport: %s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("passport: %s (HTTP %d)", e.Message, e.Status)
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPathPrefix matches a server started with a route prefix.
func WithPathPrefix(prefix string) ClientOption {
	return func(c *AuthClient) { c.prefix = strings.TrimSuffix(prefix, "/") }
}

// WithHTTPClient sets the client used for calls to the passport server.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) { c.httpClient = client }
}

// WithTokenCache loads and stores tokens through cache.
func WithTokenCache(cache TokenCache) ClientOption {
	return func(c *AuthClient) { c.cache = cache }
}

// NewAuthClient creates a client for the server at serverURL. A cached,
// unexpired token is picked up immediately.
func NewAuthClient(serverURL string, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	c := &AuthClient{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache != nil {
		if tok, err := c.cache.GetToken(c.serverURL); err == nil && tok != nil && !tok.IsExpired() {
			c.token = tok
		}
	}
	return c
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Token returns the current token or "" when logged out or expired.
func (c *AuthClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil || c.token.IsExpired() {
		return ""
	}
	return c.token.AccessToken
}

// SetToken installs a token obtained elsewhere, e.g. from the fragment of
// a federated login redirect.
func (c *AuthClient) SetToken(token string) error {
	cached, err := NewCachedToken(token)
	if err != nil {
		return err
	}
	return c.storeToken(cached)
}

func (c *AuthClient) storeToken(tok *CachedToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
	if c.cache == nil {
		return nil
	}
	if err := c.cache.SetToken(c.serverURL, tok); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return c.cache.Save()
}

// IsLoggedIn returns true if there is an unexpired token
func (c *AuthClient) IsLoggedIn() bool {
	return c.Token() != ""
}

// Logout forgets the token locally. Tokens are stateless; the server has
// nothing to revoke.
func (c *AuthClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	if c.cache == nil {
		return nil
	}
	if err := c.cache.RemoveToken(c.serverURL); err != nil {
		return err
	}
	return c.cache.Save()
}

// HTTPClient returns a client that sends the current token on every request.
func (c *AuthClient) HTTPClient() *http.Client {
	base := c.httpClient.Transport
	return &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &AuthTransport{Base: base, Token: c.Token},
	}
}

// Login exchanges a username and password for a token and keeps it.
func (c *AuthClient) Login(ctx context.Context, username, password string) (*CachedToken, error) {
	var token string
	err := c.call(ctx, http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": password,
	}, &token)
	if err != nil {
		return nil, err
	}
	cached, err := NewCachedToken(token)
	if err != nil {
		return nil, err
	}
	if err := c.storeToken(cached); err != nil {
		return nil, err
	}
	return cached, nil
}

func (c *AuthClient) Register(ctx context.Context, username, password, displayName string) error {
	return c.call(ctx, http.MethodPost, "/register", map[string]string{
		"username":    username,
		"password":    password,
		"displayName": displayName,
	}, nil)
}

// ForgotPassword returns the server's data: the raw reset token when the
// server exposes it, otherwise an acknowledgement message.
func (c *AuthClient) ForgotPassword(ctx context.Context, username string) (string, error) {
	var data string
	err := c.call(ctx, http.MethodPost, "/forgot", map[string]string{"username": username}, &data)
	return data, err
}

func (c *AuthClient) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.call(ctx, http.MethodPost, "/reset", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}, nil)
}

// AuthorizeURL asks the server for a federated login URL.
func (c *AuthClient) AuthorizeURL(ctx context.Context) (string, error) {
	var u string
	err := c.call(ctx, http.MethodGet, "/oauth/authorize", nil, &u)
	return u, err
}

func (c *AuthClient) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.prefix+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: "invalid response from server"}
	}
	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Error, Message: env.Msg, Field: env.Field}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("unexpected response data: %w", err)
		}
	}
	return nil
}
