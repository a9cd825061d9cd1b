// Package fs provides a file-backed client.TokenCache.
package fs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/aidevplatform/passport/client"
)

// TokenCache keeps tokens for every server in one JSON file readable only
// by its owner.
type TokenCache struct {
	mu       sync.RWMutex
	path     string
	servers  map[string]*client.CachedToken
	modified bool
}

type tokenFile struct {
	Servers map[string]*client.CachedToken `json:"servers"`
}

// NewTokenCache opens (or prepares) the cache file. If path is empty it
// defaults to <user config dir>/<appName>/tokens.json.
func NewTokenCache(path string, appName string) (*TokenCache, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "passport"
		}
		path = filepath.Join(configDir, appName, "tokens.json")
	}

	c := &TokenCache{
		path:    path,
		servers: make(map[string]*client.CachedToken),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	var file tokenFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if file.Servers != nil {
		c.servers = file.Servers
	}
	return c, nil
}

// serverKey reduces a URL to scheme://host.
func serverKey(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host, nil
}

func (c *TokenCache) GetToken(serverURL string) (*client.CachedToken, error) {
	key, err := serverKey(serverURL)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.servers[key], nil
}

func (c *TokenCache) SetToken(serverURL string, tok *client.CachedToken) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[key] = tok
	c.modified = true
	return nil
}

func (c *TokenCache) RemoveToken(serverURL string) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, key)
	c.modified = true
	return nil
}

// Save writes the file with 0600 permissions when something changed.
func (c *TokenCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.modified {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(tokenFile{Servers: c.servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize tokens: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	c.modified = false
	return nil
}

// Path returns the path to the cache file
func (c *TokenCache) Path() string {
	return c.path
}
