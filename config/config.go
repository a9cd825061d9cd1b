// Package config loads passportd settings from defaults, an optional file
// and PASSPORT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names, so jwt.secret is
// read from PASSPORT_JWT_SECRET.
const EnvPrefix = "PASSPORT"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	Prefix       string        `mapstructure:"prefix"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver is "sqlite", "postgres", "datastore" or "fs".
	Driver string `mapstructure:"driver"`
	// DSN is the connection string for sqlite and postgres, and the
	// storage directory for fs.
	DSN string `mapstructure:"dsn"`
	// Project and Namespace select the Cloud Datastore database.
	Project   string `mapstructure:"project"`
	Namespace string `mapstructure:"namespace"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	TTL             time.Duration `mapstructure:"ttl"`
	Issuer          string        `mapstructure:"issuer"`
	StrictKeyLength bool          `mapstructure:"strict_key_length"`
}

type AuthConfig struct {
	ResetTicketTTL   time.Duration `mapstructure:"reset_ticket_ttl"`
	ResetLinkBase    string        `mapstructure:"reset_link_base"`
	ExposeResetToken bool          `mapstructure:"expose_reset_token"`
	PurgeInterval    time.Duration `mapstructure:"purge_interval"`
}

type OAuthConfig struct {
	StateTTL time.Duration `mapstructure:"state_ttl"`
	// StateBackend is "memory" or "redis".
	StateBackend     string         `mapstructure:"state_backend"`
	RedisAddr        string         `mapstructure:"redis_addr"`
	RequestTimeout   time.Duration  `mapstructure:"request_timeout"`
	FrontendRedirect string         `mapstructure:"frontend_redirect"`
	GitHub           ProviderConfig `mapstructure:"github"`
	Google           ProviderConfig `mapstructure:"google"`
}

type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes"`
}

// Enabled reports whether both client credentials are set.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.prefix", "")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "passport.db")
	v.SetDefault("database.project", "")
	v.SetDefault("database.namespace", "")

	v.SetDefault("jwt.secret", "ai-code-review-secret-key-2024")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.strict_key_length", false)

	v.SetDefault("auth.reset_ticket_ttl", time.Hour)
	v.SetDefault("auth.reset_link_base", "/sys/user/reset")
	v.SetDefault("auth.expose_reset_token", false)
	v.SetDefault("auth.purge_interval", time.Hour)

	v.SetDefault("oauth.state_ttl", 5*time.Minute)
	v.SetDefault("oauth.state_backend", "memory")
	v.SetDefault("oauth.redis_addr", "localhost:6379")
	v.SetDefault("oauth.request_timeout", 10*time.Second)
	v.SetDefault("oauth.frontend_redirect", "http://localhost:5173")
	v.SetDefault("oauth.github.client_id", "")
	v.SetDefault("oauth.github.client_secret", "")
	v.SetDefault("oauth.github.redirect_uri", "http://localhost:8080/oauth/callback")
	v.SetDefault("oauth.github.scopes", []string{"user:email"})
	v.SetDefault("oauth.google.client_id", "")
	v.SetDefault("oauth.google.client_secret", "")
	v.SetDefault("oauth.google.redirect_uri", "http://localhost:8080/oauth/google/callback")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path when non-empty (YAML, JSON or TOML by extension), then
// applies the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would break every request. Missing
// provider credentials are not an error; only the federated routes fail.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres", "fs":
	case "datastore":
		if c.Database.Project == "" {
			errs = append(errs, errors.New("database.project is required for the datastore driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite, postgres, datastore or fs, got %q", c.Database.Driver))
	}
	switch c.OAuth.StateBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("oauth.state_backend must be memory or redis, got %q", c.OAuth.StateBackend))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}
	if c.Auth.ResetTicketTTL <= 0 {
		errs = append(errs, errors.New("auth.reset_ticket_ttl must be positive"))
	}
	if c.OAuth.StateTTL <= 0 {
		errs = append(errs, errors.New("oauth.state_ttl must be positive"))
	}
	return errors.Join(errs...)
}
