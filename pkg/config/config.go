// Package config loads and validates the daemon configuration from a YAML
// file, with environment overrides for deployment-specific values.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envListen   = "HMACD_LISTEN"
	envUpstream = "HMACD_UPSTREAM"
	envLogLevel = "HMACD_LOG_LEVEL"

	defaultListen   = ":8080"
	defaultLogLevel = "info"
)

// Duration wraps time.Duration so it can be written as "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon configuration.
type Config struct {
	// Listen is the address the authenticating proxy listens on.
	Listen string `yaml:"listen"`
	// Upstream is the URL authenticated requests are forwarded to.
	Upstream string `yaml:"upstream"`

	// Scheme is the authorization scheme token; empty means the default.
	Scheme string `yaml:"scheme,omitempty"`
	// MaxAge is the accepted request age; zero means the default.
	MaxAge Duration `yaml:"max_age,omitempty"`
	// MaxSkew is the accepted future clock skew; zero means the default.
	MaxSkew Duration `yaml:"max_skew,omitempty"`
	// ExpiredStatus is the status for expired requests, 401 or 403.
	ExpiredStatus int `yaml:"expired_status,omitempty"`
	// DistinguishRejections keeps unknown accounts and signature
	// mismatches apart in logs and audit entries.
	DistinguishRejections bool `yaml:"distinguish_rejections,omitempty"`

	Keystore Keystore `yaml:"keystore"`

	// AuditLog is the decision log file; empty disables it.
	AuditLog string `yaml:"audit_log,omitempty"`
	// MetricsListen is the address of the Prometheus endpoint; empty
	// disables it.
	MetricsListen string `yaml:"metrics_listen,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
}

// Keystore selects where account secrets come from: a bbolt database file,
// or accounts listed inline.
type Keystore struct {
	Path     string    `yaml:"path,omitempty"`
	Accounts []Account `yaml:"accounts,omitempty"`
}

// Account is one inline account entry.
type Account struct {
	Account string `yaml:"account"`
	// Secret is the base64-encoded secret key.
	Secret string `yaml:"secret"`
}

// DecodedSecret returns the account's secret key bytes.
func (a Account) DecodedSecret() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(a.Secret)
	if err != nil {
		return nil, fmt.Errorf("account %q: secret is not valid base64", a.Account)
	}
	return secret, nil
}

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Listen = getEnv(envListen, cfg.Listen)
	cfg.Upstream = getEnv(envUpstream, cfg.Upstream)
	cfg.LogLevel = strings.ToLower(getEnv(envLogLevel, cfg.LogLevel))

	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors that should stop startup.
func (c *Config) Validate() error {
	if c.Upstream == "" {
		return errors.New("upstream is required")
	}
	upstream, err := url.Parse(c.Upstream)
	if err != nil {
		return fmt.Errorf("invalid upstream: %w", err)
	}
	if !upstream.IsAbs() {
		return errors.New("upstream must be absolute (scheme://host)")
	}

	switch c.ExpiredStatus {
	case 0, http.StatusUnauthorized, http.StatusForbidden:
	default:
		return fmt.Errorf("expired_status must be 401 or 403, got %d", c.ExpiredStatus)
	}

	if time.Duration(c.MaxAge) < 0 {
		return errors.New("max_age must not be negative")
	}
	if time.Duration(c.MaxSkew) < 0 {
		return errors.New("max_skew must not be negative")
	}

	if c.Keystore.Path == "" && len(c.Keystore.Accounts) == 0 {
		return errors.New("keystore requires a path or at least one account")
	}
	if c.Keystore.Path != "" && len(c.Keystore.Accounts) > 0 {
		return errors.New("keystore path and inline accounts are mutually exclusive")
	}

	seen := make(map[string]bool)
	for _, account := range c.Keystore.Accounts {
		if account.Account == "" {
			return errors.New("keystore account name must not be empty")
		}
		if seen[account.Account] {
			return fmt.Errorf("duplicate keystore account %q", account.Account)
		}
		seen[account.Account] = true
		if _, err := account.DecodedSecret(); err != nil {
			return err
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
