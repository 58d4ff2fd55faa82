package config

import (
	"time"

	"github.com/mattjoyce/lookout/internal/dispatch"
)

// Config represents the complete lookout configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Catalog CatalogConfig `yaml:"catalog"`
	API     APIConfig     `yaml:"api"`
	Search  SearchConfig  `yaml:"search"`

	Webhooks WebhooksConfig `yaml:"webhooks"`

	// SourcePath is the absolute path the configuration was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// CatalogConfig defines where the catalog lives and which seeds feed it.
type CatalogConfig struct {
	Path     string   `yaml:"path"`
	LockPath string   `yaml:"lock_path"`
	Seeds    []string `yaml:"seeds"`
	Watch    bool     `yaml:"watch"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey   string     `yaml:"api_key"`
	Tokens   []APIToken `yaml:"tokens,omitempty"`
	Disabled bool       `yaml:"disabled"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// WebhooksConfig defines signed seed push endpoints. The listener is only
// started when at least one endpoint is configured.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint is one seed push path and its shared secret.
type WebhookEndpoint struct {
	Path            string `yaml:"path"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header,omitempty"`
	// MaxBodySize accepts plain bytes or KB/MB/GB suffixes.
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// SearchConfig configures interactive clients and their query dispatcher.
type SearchConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	APIKey             string        `yaml:"api_key"`
	Limit              int           `yaml:"limit"`
	Encoding           string        `yaml:"encoding"`
	DebounceInterval   time.Duration `yaml:"debounce_interval"`
	SuppressEmptyQuery bool          `yaml:"suppress_empty_query"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	Retry              RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for failed search requests.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// Dispatch converts the search settings into a dispatcher configuration.
func (s SearchConfig) Dispatch() dispatch.Config {
	return dispatch.Config{
		DebounceInterval:   s.DebounceInterval,
		SuppressEmptyQuery: s.SuppressEmptyQuery,
		RequestTimeout:     s.RequestTimeout,
		Retry: dispatch.RetryConfig{
			MaxAttempts: s.Retry.MaxAttempts,
			BackoffBase: s.Retry.BackoffBase,
		},
	}
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "lookout",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Catalog: CatalogConfig{
			Path: "./data/catalog.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8080",
		},
		Search: SearchConfig{
			Endpoint:         "http://127.0.0.1:8080",
			Limit:            50,
			Encoding:         "json",
			DebounceInterval: dispatch.DefaultDebounceInterval,
			Retry: RetryConfig{
				MaxAttempts: 1,
				BackoffBase: dispatch.DefaultRetryBackoff,
			},
		},
	}
}
