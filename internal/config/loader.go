package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/lookout/internal/auth"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file, interpolates ${VAR} references, applies
// defaults, verifies the checksum sidecar if present and validates.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// ResolvePath returns the absolute config file path. A directory resolves to
// its config.yaml.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}
	return absPath, nil
}

func load(configPath string, verify bool) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if verify {
		if err := verifyChecksum(absPath, data); err != nil {
			return nil, err
		}
	}

	cfg, err := Parse([]byte(interpolateEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Defaults. No interpolation or validation.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// resolvePaths makes relative catalog paths relative to the config file.
func resolvePaths(cfg *Config, baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	cfg.Catalog.Path = abs(cfg.Catalog.Path)
	if cfg.Catalog.LockPath == "" && cfg.Catalog.Path != "" {
		cfg.Catalog.LockPath = cfg.Catalog.Path + ".lock"
	}
	cfg.Catalog.LockPath = abs(cfg.Catalog.LockPath)
	for i, s := range cfg.Catalog.Seeds {
		cfg.Catalog.Seeds[i] = abs(s)
	}
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validation reports it where it matters.
		return match
	})
}

func unresolvedEnv(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validLogFormats[strings.ToLower(cfg.Service.LogFormat)] {
		return fmt.Errorf("service.log_format must be one of: json, text, console (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	for i, s := range cfg.Catalog.Seeds {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("catalog.seeds[%d] is empty", i)
		}
	}
	if cfg.Catalog.Watch && len(cfg.Catalog.Seeds) == 0 {
		return fmt.Errorf("catalog.watch requires catalog.seeds")
	}

	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if err := unresolvedEnv("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
		return err
	}
	for i, tok := range cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if tok.Token == "" {
			return fmt.Errorf("%s.token is required", field)
		}
		if err := unresolvedEnv(field+".token", tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("%s.scopes must be non-empty", field)
		}
		if err := auth.ValidateScopes(tok.Scopes); err != nil {
			return fmt.Errorf("%s.scopes: %w", field, err)
		}
	}

	if err := validateWebhooks(cfg.Webhooks, cfg.API.Listen); err != nil {
		return err
	}
	return validateSearch(cfg.Search)
}

func validateWebhooks(w WebhooksConfig, apiListen string) error {
	if len(w.Endpoints) == 0 {
		return nil
	}
	if w.Listen == "" {
		return fmt.Errorf("webhooks.listen is required when endpoints are configured")
	}
	if w.Listen == apiListen {
		return fmt.Errorf("webhooks.listen must differ from api.listen (%s)", apiListen)
	}
	seen := make(map[string]bool)
	for i, ep := range w.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("%s.path must start with / (got %q)", field, ep.Path)
		}
		if seen[ep.Path] {
			return fmt.Errorf("%s.path %q is duplicated", field, ep.Path)
		}
		seen[ep.Path] = true
		if ep.Secret == "" {
			return fmt.Errorf("%s.secret is required", field)
		}
		if err := unresolvedEnv(field+".secret", ep.Secret); err != nil {
			return err
		}
	}
	return nil
}

func validateSearch(s SearchConfig) error {
	if s.Endpoint != "" {
		u, err := url.Parse(s.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("search.endpoint must be an http(s) URL (got %q)", s.Endpoint)
		}
	}
	if err := unresolvedEnv("search.api_key", s.APIKey); err != nil {
		return err
	}
	if s.Limit < 0 || s.Limit > 500 {
		return fmt.Errorf("search.limit must be between 0 and 500 (got %d)", s.Limit)
	}
	switch strings.ToLower(s.Encoding) {
	case "json", "msgpack":
	default:
		return fmt.Errorf("search.encoding must be json or msgpack (got %q)", s.Encoding)
	}
	if err := s.Dispatch().Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}
