package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviderNames lists known LLM provider names.
// Used by [Validate] to warn about unrecognised names.
var ValidLLMProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// LLM provider name — warn for unknown names, they may be third party.
	if name := cfg.Providers.LLM.Name; name != "" && !slices.Contains(ValidLLMProviderNames, name) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"name", name,
			"known", ValidLLMProviderNames,
		)
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; suggestions will use built-in fallbacks")
	}

	// Extractor
	if u := cfg.Providers.Extractor.URL; u != "" {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("providers.extractor.url %q is not a valid absolute URL", u))
		}
	} else {
		slog.Warn("providers.extractor.url is empty; audio uploads are disabled, clients must submit feature bags")
	}
	if cfg.Providers.Extractor.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("providers.extractor.timeout_seconds %d must not be negative", cfg.Providers.Extractor.TimeoutSeconds))
	}

	// Storage
	if cfg.Storage.StateDir == "" {
		errs = append(errs, errors.New("storage.state_dir is required"))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; running local-only, session history will not survive restarts")
	}

	// Alerts
	if cfg.Alerts.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("alerts.cooldown_seconds %d must not be negative", cfg.Alerts.CooldownSeconds))
	}

	// Auth
	if cfg.Auth.TokenTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl_seconds %d must not be negative", cfg.Auth.TokenTTLSeconds))
	}
	if cfg.Auth.ChatTokenSecret == "" {
		slog.Warn("auth.chat_token_secret is empty; the chat token endpoint is disabled")
	}

	return errors.Join(errs...)
}
