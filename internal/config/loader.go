package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"cleaner":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"extractor": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"search":    {"duckduckgo"},
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
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("cleaner", cfg.Providers.Cleaner.Name)
	validateProviderName("extractor", cfg.Providers.Extractor.Name)
	validateProviderName("search", cfg.Providers.Search.Name)
	for _, fb := range cfg.Providers.Cleaner.Fallbacks {
		validateProviderName("cleaner", fb.Name)
	}
	for _, fb := range cfg.Providers.Extractor.Fallbacks {
		validateProviderName("extractor", fb.Name)
	}

	if cfg.Providers.Cleaner.Name == "" {
		slog.Warn("providers.cleaner is not configured; lyrics cleaning will be unavailable")
	}
	if cfg.Providers.Extractor.Name == "" {
		slog.Warn("providers.extractor is not configured; vocabulary extraction will rely on the deterministic fallback")
	}

	// Search
	if cfg.Search.MinRequestInterval < 0 {
		errs = append(errs, fmt.Errorf("search.min_request_interval %s must not be negative", cfg.Search.MinRequestInterval))
	}
	if cfg.Search.CacheDuration < 0 {
		errs = append(errs, fmt.Errorf("search.cache_duration %s must not be negative", cfg.Search.CacheDuration))
	}
	if cfg.Search.PerQueryMax < 0 {
		errs = append(errs, fmt.Errorf("search.per_query_max %d must not be negative", cfg.Search.PerQueryMax))
	}
	if cfg.Search.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("search.fetch_timeout %s must not be negative", cfg.Search.FetchTimeout))
	}
	for i, site := range cfg.Search.PreferredSites {
		if strings.TrimSpace(site) == "" {
			errs = append(errs, fmt.Errorf("search.preferred_sites[%d] is empty", i))
		}
	}

	// Exclusion
	if cfg.Exclusion.Duration < 0 {
		errs = append(errs, fmt.Errorf("exclusion.duration %s must not be negative", cfg.Exclusion.Duration))
	}
	if cfg.Exclusion.ParentThreshold < 0 {
		errs = append(errs, fmt.Errorf("exclusion.parent_threshold %d must not be negative", cfg.Exclusion.ParentThreshold))
	}

	// Store
	if cfg.Store.Workers < 0 {
		errs = append(errs, fmt.Errorf("store.workers %d must not be negative", cfg.Store.Workers))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
