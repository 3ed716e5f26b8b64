// Package config provides the configuration schema, loader, and provider
// registry for the SongWords lyrics pipeline.
package config

import "time"

// LogLevel controls log verbosity for the SongWords server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for SongWords.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Exclusion ExclusionConfig `yaml:"exclusion"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig holds network and logging settings for the SongWords server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry]. Cleaner and Extractor may point at different models.
type ProvidersConfig struct {
	// Cleaner is the LLM used to strip lyrics pages down to lyric lines.
	Cleaner ProviderEntry `yaml:"cleaner"`

	// Extractor is the LLM used to build vocabulary lists.
	Extractor ProviderEntry `yaml:"extractor"`

	// Search selects the web search backend.
	Search ProviderEntry `yaml:"search"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "qwen2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists alternative providers tried in order when this one fails
	// or its circuit breaker is open. Only honoured for LLM providers.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// SearchConfig tunes the rate-limited search and fetch loop.
type SearchConfig struct {
	// MinRequestInterval is the minimum spacing between provider queries.
	// Zero means the built-in default of 30s.
	MinRequestInterval time.Duration `yaml:"min_request_interval"`

	// CacheDuration bounds how long search results are served from cache.
	// Zero means the built-in default of 1h.
	CacheDuration time.Duration `yaml:"cache_duration"`

	// PreferredSites biases queries towards these lyrics sites.
	// Empty means the built-in default list.
	PreferredSites []string `yaml:"preferred_sites"`

	// PerQueryMax caps how many candidate pages one query fetches.
	PerQueryMax int `yaml:"per_query_max"`

	// FetchTimeout bounds each candidate page download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// ExclusionConfig tunes the failing-domain tracker.
type ExclusionConfig struct {
	// Path is where the exclusion state JSON is persisted.
	Path string `yaml:"path"`

	// Duration is how long a failing domain stays excluded.
	// Zero means the built-in default of 24h.
	Duration time.Duration `yaml:"duration"`

	// ParentThreshold is how many failing URLs under one registrable domain
	// promote the whole domain. Zero means the built-in default of 3.
	ParentThreshold int `yaml:"parent_threshold"`
}

// StoreConfig locates the embedded song database.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything in RAM.
	Path string `yaml:"path"`

	// Workers bounds the connection pool. Zero means 4.
	Workers int `yaml:"workers"`
}
