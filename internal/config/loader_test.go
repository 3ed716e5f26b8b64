package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/songwords/pkg/provider/llm"
	llmmock "github.com/MrWong99/songwords/pkg/provider/llm/mock"
	"github.com/MrWong99/songwords/pkg/provider/websearch"
	searchmock "github.com/MrWong99/songwords/pkg/provider/websearch/mock"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  cleaner:
    name: ollama
    model: qwen2
  extractor:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  search:
    name: duckduckgo
search:
  min_request_interval: 30s
  cache_duration: 1h
  preferred_sites:
    - mojim.com
    - kkbox.com
  per_query_max: 5
  fetch_timeout: 10s
exclusion:
  path: /var/lib/songwords/excluded.json
  duration: 24h
  parent_threshold: 3
store:
  path: /var/lib/songwords/songs.db
  workers: 4
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.Cleaner.Model != "qwen2" {
		t.Errorf("Cleaner.Model = %q", cfg.Providers.Cleaner.Model)
	}
	if cfg.Search.MinRequestInterval != 30*time.Second {
		t.Errorf("MinRequestInterval = %v", cfg.Search.MinRequestInterval)
	}
	if len(cfg.Search.PreferredSites) != 2 {
		t.Errorf("PreferredSites = %v", cfg.Search.PreferredSites)
	}
	if cfg.Exclusion.ParentThreshold != 3 {
		t.Errorf("ParentThreshold = %d", cfg.Exclusion.ParentThreshold)
	}
	if cfg.Store.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Store.Workers)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("server:\n  listen_adr: ':8080'\n"))
	if err == nil {
		t.Fatal("LoadFromReader() should reject unknown fields")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "tls missing key",
			mutate:  func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "cert.pem"} },
			wantErr: "server.tls",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.Search.MinRequestInterval = -time.Second },
			wantErr: "search.min_request_interval",
		},
		{
			name:    "empty preferred site",
			mutate:  func(c *Config) { c.Search.PreferredSites = []string{"mojim.com", "  "} },
			wantErr: "search.preferred_sites[1]",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Exclusion.ParentThreshold = -1 },
			wantErr: "exclusion.parent_threshold",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("baseline config invalid: %v", err)
			}
			tt.mutate(cfg)
			err = Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "/var/lib/songwords/songs.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() on a missing file should fail")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterLLM("mock", func(ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	r.RegisterSearch("mock", func(ProviderEntry) (websearch.Provider, error) {
		return &searchmock.Provider{}, nil
	})

	if _, err := r.CreateLLM(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateLLM(mock) error = %v", err)
	}
	if _, err := r.CreateSearch(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSearch(mock) error = %v", err)
	}
	if _, err := r.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(nope) error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSearch(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSearch(nope) error = %v, want ErrProviderNotRegistered", err)
	}
}
