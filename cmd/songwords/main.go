// Command songwords is the main entry point for the SongWords lyrics server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/songwords/internal/app"
	"github.com/MrWong99/songwords/internal/config"
	"github.com/MrWong99/songwords/internal/observe"
	"github.com/MrWong99/songwords/internal/resilience"
	"github.com/MrWong99/songwords/pkg/provider/llm"
	"github.com/MrWong99/songwords/pkg/provider/llm/anyllm"
	openaillm "github.com/MrWong99/songwords/pkg/provider/llm/openai"
	"github.com/MrWong99/songwords/pkg/provider/websearch"
	"github.com/MrWong99/songwords/pkg/provider/websearch/duckduckgo"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", false, "reload hot-applicable settings when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "songwords: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "songwords: %v\n", err)
		}
		return 1
	}

	level := &slog.LevelVar{}
	level.Set(logLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("songwords starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers; metrics surface at /metrics.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "songwords",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.ApplyDiff(config.Diff(old, new), level)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// anthropic, gemini, deepseek, mistral, groq, llamacpp and llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// openai goes through the dedicated SDK client.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openaillm.WithOrganization(org))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSearch("duckduckgo", func(entry config.ProviderEntry) (websearch.Provider, error) {
		var opts []duckduckgo.Option
		if entry.BaseURL != "" {
			opts = append(opts, duckduckgo.WithEndpoint(entry.BaseURL))
		}
		return duckduckgo.New(opts...), nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if cfg.Providers.Cleaner.Name != "" {
		p, err := buildLLM(reg, cfg.Providers.Cleaner, "cleaner")
		if err != nil {
			return nil, err
		}
		ps.Cleaner = p
	}

	if cfg.Providers.Extractor.Name != "" {
		p, err := buildLLM(reg, cfg.Providers.Extractor, "extractor")
		if err != nil {
			return nil, err
		}
		ps.Extractor = p
	}

	searchEntry := cfg.Providers.Search
	if searchEntry.Name == "" {
		searchEntry.Name = "duckduckgo"
	}
	p, err := reg.CreateSearch(searchEntry)
	if err != nil {
		return nil, fmt.Errorf("create search provider %q: %w", searchEntry.Name, err)
	}
	ps.Search = p
	slog.Info("provider created", "kind", "search", "name", searchEntry.Name)

	return ps, nil
}

// buildLLM instantiates the LLM provider for one pipeline stage. If the entry
// declares fallbacks, the whole set is wrapped in a circuit-breaking failover
// chain tried in declaration order.
func buildLLM(reg *config.Registry, entry config.ProviderEntry, kind string) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)

	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewFailover(primary, entry.Name, resilience.BreakerConfig{}, slog.Default())
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create %s fallback provider %q: %w", kind, fb.Name, err)
		}
		chain.Add(fb.Name, p)
		slog.Info("fallback provider created", "kind", kind, "name", fb.Name)
	}
	return chain, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        SongWords — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Cleaner", cfg.Providers.Cleaner.Name, cfg.Providers.Cleaner.Model)
	printProvider("Extractor", cfg.Providers.Extractor.Name, cfg.Providers.Extractor.Model)
	printProvider("Search", cfg.Providers.Search.Name, "")
	fmt.Printf("║  Store           : %-19s ║\n", fallback(cfg.Store.Path, "songwords.db"))
	fmt.Printf("║  Exclusion file  : %-19s ║\n", fallback(cfg.Exclusion.Path, "excluded_sites.json"))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	if len(s) > 19 {
		return "…" + s[len(s)-18:]
	}
	return s
}

func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
