// Package app wires all SongWords subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API, and Shutdown tears everything down in
// order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithSearchProvider, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/songwords/internal/agent"
	"github.com/MrWong99/songwords/internal/config"
	"github.com/MrWong99/songwords/internal/exclusion"
	"github.com/MrWong99/songwords/internal/health"
	"github.com/MrWong99/songwords/internal/lyrics"
	"github.com/MrWong99/songwords/internal/observe"
	"github.com/MrWong99/songwords/internal/search"
	"github.com/MrWong99/songwords/internal/store"
	"github.com/MrWong99/songwords/internal/vocab"
	"github.com/MrWong99/songwords/pkg/provider/llm"
	"github.com/MrWong99/songwords/pkg/provider/websearch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Cleaner   llm.Provider
	Extractor llm.Provider
	Search    websearch.Provider
}

// App owns all subsystem lifetimes and serves the SongWords HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store    store.Store
	tracker  *exclusion.Tracker
	governor *search.Governor
	client   *search.Client
	agent    *agent.Agent
	metrics  *observe.Metrics
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening the SQLite database from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithTracker injects an exclusion tracker instead of creating one from config.
func WithTracker(t *exclusion.Tracker) Option {
	return func(a *App) { a.tracker = t }
}

// WithMetrics injects a Metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initTracker()
	a.initSearch()

	a.agent = agent.New(
		a.client,
		a.tracker,
		lyrics.NewCleaner(providers.Cleaner, slog.Default()),
		vocab.NewExtractor(providers.Extractor, slog.Default()),
		a.store,
		slog.Default(),
		agent.WithMetrics(a.metrics),
	)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initStore() error {
	if a.store != nil {
		return nil
	}
	path := a.cfg.Store.Path
	if path == "" {
		path = "songwords.db"
	}
	workers := a.cfg.Store.Workers
	if workers == 0 {
		workers = 4
	}
	s, err := store.OpenSQLite(path, workers)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return nil
}

func (a *App) initTracker() {
	if a.tracker != nil {
		return
	}
	path := a.cfg.Exclusion.Path
	if path == "" {
		path = "excluded_sites.json"
	}
	var opts []exclusion.Option
	if a.cfg.Exclusion.Duration > 0 {
		opts = append(opts, exclusion.WithDuration(a.cfg.Exclusion.Duration))
	}
	if a.cfg.Exclusion.ParentThreshold > 0 {
		opts = append(opts, exclusion.WithParentThreshold(a.cfg.Exclusion.ParentThreshold))
	}
	opts = append(opts, exclusion.WithMetrics(a.metrics))
	a.tracker = exclusion.New(path, opts...)
}

func (a *App) initSearch() {
	var govOpts []search.GovernorOption
	if a.cfg.Search.MinRequestInterval > 0 {
		govOpts = append(govOpts, search.WithMinInterval(a.cfg.Search.MinRequestInterval))
	}
	if a.cfg.Search.CacheDuration > 0 {
		govOpts = append(govOpts, search.WithCacheDuration(a.cfg.Search.CacheDuration))
	}
	a.governor = search.NewGovernor(govOpts...)

	clientOpts := []search.ClientOption{search.WithClientMetrics(a.metrics)}
	if len(a.cfg.Search.PreferredSites) > 0 {
		clientOpts = append(clientOpts, search.WithPreferredSites(a.cfg.Search.PreferredSites))
	}
	if a.cfg.Search.PerQueryMax > 0 {
		clientOpts = append(clientOpts, search.WithPerQueryMax(a.cfg.Search.PerQueryMax))
	}
	if a.cfg.Search.FetchTimeout > 0 {
		clientOpts = append(clientOpts, search.WithFetcher(search.NewHTTPFetcher(a.cfg.Search.FetchTimeout)))
	}
	a.client = search.NewClient(a.providers.Search, a.governor, clientOpts...)
}

// routes builds the HTTP handler tree: API endpoints, health probes, and the
// Prometheus metrics endpoint, all behind the observability middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/lyrics", a.handleLyrics)
	mux.HandleFunc("POST /api/vocabulary", a.handleVocabulary)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("GET /api/history/latest", a.handleLatestHistory)
	mux.HandleFunc("DELETE /api/history", a.handleClearHistory)
	mux.HandleFunc("GET /api/songs/{id}", a.handleSong)
	mux.HandleFunc("GET /api/excluded", a.handleExcluded)

	h := health.New(
		health.StoreChecker(a.store),
		health.ExclusionStateChecker(a.cfg.Exclusion.Path),
	)
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Run serves the HTTP API and blocks until ctx is cancelled or the listener
// fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the HTTP server and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ApplyDiff applies a hot-reloadable config change: the log level and the
// search governor's rate tunables. Everything else takes effect on restart.
func (a *App) ApplyDiff(d config.ConfigDiff, level *slog.LevelVar) {
	if d.RateChanged && a.governor != nil {
		a.governor.SetLimits(d.NewMinInterval, d.NewCacheDuration)
		slog.Info("search rate limits updated",
			"min_interval", d.NewMinInterval, "cache_duration", d.NewCacheDuration)
	}
	if d.LogLevelChanged && level != nil {
		switch d.NewLogLevel {
		case config.LogDebug:
			level.Set(slog.LevelDebug)
		case config.LogInfo:
			level.Set(slog.LevelInfo)
		case config.LogWarn:
			level.Set(slog.LevelWarn)
		case config.LogError:
			level.Set(slog.LevelError)
		}
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
}
