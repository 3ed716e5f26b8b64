package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/songwords/pkg/provider/llm"
)

// ErrAllBackendsFailed is returned by [Failover.Complete] when every configured
// backend either failed or had an open circuit breaker.
var ErrAllBackendsFailed = errors.New("all llm backends failed")

// Failover implements [llm.Provider] over an ordered list of backends, each
// guarded by its own [Breaker]. Requests go to the first backend whose breaker
// admits them; a failure moves on to the next.
type Failover struct {
	entries []failoverEntry
	cfg     BreakerConfig
	logger  *slog.Logger
}

type failoverEntry struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

var _ llm.Provider = (*Failover)(nil)

// NewFailover creates a [Failover] with primary as the preferred backend.
// Additional backends are registered with [Failover.Add] and tried in
// registration order. cfg configures the per-backend breakers; its Name field
// is ignored.
func NewFailover(primary llm.Provider, name string, cfg BreakerConfig, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Failover{cfg: cfg, logger: logger}
	f.Add(name, primary)
	return f
}

// Add appends a fallback backend. Not safe to call concurrently with Complete;
// register all backends before use.
func (f *Failover) Add(name string, provider llm.Provider) {
	cfg := f.cfg
	cfg.Name = name
	f.entries = append(f.entries, failoverEntry{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(cfg),
	})
}

// Complete sends req to the first healthy backend and returns its response.
func (f *Failover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for i := range f.entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		entry := &f.entries[i]

		var resp *llm.CompletionResponse
		err := entry.breaker.Do(func() error {
			var callErr error
			resp, callErr = entry.provider.Complete(ctx, req)
			return callErr
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, ErrOpen) {
			f.logger.Debug("skipping llm backend, circuit open", "backend", entry.name)
		} else {
			f.logger.Warn("llm backend failed, trying next",
				"backend", entry.name, "err", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
