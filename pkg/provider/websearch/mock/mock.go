// Package mock provides a test double for the websearch.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/songwords/pkg/provider/websearch"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	// Query is the query string passed to Search.
	Query string
	// Max is the result cap passed to Search.
	Max int
}

// Provider is a mock implementation of websearch.Provider.
// Zero values cause Search to return (nil, nil).
type Provider struct {
	mu sync.Mutex

	// Records is returned by Search (truncated to max when max > 0).
	Records []websearch.Record

	// Err, if non-nil, is returned as the error from Search.
	Err error

	// SearchCalls records every invocation of Search in order.
	SearchCalls []SearchCall
}

var _ websearch.Provider = (*Provider)(nil)

// Search implements websearch.Provider.
func (p *Provider) Search(_ context.Context, query string, max int) ([]websearch.Record, error) {
	p.mu.Lock()
	p.SearchCalls = append(p.SearchCalls, SearchCall{Query: query, Max: max})
	records, err := p.Records, p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if max > 0 && len(records) > max {
		records = records[:max]
	}
	return records, nil
}

// Calls returns a copy of the recorded Search invocations.
func (p *Provider) Calls() []SearchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SearchCall, len(p.SearchCalls))
	copy(out, p.SearchCalls)
	return out
}
