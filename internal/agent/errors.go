package agent

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies pipeline errors for callers.
type Kind string

const (
	KindInvalidInput   Kind = "invalid_input"
	KindRateLimited    Kind = "rate_limited"
	KindNoResults      Kind = "no_results"
	KindFetchError     Kind = "fetch_error"
	KindLLMUnavailable Kind = "llm_unavailable"
	KindInternal       Kind = "internal"
)

// Error is a classified pipeline error. Rate-limit errors carry the advised
// wait; fetch errors carry the candidate URL and pipeline stage.
type Error struct {
	Kind  Kind
	Wait  time.Duration
	URL   string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("rate limited, retry in %s", e.Wait.Round(time.Second))
	case KindFetchError:
		return fmt.Sprintf("fetch error at %s (%s): %v", e.URL, e.Stage, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of err if it is a pipeline *Error, KindInternal
// otherwise.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
