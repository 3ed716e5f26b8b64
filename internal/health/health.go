// Package health provides the HTTP health and readiness probes for the
// lyrics server.
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; 200 only when every registered [Checker] passes.
//     The server registers checks for the SQLite store and the exclusion
//     state file (see checkers.go).
//
// The readiness response carries one entry per check:
//
//	{"status":"fail","checks":{"store":{"status":"ok"},"exclusion_state":{"status":"fail","error":"..."}}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check. Both registered checks are
// local filesystem operations, so anything slower than this is a failure.
const checkTimeout = 2 * time.Second

// Checker is a named health check. Check returns nil when the dependency is
// healthy; it must respect context cancellation.
type Checker struct {
	// Name keys the check in the JSON response (e.g. "store").
	Name string

	Check func(ctx context.Context) error
}

// checkStatus is the per-check entry in the readiness response.
type checkStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// report is the JSON response body for both probes.
type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkStatus `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. It is safe for
// concurrent use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating the given checkers, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz returns 200 only when every checker passes. Each check runs under a
// [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]checkStatus, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = checkStatus{Status: "fail", Error: err.Error()}
			allOK = false
		} else {
			checks[c.Name] = checkStatus{Status: "ok"}
		}
	}

	res := report{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
