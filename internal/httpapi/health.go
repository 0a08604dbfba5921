// Package httpapi is the thin HTTP surface every long-lived Chimera
// process exposes: a /health endpoint reporting the liveness of whatever
// backing dependencies that process owns. Grounded on the pack's
// chi-router-plus-graceful-shutdown convention (see
// other_examples/6d407774_kailas-cloud-vecdex__cmd-vecdex-main.go.go's
// server bootstrap).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Checker reports whether one backing dependency (Redis, Postgres, the
// vision backend, ...) is currently reachable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckerFunc builds a Checker from a name and probe function.
func NewCheckerFunc(name string, fn func(ctx context.Context) error) CheckerFunc {
	return CheckerFunc{name: name, fn: fn}
}

// Name implements Checker.
func (c CheckerFunc) Name() string { return c.name }

// Check implements Checker.
func (c CheckerFunc) Check(ctx context.Context) error { return c.fn(ctx) }

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewServer builds the chi router backing the /health endpoint. The
// process stays up (HTTP 200) as long as it is accepting requests; a
// failing checker is reported in the body rather than flipping the status
// code, so a transient Redis blip doesn't pull the process out of rotation.
func NewServer(addr string, checkTimeout time.Duration, logger *zap.Logger, checkers ...Checker) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		for _, checker := range checkers {
			if err := checker.Check(ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[checker.Name()] = err.Error()
				if logger != nil {
					logger.Warn("health check failed", zap.String("checker", checker.Name()), zap.Error(err))
				}
			} else {
				resp.Checks[checker.Name()] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}
