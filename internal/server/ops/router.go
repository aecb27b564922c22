// Package ops serves the operational HTTP endpoints: liveness against the
// document store, prometheus metrics and the active config snapshot.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/config"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// NewRouter mounts
//
//	GET /healthz   store ping, 200 or 503
//	GET /metrics   prometheus exposition for gatherer
//	GET /snapshot  version of the active catalog snapshot
func NewRouter(store Pinger, gatherer prometheus.Gatherer, catalog *config.Holder, logger logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Warn(ctx, "health check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/snapshot", func(w http.ResponseWriter, req *http.Request) {
		s := catalog.Current()
		courses, topics := s.Len()
		writeJSON(w, http.StatusOK, map[string]any{
			"version":   s.Version,
			"loaded_at": s.LoadedAt,
			"courses":   courses,
			"topics":    topics,
			"blocklist": len(s.Blocklist()),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
