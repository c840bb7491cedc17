// Package api exposes the HTTP query interface over the archive-backed
// snapshots. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for a snapshot and refresh summary.
//   - GET /api/v1/productAlerts/... for field notice and bulletin queries.
//   - GET /api/v1/features/... for software feature queries.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/config"
	"github.com/ciscoinsights/device-insights/internal/features"
	"github.com/ciscoinsights/device-insights/internal/index"
	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// retryAfterSeconds is the Retry-After hint sent while data is not ready.
const retryAfterSeconds = "60"

// AlertIndex serves immutable alert snapshots.
type AlertIndex interface {
	Snapshot() (*index.Index, error)
}

// FeatureStore answers software feature queries from the feature archive.
type FeatureStore interface {
	PlatformFeatures(platformID, releaseID int) ([]features.Feature, error)
	Platforms(platformType, byName string) ([]features.Platform, error)
	Releases(platformID int) ([]features.Release, error)
}

// RefreshMonitor reports background refresh activity.
type RefreshMonitor interface {
	Refreshing() bool
	LastCycle() time.Time
}

// IDGenerator mints request identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Server wires HTTP handlers to the alert index and feature store.
type Server struct {
	router   chi.Router
	alerts   AlertIndex
	features FeatureStore
	monitor  RefreshMonitor
	ids      IDGenerator
	clock    Clock
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Probe and
// metrics routes stay open; the /api/v1 tree honors the auth config.
func NewServer(
	alerts AlertIndex,
	featureStore FeatureStore,
	monitor RefreshMonitor,
	ids IDGenerator,
	clock Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		alerts:   alerts,
		features: featureStore,
		monitor:  monitor,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "api"),
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/productAlerts", func(r chi.Router) {
			r.Get("/field_notices", s.fieldNotices)
			r.Get("/eol", s.eolBulletins)
			r.Get("/software_types", s.softwareTypes)
		})
		r.Route("/features", func(r chi.Router) {
			r.Get("/", s.platformFeatures)
			r.Get("/platforms", s.platforms)
			r.Get("/releases", s.releases)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.alerts.Snapshot(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"refreshing": s.monitor.Refreshing(),
	}
	if last := s.monitor.LastCycle(); !last.IsZero() {
		payload["last_refresh"] = last.UTC().Format(time.RFC3339)
	}
	snap, err := s.alerts.Snapshot()
	if err != nil {
		payload["ready"] = false
	} else {
		payload["ready"] = true
		payload["snapshot"] = map[string]any{
			"built_at":       snap.BuiltAt().Format(time.RFC3339),
			"age_seconds":    int(s.clock.Now().Sub(snap.BuiltAt()).Seconds()),
			"pages":          snap.Pages(),
			"field_notices":  len(snap.Notices()),
			"eol_bulletins":  len(snap.EOLEntries()),
			"software_types": len(snap.SoftwareTypes()),
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// snapshot resolves the current alert snapshot, answering 503 with a
// retry hint when no archive has been loaded yet. The nil snapshot
// return means the response has already been written.
func (s *Server) snapshot(w http.ResponseWriter) *index.Index {
	snap, err := s.alerts.Snapshot()
	if err == nil {
		return snap
	}
	if errors.Is(err, index.ErrNotReady) {
		s.writeNotReady(w, "product alert data is not ready yet")
		return nil
	}
	s.logger.Error("snapshot failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "snapshot unavailable")
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeNotReady keeps the data field present so paginating clients can
// treat the 503 body like an empty page.
func (s *Server) writeNotReady(w http.ResponseWriter, msg string) {
	w.Header().Set("Retry-After", retryAfterSeconds)
	s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"error": msg,
		"data":  []any{},
	})
}
