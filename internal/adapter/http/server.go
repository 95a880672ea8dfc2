// Package http serves the map page, its JSON API, and the health,
// readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/loader"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/couchcryptid/poi-map/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tdewolff/minify/v2"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// DatasetSource returns the current load snapshot.
type DatasetSource interface {
	Current() (*loader.Dataset, error)
}

// Deps are the collaborators behind the HTTP routes. Geocoder may be nil,
// which disables /api/geocode and the page search box. ClusterThrottle
// limits recoloring on /api/clusters; nil means a real-clock throttle with
// DefaultRecolorInterval.
type Deps struct {
	Ready           ReadinessChecker
	Data            DatasetSource
	Sessions        *session.Registry
	Geocoder        domain.Geocoder
	ClusterThrottle *session.Throttle
	Metrics         *observability.Metrics
	Map             domain.MapDefaults
	PublicURL       string
	MapboxToken     string
}

// DefaultRecolorInterval is the /api/clusters recolor spacing when Deps
// leaves ClusterThrottle unset.
const DefaultRecolorInterval = 200 * time.Millisecond

// Server exposes the map page, the API, and health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	colors     *clusterColors
	minifier   *minify.M
	logger     *slog.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	throttle := deps.ClusterThrottle
	if throttle == nil {
		throttle = session.NewThrottle(DefaultRecolorInterval, clockwork.NewRealClock())
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      requestLogger(logger, mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:     deps,
		colors:   newClusterColors(throttle, logger, deps.Metrics),
		minifier: newMinifier(),
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/share.png", s.handleShare)
	mux.HandleFunc("GET /api/geocode", s.handleGeocode)

	mux.HandleFunc("GET /api/pois.geojson", s.handlePOIs)
	mux.HandleFunc("GET /api/clusters", s.handleClusters)
	mux.HandleFunc("GET /api/clusters/{id}/leaves", s.handleLeaves)
	mux.HandleFunc("GET /api/clusters/{id}/expansion-zoom", s.handleExpansionZoom)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/sessions/{id}/hover", s.handleHover)
	mux.HandleFunc("POST /api/sessions/{id}/leave", s.handleLeave)
	mux.HandleFunc("POST /api/sessions/{id}/click", s.handleClick)
	mux.HandleFunc("POST /api/sessions/{id}/viewport", s.handleViewport)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
