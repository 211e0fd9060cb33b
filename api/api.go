// Package api exposes the Argus observability surface: health,
// Prometheus metrics and detection engine stats.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"argus/config"
	"argus/detect"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Counter reports a collection's document count.
type Counter interface {
	GetEventCount(ctx context.Context) (int64, error)
}

// AlertCounter reports the alert collection's document count.
type AlertCounter interface {
	GetAlertCount(ctx context.Context) (int64, error)
}

// EngineStatter reports detection engine counters.
type EngineStatter interface {
	Stats() detect.EngineStats
	DetectorStatus() []map[string]interface{}
}

// HealthChecker pings the backing database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// API holds the HTTP server and its collaborators.
type API struct {
	router       *mux.Router
	server       *http.Server
	eventStorage Counter
	alertStorage AlertCounter
	engine       EngineStatter
	health       HealthChecker
	config       *config.Config
	logger       *zap.SugaredLogger
}

// NewAPI creates the API server and registers its routes.
func NewAPI(eventStorage Counter, alertStorage AlertCounter, engine EngineStatter, health HealthChecker, cfg *config.Config, logger *zap.SugaredLogger) *API {
	api := &API{
		router:       mux.NewRouter(),
		eventStorage: eventStorage,
		alertStorage: alertStorage,
		engine:       engine,
		health:       health,
		config:       cfg,
		logger:       logger,
	}
	api.setupRoutes()
	return api
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.Use(a.loggingMiddleware)
	a.router.HandleFunc("/api/stats", a.getStats).Methods("GET")
	a.router.HandleFunc("/healthz", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	eventCount, err := a.eventStorage.GetEventCount(r.Context())
	if err != nil {
		a.logger.Errorf("Failed to count events: %v", err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}
	alertCount, err := a.alertStorage.GetAlertCount(r.Context())
	if err != nil {
		a.logger.Errorf("Failed to count alerts: %v", err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":    eventCount,
		"alerts":    alertCount,
		"engine":    a.engine.Stats(),
		"detectors": a.engine.DetectorStatus(),
	})
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if a.health != nil {
		if err := a.health.HealthCheck(r.Context()); err != nil {
			a.logger.Warnf("Health check failed: %v", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Start starts the API server
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:    addr,
		Handler: a.router,
	}
	return a.server.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
