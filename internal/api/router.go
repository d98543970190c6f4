package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/Nikunikuo/EmotionMemCore/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid
// import cycles.
type HandlerSet struct {
	SaveMemory     http.HandlerFunc
	BatchSave      http.HandlerFunc
	SearchMemories http.HandlerFunc
	ListMemories   http.HandlerFunc
	GetMemory      http.HandlerFunc
	DeleteMemory   http.HandlerFunc
	Stats          http.HandlerFunc

	// Readiness checks per dependency; nil means not configured.
	StoreHealthy func(r *http.Request) error
	RedisHealthy func(r *http.Request) error
	NATSHealthy  func() bool
}

func NewRouter(h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(mw.Metrics)

	// Liveness probe, always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe, checks the store and optional dependencies
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status": "healthy",
			"store":  "healthy",
			"redis":  "not configured",
			"nats":   "not configured",
		}
		status := http.StatusOK

		if h.StoreHealthy != nil {
			if err := h.StoreHealthy(r); err != nil {
				health["store"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		if h.RedisHealthy != nil {
			health["redis"] = "healthy"
			if err := h.RedisHealthy(r); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		if h.NATSHealthy != nil {
			health["nats"] = "healthy"
			if !h.NATSHealthy() {
				health["nats"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/memories", func(r chi.Router) {
			r.Post("/", h.SaveMemory)
			r.Post("/batch", h.BatchSave)
			r.Post("/search", h.SearchMemories)
			r.Get("/", h.ListMemories)
			r.Get("/{memoryID}", h.GetMemory)
			r.Delete("/{memoryID}", h.DeleteMemory)
		})
		r.Get("/stats", h.Stats)
	})

	return r
}
