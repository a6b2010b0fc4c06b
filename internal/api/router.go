// Package api exposes the volwatch HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/pipeline"
	"github.com/leeaandrob/volwatch/internal/scheduler"
)

// Server represents the API server.
type Server struct {
	router    *chi.Mux
	handlers  *Handlers
	runner    *pipeline.Runner
	scheduler *scheduler.Scheduler
	addr      string
	server    *http.Server
}

// NewServer creates a new API server.
func NewServer(store HistoryStore, runner *pipeline.Runner, sched *scheduler.Scheduler, addr string) *Server {
	handlers := NewHandlers(store, runner)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv := &Server{
		router:    r,
		handlers:  handlers,
		runner:    runner,
		scheduler: sched,
		addr:      addr,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/stats", handlers.GetStats)
		r.Get("/state", handlers.GetState)
		r.Get("/notifications", handlers.GetNotifications)
		r.Get("/calendar", handlers.GetCalendar)
		r.Post("/preview", handlers.Preview)

		// Admin routes (no auth, bind to a private address)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/tick", srv.AdminTick)
			r.Post("/reset", srv.AdminResetGate)
			r.Get("/jobs", srv.AdminGetJobs)
			r.Post("/jobs/{name}/run", srv.AdminRunJob)
		})
	})

	return srv
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============================================================================
// ADMIN HANDLERS
// ============================================================================

// AdminTick runs one evaluation cycle synchronously.
func (s *Server) AdminTick(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "Runner not available")
		return
	}

	out, err := s.runner.Tick(r.Context())
	resp := tickResponse{Outcome: out, Latch: s.runner.Gate().Snapshot()}
	if err != nil {
		resp.DeliveryError = err.Error()
		respondJSON(w, http.StatusBadGateway, resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// AdminResetGate clears the latch so the next tick notifies again.
func (s *Server) AdminResetGate(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "Runner not available")
		return
	}

	s.runner.Gate().Reset()
	log.Warn().Msg("Notification gate reset")

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Gate reset",
	})
}

// AdminGetJobs returns the status of all scheduled jobs.
func (s *Server) AdminGetJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler not available")
		return
	}

	jobs := s.scheduler.GetJobStatus()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// AdminRunJob runs a specific job by name.
func (s *Server) AdminRunJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler not available")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "Job name is required")
		return
	}

	if err := s.scheduler.RunJobNow(name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Job triggered: " + name,
	})
}
