// Package api exposes a small embedded status server for long fetch runs.
// Rate limiting stretches large airport/date products over hours, so the
// progress endpoint gives remote visibility into a run without touching the
// process.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/skyfetch/internal/fetch"
	"github.com/yegors/skyfetch/pkg/logger"
)

// Router is the status API router
type Router struct {
	aggregator *fetch.Aggregator
	middleware *Middleware
	logger     *logger.Logger
}

// NewRouter creates a new status API router
func NewRouter(aggregator *fetch.Aggregator, logger *logger.Logger) *Router {
	return &Router{
		aggregator: aggregator,
		middleware: NewMiddleware(logger),
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/progress", r.getProgress)
		router.Get("/health", r.getHealth)
	})

	return router
}

func (r *Router) getProgress(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.aggregator.Snapshot()); err != nil {
		r.logger.Error("Failed to encode progress", logger.Error(err))
	}
}

func (r *Router) getHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Serve runs the status server until the context is cancelled. Listen
// failures are logged, not fatal: the fetch run matters more than its
// status endpoint.
func Serve(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) {
	log = log.Named("api-server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("Status server listening", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Status server failed", logger.Error(err))
		}
	}()
}
