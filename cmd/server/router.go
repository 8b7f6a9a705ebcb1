package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/reelgen/internal/api"
	apiMiddleware "github.com/phrazzld/reelgen/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	jobHandler := api.NewJobHandler(
		app.queue,
		app.executor,
		app.estimator,
		app.jobStore,
		app.metricStore,
		app.reportStore,
		app.registry,
		app.config.Providers.Default,
		app.logger,
	)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/units/{unitID}/jobs", jobHandler.EnqueueJobs)
			r.Get("/units/{unitID}/jobs", jobHandler.ListJobs)
			r.Get("/units/{unitID}/stats", jobHandler.GetStats)
			r.Get("/units/{unitID}/report", jobHandler.GetReport)
			r.Get("/units/{unitID}/export", jobHandler.ExportManifest)
			r.Get("/units/{unitID}/costs", jobHandler.CompareCosts)
			r.Post("/units/{unitID}/execute", jobHandler.ExecuteUnit)

			r.Get("/jobs/{jobID}", jobHandler.GetJob)
			r.Get("/jobs/{jobID}/metrics", jobHandler.GetJobMetrics)
			r.Post("/jobs/{jobID}/requeue", jobHandler.RequeueJob)

			r.Get("/providers", jobHandler.ListProviders)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
