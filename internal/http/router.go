// Package http wires the handlers into the chi router.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"deskmemo/internal/auth"
	"deskmemo/internal/handlers"
	"deskmemo/internal/ingest"
	"deskmemo/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Store     storage.Storage
	Files     *storage.FileStore
	Auth      *auth.Authenticator
	Ingester  ingest.Ingester
	Searcher  handlers.Searcher
	Reports   handlers.ReportGenerator
	Failures  handlers.FailureManager
	Reconcile handlers.ReconcileTrigger
	Queue     handlers.QueueStats
	Location  *time.Location

	// PublicImages mounts GET /files/{filename} without authentication so a
	// remote vision model can fetch images by URL (analyzer.image_base_url).
	PublicImages bool
}

// NewRouter creates the HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	authHandler := handlers.NewAuthHandler(deps.Auth)
	browse := handlers.NewBrowseHandler(deps.Store, deps.Files, loc)
	reports := handlers.NewReportHandler(deps.Store, deps.Reports, loc)
	manual := handlers.NewManualHandler(deps.Failures, deps.Reconcile, loc)

	if deps.PublicImages {
		r.Get("/files/{filename}", browse.Image)
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.Queue))
		r.Post("/auth/login", authHandler.Login)
		r.Get("/auth/check", authHandler.Check)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(deps.Auth))

			r.Post("/auth/logout", authHandler.Logout)
			r.Method(http.MethodPost, "/upload", handlers.NewUploadHandler(deps.Ingester, loc))

			r.Get("/screenshots", browse.Screenshots)
			r.Get("/images/{filename}", browse.Image)
			r.Get("/activities", browse.Activities)
			r.Get("/stats/today", browse.StatsToday)
			r.Method(http.MethodGet, "/search", handlers.NewSearchHandler(deps.Searcher, loc))

			r.Get("/reports", reports.List)
			r.Get("/reports/{period}", reports.Get)
			r.Get("/reports/{period}/html", reports.HTML)

			r.Get("/failed", manual.Failed)
			r.Post("/retry-failed", manual.RetryFailed)
			r.Post("/trigger-analysis", manual.TriggerAnalysis)
		})
	})

	return gzhttp.GzipHandler(r)
}
