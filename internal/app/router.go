package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hearth-cms/hearth/internal/auth"
	"github.com/hearth-cms/hearth/internal/board"
	"github.com/hearth-cms/hearth/internal/gallery"
	"github.com/hearth-cms/hearth/internal/observability"
	"github.com/hearth-cms/hearth/internal/shared"
	"github.com/hearth-cms/hearth/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	BoardHandler   *board.Handler
	GalleryHandler *gallery.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// UploadDir is served under /uploads when no CDN fronts the images.
	UploadDir string
}

// NewRouter constructs the chi.Router with Hearth defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.BoardHandler != nil {
		r.Route("/board", params.BoardHandler.MountRoutes)
	}
	if params.GalleryHandler != nil {
		r.Route("/gallery", params.GalleryHandler.MountRoutes)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin(logger))
		if params.BoardHandler != nil {
			r.Route("/board", params.BoardHandler.MountAdminRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.UploadDir != "" {
		r.Handle("/uploads/*", staticCacheHandler(http.FileServer(http.Dir(params.UploadDir))))
	}

	return r
}

// staticCacheHandler adds Cache-Control to uploaded images and refuses
// directory listings.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
		next.ServeHTTP(w, r)
	})
}
