package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"drafthub/internal/handlers"
	"drafthub/internal/publish"
	"drafthub/internal/search"
	"drafthub/internal/session"
	"drafthub/internal/storage"
)

// DefaultRequestTimeout bounds API requests when Deps.RequestTimeout is unset.
const DefaultRequestTimeout = 30 * time.Second

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Drafts    publish.Service
	Completer handlers.Completer // optional
	Notes     storage.NoteStore
	Groups    storage.GroupStore
	Bodies    handlers.BodyReader
	Searcher  search.Searcher // optional; /api/search is not mounted without it
	Sessions  session.Resolver

	HealthChecks   map[string]handlers.HealthCheck
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	drafts := handlers.NewDraftHandler(deps.Drafts, deps.Completer)
	notes := handlers.NewNoteHandler(deps.Notes, deps.Groups, deps.Bodies)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.HealthChecks))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Use(Authenticate(deps.Sessions, true))

			r.Post("/drafts", drafts.Create)
			r.Patch("/drafts/{draftID}", drafts.AutoSave)
			r.Put("/drafts/{draftID}", drafts.Save)
			r.Post("/drafts/{draftID}/publish", drafts.Publish)
			r.Post("/drafts/{draftID}/completion", drafts.Completion)
		})

		if deps.Searcher != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(timeout))
				r.Use(Authenticate(deps.Sessions, false))
				r.Method(http.MethodGet, "/search", handlers.NewSearchHandler(deps.Searcher, deps.Groups))
			})
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(Authenticate(deps.Sessions, false))
		r.Method(http.MethodGet, "/notes/{noteID}", notes)
	})

	return r
}
