package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rplanner/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, maxImageBytes int64) chi.Router {
	h := NewHandler(svc)
	ih := NewImageHandler(svc, maxImageBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Put("/notes/{id}", h.ReplaceNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Post("/notes/{id}/images", h.InsertImage)
	r.Delete("/notes/{id}/fragments/{num}", h.DeleteFragment)

	// Images.
	r.Get("/images", ih.List)
	r.Post("/images/{name}", ih.Upload)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewServer builds the top-level handler: the API under /api, image files
// under /images and the health probes.
func NewServer(svc *noteservice.Service, apiRouter http.Handler, middlewares ...func(http.Handler) http.Handler) chi.Router {
	ih := NewImageHandler(svc, 0)

	r := chi.NewRouter()
	r.Use(middlewares...)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	r.Get("/images/{name}", ih.ServeFile)
	r.Mount("/api", apiRouter)
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
