package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tagshelf/internal/tagservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced; health probes
// are always public.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *tagservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Libraries.
		r.Get("/libraries", h.ListLibraries)
		r.Post("/libraries", h.CreateLibrary)
		r.Get("/libraries/{id}", h.GetLibrary)
		r.Patch("/libraries/{id}", h.UpdateLibrary)
		r.Delete("/libraries/{id}", h.DeleteLibrary)
		r.Post("/libraries/{id}/activate", h.ActivateLibrary)
		r.Post("/libraries/{id}/clear", h.ClearLibrary)

		// Session and working set.
		r.Get("/session", h.Session)
		r.Get("/working-set", h.WorkingSet)

		// Groups.
		r.Get("/groups", h.ListGroups)
		r.Post("/groups", h.CreateGroup)
		r.Patch("/groups/{id}", h.UpdateGroup)
		r.Delete("/groups/{id}", h.DeleteGroup)
		r.Get("/groups/{id}/categories", h.ListGroupCategories)

		// Categories.
		r.Post("/categories", h.CreateCategory)
		r.Patch("/categories/{id}", h.UpdateCategory)
		r.Delete("/categories/{id}", h.DeleteCategory)
		r.Get("/categories/{id}/tags", h.ListCategoryTags)

		// Tags.
		r.Post("/tags", h.CreateTag)
		r.Post("/tags/batch-delete", h.BatchDeleteTags)
		r.Post("/tags/move", h.MoveTags)
		r.Patch("/tags/{id}", h.UpdateTag)
		r.Delete("/tags/{id}", h.DeleteTag)

		// Import / export.
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Get("/documents", h.ListDocuments)
		r.Post("/documents/export", h.ExportDocument)
		r.Post("/documents/import", h.ImportDocument)

		// Catalog.
		r.Get("/catalog", h.ListCatalog)
		r.Post("/catalog/{name}/install", h.InstallCatalogEntry)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
