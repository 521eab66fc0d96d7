package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/tagservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *tagservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tagservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListLibraries handles GET /api/libraries.
//
//	@Summary		List libraries with their sizes
//	@Tags			libraries
//	@Produce		json
//	@Success		200	{object}	LibraryListResponse
//	@Security		BearerAuth
//	@Router			/libraries [get]
func (h *Handler) ListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.svc.ListLibraries(r.Context())
	if err != nil {
		writeError(w, r, "list libraries", err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryListResponse{Libraries: libs})
}

// GetLibrary handles GET /api/libraries/{id}.
//
//	@Summary		Get a library
//	@Tags			libraries
//	@Produce		json
//	@Param			id	path		string	true	"Library id"
//	@Success		200	{object}	models.Library
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{id} [get]
func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	lib, err := h.svc.GetLibrary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get library", err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// CreateLibrary handles POST /api/libraries.
//
//	@Summary		Create a library
//	@Tags			libraries
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLibraryRequest	true	"Library to create"
//	@Success		201		{object}	models.Library
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries [post]
func (h *Handler) CreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req CreateLibraryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lib, err := h.svc.CreateLibrary(r.Context(), req.Name, req.Description, req.Activate)
	if err != nil {
		writeError(w, r, "create library", err)
		return
	}
	writeJSON(w, http.StatusCreated, lib)
}

// UpdateLibrary handles PATCH /api/libraries/{id}.
func (h *Handler) UpdateLibrary(w http.ResponseWriter, r *http.Request) {
	var patch models.LibraryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	lib, err := h.svc.UpdateLibrary(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, "update library", err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// DeleteLibrary handles DELETE /api/libraries/{id}.
//
//	@Summary		Delete a library and everything it owns
//	@Tags			libraries
//	@Param			id	path	string	true	"Library id"
//	@Success		204	"Library deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{id} [delete]
func (h *Handler) DeleteLibrary(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLibrary(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete library", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateLibrary handles POST /api/libraries/{id}/activate.
//
//	@Summary		Make a library the active one
//	@Tags			libraries
//	@Produce		json
//	@Param			id	path		string	true	"Library id"
//	@Success		200	{object}	tagservice.Status
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{id}/activate [post]
func (h *Handler) ActivateLibrary(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SwitchLibrary(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "activate library", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// ClearLibrary handles POST /api/libraries/{id}/clear.
func (h *Handler) ClearLibrary(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearLibrary(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "clear library", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/session.
//
//	@Summary		Report the active library and session state
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	tagservice.Status
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// WorkingSet handles GET /api/working-set.
//
//	@Summary		Active library contents, optionally filtered
//	@Tags			session
//	@Produce		json
//	@Param			group		query		string	false	"Group id"
//	@Param			category	query		string	false	"Category id"
//	@Param			q			query		string	false	"Search terms"
//	@Success		200			{object}	WorkingSetResponse
//	@Security		BearerAuth
//	@Router			/working-set [get]
func (h *Handler) WorkingSet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := session.Filter{
		GroupID:    q.Get("group"),
		CategoryID: q.Get("category"),
		Query:      q.Get("q"),
	}
	ws := h.svc.Snapshot()

	cats := ws.Categories
	if f.GroupID != "" {
		cats = ws.CategoriesByGroup(f.GroupID)
	}
	writeJSON(w, http.StatusOK, WorkingSetResponse{
		Library:    ws.Library,
		Groups:     ws.Groups,
		Categories: cats,
		Tags:       ws.Filter(f),
		Counts:     ws.Counts(),
		State:      h.svc.Session().State(),
	})
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready. The service is ready once the session
// has settled; a session without a library is still ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status(r.Context())
	status := http.StatusOK
	if st.State == session.StateLoading {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}
