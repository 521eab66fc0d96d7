package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tagshelf/internal/models"
)

// ListGroups handles GET /api/groups.
//
//	@Summary		Groups of the active library in display order
//	@Tags			groups
//	@Produce		json
//	@Success		200	{array}	models.Group
//	@Security		BearerAuth
//	@Router			/groups [get]
func (h *Handler) ListGroups(w http.ResponseWriter, _ *http.Request) {
	groups := h.svc.Snapshot().Groups
	if groups == nil {
		groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// CreateGroup handles POST /api/groups.
//
//	@Summary		Create a group
//	@Tags			groups
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateGroupRequest	true	"Group to create"
//	@Success		201		{object}	models.Group
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups [post]
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g := models.Group{Name: req.Name, Color: req.Color, Icon: req.Icon}
	if req.Order != nil {
		g.Order = *req.Order
	}
	out, err := h.svc.AddGroup(r.Context(), g, req.LibraryID)
	if err != nil {
		writeError(w, r, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// UpdateGroup handles PATCH /api/groups/{id}.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var patch models.GroupPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := h.svc.UpdateGroup(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, "update group", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteGroup handles DELETE /api/groups/{id}.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGroupCategories handles GET /api/groups/{id}/categories.
func (h *Handler) ListGroupCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot().CategoriesByGroup(chi.URLParam(r, "id")))
}

// CreateCategory handles POST /api/categories.
//
//	@Summary		Create a category inside a group
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCategoryRequest	true	"Category to create"
//	@Success		201		{object}	models.Category
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories [post]
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.AddCategory(r.Context(), models.Category{Name: req.Name, Color: req.Color, Icon: req.Icon}, req.GroupID)
	if err != nil {
		writeError(w, r, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// UpdateCategory handles PATCH /api/categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var patch models.CategoryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := h.svc.UpdateCategory(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteCategory handles DELETE /api/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategoryTags handles GET /api/categories/{id}/tags.
func (h *Handler) ListCategoryTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot().TagsByCategory(chi.URLParam(r, "id")))
}

// CreateTag handles POST /api/tags.
//
//	@Summary		Create a tag inside a category
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTagRequest	true	"Tag to create"
//	@Success		201		{object}	models.Tag
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags [post]
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req CreateTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.AddTag(r.Context(), req.model(), req.CategoryID)
	if err != nil {
		writeError(w, r, "create tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// UpdateTag handles PATCH /api/tags/{id}.
//
//	@Summary		Patch a tag; setting category_id moves it
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Tag id"
//	@Param			body	body		models.TagPatch	true	"Fields to change"
//	@Success		200		{object}	models.Tag
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/{id} [patch]
func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	var patch models.TagPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	out, err := h.svc.UpdateTag(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, "update tag", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteTag handles DELETE /api/tags/{id}.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTag(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchDeleteTags handles POST /api/tags/batch-delete.
//
//	@Summary		Delete several tags at once
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchDeleteRequest	true	"Tag ids"
//	@Success		200		{object}	CountResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/batch-delete [post]
func (h *Handler) BatchDeleteTags(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.DeleteTags(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, "batch delete tags", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// MoveTags handles POST /api/tags/move.
func (h *Handler) MoveTags(w http.ResponseWriter, r *http.Request) {
	var req MoveTagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.MoveTags(r.Context(), req.IDs, req.CategoryID)
	if err != nil {
		writeError(w, r, "move tags", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
