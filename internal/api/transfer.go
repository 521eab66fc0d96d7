package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/transfer"
)

const maxUploadBytes = 50 << 20 // 50 MB

// Export handles GET /api/export.
//
//	@Summary		Download the active library as a document
//	@Tags			transfer
//	@Produce		json
//	@Produce		application/yaml
//	@Param			format	query		string	false	"Document format"	Enums(json, yaml)
//	@Success		200		{object}	transfer.Document
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := transfer.Format(strings.ToLower(r.URL.Query().Get("format")))
	switch format {
	case "":
		format = transfer.FormatJSON
	case transfer.FormatJSON, transfer.FormatYAML:
	default:
		writeError(w, r, "export", apperr.Validationf("unknown format %q", format))
		return
	}

	doc, err := h.svc.Export(r.Context())
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	data, err := transfer.Encode(doc, format)
	if err != nil {
		writeError(w, r, "export", err)
		return
	}

	contentType := "application/json; charset=utf-8"
	if format == transfer.FormatYAML {
		contentType = "application/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, exportName(doc.Library.Name, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func exportName(library string, format transfer.Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ':
			return '-'
		}
		return -1
	}, library)
	if name == "" {
		name = "library"
	}
	return name + "." + string(format)
}

// Import handles POST /api/import.
//
// The document is the raw request body (JSON or YAML), or the "file" field
// of a multipart form.
//
//	@Summary		Import a document into the active library
//	@Tags			transfer
//	@Accept			json
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			mode	query		string	false	"Import mode"	Enums(merge, replace)
//	@Success		200		{object}	tagservice.ImportResult
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	mode, err := transfer.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, "import", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, source, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error(), Code: apperr.CodeValidation})
		return
	}

	res, err := h.svc.ImportData(r.Context(), data, mode, source)
	if err != nil {
		writeError(w, r, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readUpload(r *http.Request) ([]byte, string, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read body")
		}
		return data, "upload", nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("file too large or invalid multipart")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing 'file' field in multipart form")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file")
	}
	return data, header.Filename, nil
}

// ListDocuments handles GET /api/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context())
	if err != nil {
		writeError(w, r, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// ExportDocument handles POST /api/documents/export.
//
//	@Summary		Write the active library into the exchange directory
//	@Tags			transfer
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DocumentRequest	true	"Target path"
//	@Success		201		{object}	models.DocumentFile
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/export [post]
func (h *Handler) ExportDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	file, err := h.svc.ExportFile(r.Context(), req.Path)
	if err != nil {
		writeError(w, r, "export document", err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// ImportDocument handles POST /api/documents/import.
func (h *Handler) ImportDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := transfer.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, "import document", err)
		return
	}
	res, err := h.svc.ImportFile(r.Context(), req.Path, mode)
	if err != nil {
		writeError(w, r, "import document", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListCatalog handles GET /api/catalog.
func (h *Handler) ListCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"libraries": h.svc.Catalog()})
}

// InstallCatalogEntry handles POST /api/catalog/{name}/install.
//
//	@Summary		Install a catalog library
//	@Tags			catalog
//	@Produce		json
//	@Param			name		path		string	true	"Catalog entry name"
//	@Param			activate	query		bool	false	"Switch to the new library"
//	@Success		201			{object}	tagservice.ImportResult
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/{name}/install [post]
func (h *Handler) InstallCatalogEntry(w http.ResponseWriter, r *http.Request) {
	activate, _ := strconv.ParseBool(r.URL.Query().Get("activate"))
	lib, res, err := h.svc.InstallCatalogEntry(r.Context(), chi.URLParam(r, "name"), activate)
	if err != nil {
		writeError(w, r, "install catalog entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"library": lib,
		"import":  res,
	})
}
