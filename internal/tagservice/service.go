// Package tagservice is the intent layer shared by the HTTP API, the MCP
// server, the CLI and the inbox watcher. Every mutation is serialized per
// target and followed by a working-set refresh.
package tagservice

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/catalog"
	"github.com/starford/tagshelf/internal/checksum"
	"github.com/starford/tagshelf/internal/keylock"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/storage"
	"github.com/starford/tagshelf/internal/store"
	"github.com/starford/tagshelf/internal/transfer"
)

// Event types published to listeners.
const (
	EventEntityCreated   = "entity.created"
	EventEntityUpdated   = "entity.updated"
	EventEntityDeleted   = "entity.deleted"
	EventImportCompleted = "import.completed"
)

// Entity kinds carried by events.
const (
	KindLibrary  = "library"
	KindGroup    = "group"
	KindCategory = "category"
	KindTag      = "tag"
)

// Event describes a completed mutation.
type Event struct {
	Type      string `json:"type"`
	Kind      string `json:"kind,omitempty"`
	ID        string `json:"id,omitempty"`
	LibraryID string `json:"library_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// LibrarySummary is a library with its sizes and whether it is active.
type LibrarySummary struct {
	models.Library
	Active bool          `json:"active"`
	Counts models.Counts `json:"counts"`
}

// Status reports the session state.
type Status struct {
	State       session.State `json:"state"`
	LibraryID   string        `json:"library_id,omitempty"`
	LibraryName string        `json:"library_name,omitempty"`
	Counts      models.Counts `json:"counts"`
	LastError   string        `json:"last_error,omitempty"`
}

// ImportResult is a transfer result plus the parser warnings.
type ImportResult struct {
	transfer.Result
	LibraryID string `json:"library_id"`
	Source    string `json:"source,omitempty"`
}

// Service coordinates the store, the session and the exchange directory.
type Service struct {
	db      *store.DB
	session *session.Session
	engine  *transfer.Engine
	files   storage.Provider
	catalog *catalog.Catalog
	logger  *slog.Logger
	locks   keylock.Map

	listeners []func(Event)
}

// Option configures a Service.
type Option func(*Service)

// WithFiles sets the exchange directory used by ImportFile and ExportFile.
func WithFiles(files storage.Provider) Option {
	return func(s *Service) {
		s.files = files
	}
}

// WithCatalog sets the catalog used by InstallCatalogEntry.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// NewService creates a new tag service.
func NewService(db *store.DB, sess *session.Session, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:      db,
		session: sess,
		engine:  transfer.NewEngine(db, logger),
		catalog: catalog.Empty(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent registers fn for every mutation event. Register listeners before
// serving requests.
func (s *Service) OnEvent(fn func(Event)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Service) publish(e Event) {
	for _, fn := range s.listeners {
		fn(e)
	}
}

// Session returns the underlying session.
func (s *Service) Session() *session.Session {
	return s.session
}

// lock serializes work on one target.
func (s *Service) lock(ctx context.Context, kind, id string) (func(), error) {
	return s.locks.Lock(ctx, kind+":"+id)
}

// refresh reloads the working set. Load failures are already recorded by
// the session, so they are only logged here.
func (s *Service) refresh(ctx context.Context) {
	if err := s.session.Refresh(ctx); err != nil {
		s.logger.Warn("tagservice: refresh working set", slog.String("error", err.Error()))
	}
}

// activeOr returns id, or the active library id when id is empty.
func (s *Service) activeOr(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	return s.session.RequireActive()
}

// Snapshot returns the active working set.
func (s *Service) Snapshot() *session.WorkingSet {
	return s.session.Snapshot()
}

// Search filters the active working set.
func (s *Service) Search(query string, f session.Filter) []models.Tag {
	f.Query = query
	return s.session.Snapshot().Filter(f)
}

// Status returns the session state and the active library sizes.
func (s *Service) Status(_ context.Context) Status {
	ws := s.session.Snapshot()
	st := Status{
		State:       s.session.State(),
		LibraryID:   s.session.ActiveID(),
		LibraryName: ws.Library.Name,
		Counts:      ws.Counts(),
	}
	if err := s.session.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Export returns the active library as a document.
func (s *Service) Export(ctx context.Context) (*transfer.Document, error) {
	id, err := s.session.RequireActive()
	if err != nil {
		return nil, err
	}
	return s.engine.Export(ctx, id)
}

// ExportFile writes the active library to path in the exchange directory,
// as YAML when the extension says so.
func (s *Service) ExportFile(ctx context.Context, path string) (*models.DocumentFile, error) {
	if s.files == nil {
		return nil, apperr.Validationf("no exchange directory configured")
	}
	if !storage.IsDocument(path) {
		return nil, apperr.Validationf("export path %q must end in .json, .yaml or .yml", path)
	}
	doc, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	data, err := transfer.Encode(doc, transfer.FormatForPath(path))
	if err != nil {
		return nil, err
	}
	if err := s.files.Write(path, data); err != nil {
		return nil, err
	}
	s.logger.Info("tagservice: library exported",
		slog.String("path", path),
		slog.Int("tags", doc.TagCount()))
	return &models.DocumentFile{Path: path, Checksum: checksum.Sum(data), UpdatedAt: *doc.Library.ExportedAt}, nil
}

// Documents lists the document files in the exchange directory.
func (s *Service) Documents(_ context.Context) ([]models.DocumentFile, error) {
	if s.files == nil {
		return []models.DocumentFile{}, nil
	}
	return s.files.List("")
}

// Import writes doc into the active library. The working set is refreshed
// whether or not the import succeeds.
func (s *Service) Import(ctx context.Context, doc *transfer.Document, mode transfer.Mode) (*ImportResult, error) {
	id, err := s.session.RequireActive()
	if err != nil {
		return nil, err
	}
	return s.importInto(ctx, id, doc, mode, nil, "")
}

// ImportData parses data and imports it into the active library.
func (s *Service) ImportData(ctx context.Context, data []byte, mode transfer.Mode, source string) (*ImportResult, error) {
	id, err := s.session.RequireActive()
	if err != nil {
		return nil, err
	}
	doc, warnings, err := transfer.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.importInto(ctx, id, doc, mode, warnings, source)
}

// ImportFile reads path from the exchange directory and imports it into the
// active library.
func (s *Service) ImportFile(ctx context.Context, path string, mode transfer.Mode) (*ImportResult, error) {
	if s.files == nil {
		return nil, apperr.Validationf("no exchange directory configured")
	}
	data, err := s.files.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NotFoundf("document %q not found", path)
		}
		return nil, err
	}
	return s.ImportData(ctx, data, mode, path)
}

func (s *Service) importInto(ctx context.Context, libraryID string, doc *transfer.Document, mode transfer.Mode, warnings []string, source string) (*ImportResult, error) {
	unlock, err := s.lock(ctx, KindLibrary, libraryID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	defer s.refresh(ctx)

	res, err := s.engine.Import(ctx, libraryID, doc, mode)
	if err != nil {
		return nil, err
	}
	out := &ImportResult{Result: *res, LibraryID: libraryID, Source: source}
	out.Warnings = append(warnings, out.Warnings...)
	s.publish(Event{Type: EventImportCompleted, Kind: KindLibrary, ID: libraryID, LibraryID: libraryID, Data: out})
	return out, nil
}
