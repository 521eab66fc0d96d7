package tagservice

import (
	"context"
	"log/slog"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/catalog"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/transfer"
)

// ListLibraries returns every library with its sizes, ordered by name.
func (s *Service) ListLibraries(ctx context.Context) ([]LibrarySummary, error) {
	libs, err := s.db.Repos().Libraries().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	active := s.session.ActiveID()
	out := make([]LibrarySummary, 0, len(libs))
	for _, l := range libs {
		counts, err := s.db.Counts(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, LibrarySummary{Library: l, Active: l.ID == active, Counts: counts})
	}
	return out, nil
}

// GetLibrary returns one library.
func (s *Service) GetLibrary(ctx context.Context, id string) (*models.Library, error) {
	return s.db.Repos().Libraries().GetByID(ctx, id)
}

// CreateLibrary adds a library and optionally makes it active.
func (s *Service) CreateLibrary(ctx context.Context, name, description string, activate bool) (*models.Library, error) {
	id, err := s.db.Repos().Libraries().Add(ctx, models.Library{Name: name, Description: description})
	if err != nil {
		return nil, err
	}
	lib, err := s.db.Repos().Libraries().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventEntityCreated, Kind: KindLibrary, ID: id, LibraryID: id, Data: lib})
	if activate {
		if err := s.session.Switch(ctx, id); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// UpdateLibrary patches a library.
func (s *Service) UpdateLibrary(ctx context.Context, id string, patch models.LibraryPatch) (*models.Library, error) {
	unlock, err := s.lock(ctx, KindLibrary, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := s.db.Repos().Libraries().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFoundf("library %s not found", id)
	}
	lib, err := s.db.Repos().Libraries().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if id == s.session.ActiveID() {
		s.refresh(ctx)
	}
	s.publish(Event{Type: EventEntityUpdated, Kind: KindLibrary, ID: id, LibraryID: id, Data: lib})
	return lib, nil
}

// DeleteLibrary removes a library and everything under it. When it was the
// active library, the first remaining library by name becomes active.
func (s *Service) DeleteLibrary(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, KindLibrary, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.db.Repos().DeleteLibrary(ctx, id); err != nil {
		return err
	}
	s.publish(Event{Type: EventEntityDeleted, Kind: KindLibrary, ID: id, LibraryID: id})

	if id != s.session.ActiveID() {
		return nil
	}
	libs, err := s.db.Repos().Libraries().GetAll(ctx)
	if err != nil {
		return err
	}
	next := ""
	if len(libs) > 0 {
		next = libs[0].ID
	}
	s.logger.Info("tagservice: active library deleted",
		slog.String("library_id", id),
		slog.String("next", next))
	return s.session.Switch(ctx, next)
}

// SwitchLibrary makes id the active library. An empty id clears it.
func (s *Service) SwitchLibrary(ctx context.Context, id string) error {
	if id != "" {
		if _, err := s.db.Repos().Libraries().GetByID(ctx, id); err != nil {
			return err
		}
	}
	return s.session.Switch(ctx, id)
}

// ClearLibrary removes every group, category and tag of a library.
func (s *Service) ClearLibrary(ctx context.Context, id string) error {
	id, err := s.activeOr(id)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, KindLibrary, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.db.Repos().ClearLibraryData(ctx, id); err != nil {
		return err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityDeleted, Kind: KindGroup, LibraryID: id})
	return nil
}

// Catalog returns the catalog entries.
func (s *Service) Catalog() []catalog.Entry {
	return s.catalog.Entries
}

// InstallCatalogEntry creates a library named after a catalog entry and fills
// it from the entry's document.
func (s *Service) InstallCatalogEntry(ctx context.Context, name string, activate bool) (*models.Library, *ImportResult, error) {
	entry, err := s.catalog.Find(name)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.catalog.Document(entry)
	if err != nil {
		return nil, nil, err
	}
	lib, err := s.CreateLibrary(ctx, entry.Name, entry.Description, false)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.importInto(ctx, lib.ID, doc, transfer.ModeReplace, nil, entry.Path)
	if err != nil {
		s.discardLibrary(ctx, lib.ID)
		return nil, nil, err
	}
	if activate {
		if err := s.session.Switch(ctx, lib.ID); err != nil {
			return nil, nil, err
		}
	}
	return lib, res, nil
}

// discardLibrary removes a library whose install did not complete.
func (s *Service) discardLibrary(ctx context.Context, id string) {
	if err := s.db.Repos().DeleteLibrary(ctx, id); err != nil {
		s.logger.Warn("tagservice: remove incomplete library",
			slog.String("library_id", id),
			slog.String("error", err.Error()))
		return
	}
	s.publish(Event{Type: EventEntityDeleted, Kind: KindLibrary, ID: id, LibraryID: id})
}
