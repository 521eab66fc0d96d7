package tagservice

import (
	"context"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
)

// AddGroup adds a group to libraryID, or to the active library when empty.
func (s *Service) AddGroup(ctx context.Context, g models.Group, libraryID string) (*models.Group, error) {
	libraryID, err := s.activeOr(libraryID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, KindLibrary, libraryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, err := s.db.Repos().Groups().Add(ctx, g, libraryID)
	if err != nil {
		return nil, err
	}
	out, err := s.db.Repos().Groups().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityCreated, Kind: KindGroup, ID: id, LibraryID: libraryID, Data: out})
	return out, nil
}

// UpdateGroup patches a group.
func (s *Service) UpdateGroup(ctx context.Context, id string, patch models.GroupPatch) (*models.Group, error) {
	unlock, err := s.lock(ctx, KindGroup, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := s.db.Repos().Groups().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFoundf("group %s not found", id)
	}
	out, err := s.db.Repos().Groups().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityUpdated, Kind: KindGroup, ID: id, LibraryID: out.LibraryID, Data: out})
	return out, nil
}

// DeleteGroup removes a group with its categories and tags.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, KindGroup, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.db.Repos().DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityDeleted, Kind: KindGroup, ID: id})
	return nil
}

// AddCategory adds a category to groupID.
func (s *Service) AddCategory(ctx context.Context, c models.Category, groupID string) (*models.Category, error) {
	unlock, err := s.lock(ctx, KindGroup, groupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, err := s.db.Repos().Categories().Add(ctx, c, groupID)
	if err != nil {
		return nil, err
	}
	out, err := s.db.Repos().Categories().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityCreated, Kind: KindCategory, ID: id, Data: out})
	return out, nil
}

// UpdateCategory patches a category.
func (s *Service) UpdateCategory(ctx context.Context, id string, patch models.CategoryPatch) (*models.Category, error) {
	unlock, err := s.lock(ctx, KindCategory, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := s.db.Repos().Categories().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFoundf("category %s not found", id)
	}
	out, err := s.db.Repos().Categories().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityUpdated, Kind: KindCategory, ID: id, Data: out})
	return out, nil
}

// DeleteCategory removes a category with its tags.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, KindCategory, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.db.Repos().DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityDeleted, Kind: KindCategory, ID: id})
	return nil
}

// AddTag adds a tag to categoryID.
func (s *Service) AddTag(ctx context.Context, t models.Tag, categoryID string) (*models.Tag, error) {
	unlock, err := s.lock(ctx, KindCategory, categoryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, err := s.db.Repos().Tags().Add(ctx, t, categoryID)
	if err != nil {
		return nil, err
	}
	out, err := s.db.Repos().Tags().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityCreated, Kind: KindTag, ID: id, Data: out})
	return out, nil
}

// UpdateTag patches a tag. Setting CategoryID moves it.
func (s *Service) UpdateTag(ctx context.Context, id string, patch models.TagPatch) (*models.Tag, error) {
	unlock, err := s.lock(ctx, KindTag, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := s.db.Repos().Tags().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFoundf("tag %s not found", id)
	}
	out, err := s.db.Repos().Tags().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityUpdated, Kind: KindTag, ID: id, Data: out})
	return out, nil
}

// DeleteTag removes one tag.
func (s *Service) DeleteTag(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, KindTag, id)
	if err != nil {
		return err
	}
	defer unlock()

	n, err := s.db.Repos().Tags().Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("tag %s not found", id)
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityDeleted, Kind: KindTag, ID: id})
	return nil
}

// DeleteTags removes every listed tag in one transaction and returns how
// many existed.
func (s *Service) DeleteTags(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validationf("no tag ids given")
	}
	unlock, err := s.lock(ctx, KindTag, "batch")
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := s.db.Repos().DeleteTags(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityDeleted, Kind: KindTag, Data: map[string]any{"ids": ids, "deleted": n}})
	return n, nil
}

// MoveTags moves every listed tag into categoryID in one transaction.
func (s *Service) MoveTags(ctx context.Context, ids []string, categoryID string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validationf("no tag ids given")
	}
	unlock, err := s.lock(ctx, KindCategory, categoryID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := s.db.Repos().MoveTags(ctx, ids, categoryID)
	if err != nil {
		return 0, err
	}
	s.refresh(ctx)
	s.publish(Event{Type: EventEntityUpdated, Kind: KindTag, Data: map[string]any{"ids": ids, "category_id": categoryID, "moved": n}})
	return n, nil
}
