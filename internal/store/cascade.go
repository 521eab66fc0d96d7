package store

import (
	"context"
	"strings"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
)

// cascadePlan holds the id sets removed by one cascade, per table.
type cascadePlan struct {
	tags       []string
	categories []string
	groups     []string
	libraries  []string
}

// apply deletes children before parents.
func (r *Repos) apply(ctx context.Context, p cascadePlan) error {
	steps := []struct {
		table string
		ids   []string
	}{
		{"tags", p.tags},
		{"categories", p.categories},
		{"tag_groups", p.groups},
		{"libraries", p.libraries},
	}
	for _, step := range steps {
		if hook := r.db.cascadeHook; hook != nil {
			if err := hook(step.table); err != nil {
				return err
			}
		}
		if _, err := r.deleteIDs(ctx, step.table, step.ids); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repos) collectFromGroups(ctx context.Context, p *cascadePlan) error {
	cats, err := r.idsWhere(ctx, "categories", "group_id", p.groups)
	if err != nil {
		return err
	}
	p.categories = append(p.categories, cats...)
	return r.collectFromCategories(ctx, p)
}

func (r *Repos) collectFromCategories(ctx context.Context, p *cascadePlan) error {
	tags, err := r.idsWhere(ctx, "tags", "category_id", p.categories)
	if err != nil {
		return err
	}
	p.tags = append(p.tags, tags...)
	return nil
}

func (r *Repos) libraryPlan(ctx context.Context, libraryID string) (cascadePlan, error) {
	var p cascadePlan
	if err := r.requireExists(ctx, "libraries", "library", libraryID); err != nil {
		return p, err
	}
	groups, err := r.idsWhere(ctx, "tag_groups", "library_id", []string{libraryID})
	if err != nil {
		return p, err
	}
	p.groups = groups
	return p, r.collectFromGroups(ctx, &p)
}

// DeleteLibrary removes a library with all of its groups, categories and
// tags in one transaction.
func (r *Repos) DeleteLibrary(ctx context.Context, id string) error {
	return r.atomic(ctx, func(r *Repos) error {
		p, err := r.libraryPlan(ctx, id)
		if err != nil {
			return err
		}
		p.libraries = []string{id}
		return r.apply(ctx, p)
	})
}

// ClearLibraryData removes everything under a library but keeps the library row.
func (r *Repos) ClearLibraryData(ctx context.Context, libraryID string) error {
	return r.atomic(ctx, func(r *Repos) error {
		p, err := r.libraryPlan(ctx, libraryID)
		if err != nil {
			return err
		}
		return r.apply(ctx, p)
	})
}

// DeleteGroup removes a group with its categories and their tags.
func (r *Repos) DeleteGroup(ctx context.Context, id string) error {
	return r.atomic(ctx, func(r *Repos) error {
		if err := r.requireExists(ctx, "tag_groups", "group", id); err != nil {
			return err
		}
		p := cascadePlan{groups: []string{id}}
		if err := r.collectFromGroups(ctx, &p); err != nil {
			return err
		}
		return r.apply(ctx, p)
	})
}

// DeleteCategory removes a category with its tags.
func (r *Repos) DeleteCategory(ctx context.Context, id string) error {
	return r.atomic(ctx, func(r *Repos) error {
		if err := r.requireExists(ctx, "categories", "category", id); err != nil {
			return err
		}
		p := cascadePlan{categories: []string{id}}
		if err := r.collectFromCategories(ctx, &p); err != nil {
			return err
		}
		return r.apply(ctx, p)
	})
}

// DeleteTags removes the given tags in one transaction and returns how many
// rows were deleted. Unknown ids are ignored.
func (r *Repos) DeleteTags(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := r.atomic(ctx, func(r *Repos) error {
		var err error
		n, err = r.deleteIDs(ctx, "tags", ids)
		return err
	})
	return n, err
}

// MoveTags reparents the given tags under categoryID in one transaction.
// The move is rejected when a moved tag's name is already used in the
// target category, or by another tag in the same batch.
func (r *Repos) MoveTags(ctx context.Context, ids []string, categoryID string) (int64, error) {
	if err := requireParent("category", categoryID); err != nil {
		return 0, err
	}
	var moved int64
	err := r.atomic(ctx, func(r *Repos) error {
		if err := r.requireExists(ctx, "categories", "category", categoryID); err != nil {
			return err
		}
		existing, err := r.Tags().GetAll(ctx, categoryID)
		if err != nil {
			return err
		}
		names := make(map[string]struct{}, len(existing))
		for _, t := range existing {
			names[strings.ToLower(t.Name)] = struct{}{}
		}

		var s setter
		s.set("category_id", categoryID)
		for _, id := range ids {
			tag, err := r.Tags().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if tag.CategoryID == categoryID {
				continue
			}
			key := strings.ToLower(tag.Name)
			if _, dup := names[key]; dup {
				return apperr.Validationf("tag %q already exists in the target category", tag.Name)
			}
			names[key] = struct{}{}
			n, err := s.exec(ctx, r.q(), "tags", id)
			if err != nil {
				return err
			}
			moved += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// Contents is a consistent read of one library and everything under it.
type Contents struct {
	Library    models.Library
	Groups     []models.Group
	Categories []models.Category
	Tags       []models.Tag
}

// LoadContents reads a library's groups, categories and tags in one read
// transaction.
func (db *DB) LoadContents(ctx context.Context, libraryID string) (*Contents, error) {
	var out Contents
	err := db.InReadTx(ctx, func(r *Repos) error {
		lib, err := r.Libraries().GetByID(ctx, libraryID)
		if err != nil {
			return err
		}
		out.Library = *lib
		if out.Groups, err = r.Groups().GetAll(ctx, libraryID); err != nil {
			return err
		}
		if out.Categories, err = r.Categories().GetAllByLibrary(ctx, libraryID); err != nil {
			return err
		}
		out.Tags, err = r.Tags().GetAllByLibrary(ctx, libraryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Counts returns how many groups, categories and tags a library holds.
func (db *DB) Counts(ctx context.Context, libraryID string) (models.Counts, error) {
	var c models.Counts
	conn, err := db.handle()
	if err != nil {
		return c, err
	}
	err = queryRow(ctx, conn, `
		SELECT
			(SELECT COUNT(*) FROM tag_groups WHERE library_id = ?1),
			(SELECT COUNT(*) FROM categories c JOIN tag_groups g ON g.id = c.group_id WHERE g.library_id = ?1),
			(SELECT COUNT(*) FROM tags t JOIN categories c ON c.id = t.category_id
				JOIN tag_groups g ON g.id = c.group_id WHERE g.library_id = ?1)
	`, []any{libraryID}, &c.Groups, &c.Categories, &c.Tags)
	if err != nil {
		return c, persistence(err, "count library")
	}
	return c, nil
}
