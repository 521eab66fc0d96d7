package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
)

// Categories is the repository for the categories table.
type Categories struct{ r *Repos }

const categoryColumns = `id, group_id, name, color, icon`

func scanCategory(s scanner) (models.Category, error) {
	var c models.Category
	err := s.Scan(&c.ID, &c.GroupID, &c.Name, &c.Color, &c.Icon)
	return c, err
}

// GetAll returns the categories of groupID ordered by name.
func (c Categories) GetAll(ctx context.Context, groupID string) ([]models.Category, error) {
	if groupID == "" {
		return []models.Category{}, nil
	}
	return c.query(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE group_id = ? ORDER BY name COLLATE NOCASE`, groupID)
}

// GetAllByLibrary returns every category under libraryID, ordered by group
// position and then name.
func (c Categories) GetAllByLibrary(ctx context.Context, libraryID string) ([]models.Category, error) {
	if libraryID == "" {
		return []models.Category{}, nil
	}
	return c.query(ctx, `
		SELECT c.id, c.group_id, c.name, c.color, c.icon
		FROM categories c
		JOIN tag_groups g ON g.id = c.group_id
		WHERE g.library_id = ?
		ORDER BY g.sort_order, g.name COLLATE NOCASE, c.name COLLATE NOCASE
	`, libraryID)
}

func (c Categories) query(ctx context.Context, query string, args ...any) ([]models.Category, error) {
	rows, err := c.r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(err, "list categories")
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, persistence(err, "scan category")
		}
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err, "list categories")
	}
	return nonNil(out), nil
}

// GetByID returns the category with id.
func (c Categories) GetByID(ctx context.Context, id string) (*models.Category, error) {
	out, err := c.query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.NotFoundf("category %s not found", id)
	}
	return &out[0], nil
}

// Add validates cat and inserts it under groupID. A name already used by a
// sibling, compared case-insensitively, is rejected.
func (c Categories) Add(ctx context.Context, cat models.Category, groupID string) (string, error) {
	if err := requireParent("group", groupID); err != nil {
		return "", err
	}
	if err := validateName("category", cat.Name); err != nil {
		return "", err
	}
	if err := c.r.requireExists(ctx, "tag_groups", "group", groupID); err != nil {
		return "", err
	}
	taken, err := c.r.nameTaken(ctx, "categories", "group_id", groupID, cat.Name, "")
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.Validationf("category %q already exists in this group", strings.TrimSpace(cat.Name))
	}

	cat.ID = uuid.NewString()
	cat.GroupID = groupID
	_, err = c.r.q().ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?)`,
		cat.ID, cat.GroupID, strings.TrimSpace(cat.Name), cat.Color, cat.Icon)
	if err != nil {
		return "", persistence(err, "insert category")
	}
	return cat.ID, nil
}

// Update applies patch to the category with id. It returns 0 when no such
// category exists.
func (c Categories) Update(ctx context.Context, id string, patch models.CategoryPatch) (int64, error) {
	current, err := c.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var s setter
	if patch.Name != nil {
		if err := validateName("category", *patch.Name); err != nil {
			return 0, err
		}
		taken, err := c.r.nameTaken(ctx, "categories", "group_id", current.GroupID, *patch.Name, id)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, apperr.Validationf("category %q already exists in this group", strings.TrimSpace(*patch.Name))
		}
		s.set("name", strings.TrimSpace(*patch.Name))
	}
	if patch.Color != nil {
		s.set("color", *patch.Color)
	}
	if patch.Icon != nil {
		s.set("icon", *patch.Icon)
	}
	return s.exec(ctx, c.r.q(), "categories", id)
}

// Delete removes the category row only. Use DeleteCategory to cascade.
func (c Categories) Delete(ctx context.Context, id string) (int64, error) {
	return c.r.deleteRow(ctx, "categories", id)
}

// BulkAdd inserts cats in one transaction. Callers populate GroupID.
func (c Categories) BulkAdd(ctx context.Context, cats []models.Category) ([]string, error) {
	ids := make([]string, len(cats))
	err := c.r.atomic(ctx, func(r *Repos) error {
		stmt, err := r.tx.PrepareContext(ctx,
			`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return persistence(err, "prepare category insert")
		}
		defer stmt.Close()

		for i, cat := range cats {
			if err := requireParent("group", cat.GroupID); err != nil {
				return err
			}
			if cat.ID == "" {
				cat.ID = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, cat.ID, cat.GroupID,
				strings.TrimSpace(cat.Name), cat.Color, cat.Icon); err != nil {
				return persistence(err, "insert category")
			}
			ids[i] = cat.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
