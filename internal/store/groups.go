package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
)

// Groups is the repository for the tag_groups table.
type Groups struct{ r *Repos }

const groupColumns = `id, library_id, name, color, icon, sort_order`

func scanGroup(s scanner) (models.Group, error) {
	var g models.Group
	err := s.Scan(&g.ID, &g.LibraryID, &g.Name, &g.Color, &g.Icon, &g.Order)
	return g, err
}

// GetAll returns the groups of libraryID ordered by order, then name.
func (g Groups) GetAll(ctx context.Context, libraryID string) ([]models.Group, error) {
	if libraryID == "" {
		return []models.Group{}, nil
	}
	return g.query(ctx, `SELECT `+groupColumns+` FROM tag_groups
		WHERE library_id = ? ORDER BY sort_order, name COLLATE NOCASE`, libraryID)
}

func (g Groups) query(ctx context.Context, query string, args ...any) ([]models.Group, error) {
	rows, err := g.r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(err, "list groups")
	}
	defer rows.Close()

	var out []models.Group
	for rows.Next() {
		grp, err := scanGroup(rows)
		if err != nil {
			return nil, persistence(err, "scan group")
		}
		out = append(out, grp)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err, "list groups")
	}
	return nonNil(out), nil
}

// GetByID returns the group with id.
func (g Groups) GetByID(ctx context.Context, id string) (*models.Group, error) {
	out, err := g.query(ctx, `SELECT `+groupColumns+` FROM tag_groups WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.NotFoundf("group %s not found", id)
	}
	return &out[0], nil
}

// Add validates grp and inserts it under libraryID.
func (g Groups) Add(ctx context.Context, grp models.Group, libraryID string) (string, error) {
	if err := requireParent("library", libraryID); err != nil {
		return "", err
	}
	if err := validateName("group", grp.Name); err != nil {
		return "", err
	}
	if err := g.r.requireExists(ctx, "libraries", "library", libraryID); err != nil {
		return "", err
	}
	taken, err := g.r.nameTaken(ctx, "tag_groups", "library_id", libraryID, grp.Name, "")
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.Validationf("group %q already exists in this library", strings.TrimSpace(grp.Name))
	}

	grp.ID = uuid.NewString()
	grp.LibraryID = libraryID
	if err := g.insert(ctx, g.r.q(), grp); err != nil {
		return "", err
	}
	return grp.ID, nil
}

func (g Groups) insert(ctx context.Context, q querier, grp models.Group) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tag_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		grp.ID, grp.LibraryID, strings.TrimSpace(grp.Name), grp.Color, grp.Icon, grp.Order)
	if err != nil {
		return persistence(err, "insert group")
	}
	return nil
}

// Update applies patch to the group with id. It returns 0 when no such group exists.
func (g Groups) Update(ctx context.Context, id string, patch models.GroupPatch) (int64, error) {
	current, err := g.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var s setter
	if patch.Name != nil {
		if err := validateName("group", *patch.Name); err != nil {
			return 0, err
		}
		taken, err := g.r.nameTaken(ctx, "tag_groups", "library_id", current.LibraryID, *patch.Name, id)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, apperr.Validationf("group %q already exists in this library", strings.TrimSpace(*patch.Name))
		}
		s.set("name", strings.TrimSpace(*patch.Name))
	}
	if patch.Color != nil {
		s.set("color", *patch.Color)
	}
	if patch.Icon != nil {
		s.set("icon", *patch.Icon)
	}
	if patch.Order != nil {
		s.set("sort_order", *patch.Order)
	}
	return s.exec(ctx, g.r.q(), "tag_groups", id)
}

// Delete removes the group row only. Use DeleteGroup to cascade.
func (g Groups) Delete(ctx context.Context, id string) (int64, error) {
	return g.r.deleteRow(ctx, "tag_groups", id)
}

// BulkAdd inserts groups in one transaction. Callers populate LibraryID;
// missing ids are generated.
func (g Groups) BulkAdd(ctx context.Context, groups []models.Group) ([]string, error) {
	ids := make([]string, len(groups))
	err := g.r.atomic(ctx, func(r *Repos) error {
		stmt, err := r.tx.PrepareContext(ctx,
			`INSERT INTO tag_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return persistence(err, "prepare group insert")
		}
		defer stmt.Close()

		for i, grp := range groups {
			if err := requireParent("library", grp.LibraryID); err != nil {
				return err
			}
			if grp.ID == "" {
				grp.ID = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, grp.ID, grp.LibraryID,
				strings.TrimSpace(grp.Name), grp.Color, grp.Icon, grp.Order); err != nil {
				return persistence(err, "insert group")
			}
			ids[i] = grp.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
