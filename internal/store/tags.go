package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
)

// Tags is the repository for the tags table.
type Tags struct{ r *Repos }

const tagColumns = `id, category_id, name, subtitles, keyword, weight, color`

const tagOrder = `weight IS NULL, weight DESC, name COLLATE NOCASE`

func scanTag(s scanner) (models.Tag, error) {
	var (
		t         models.Tag
		subtitles string
		weight    sql.NullFloat64
	)
	if err := s.Scan(&t.ID, &t.CategoryID, &t.Name, &subtitles, &t.Keyword, &weight, &t.Color); err != nil {
		return t, err
	}
	if subtitles != "" {
		if err := json.Unmarshal([]byte(subtitles), &t.Subtitles); err != nil {
			return t, fmt.Errorf("decode subtitles of tag %s: %w", t.ID, err)
		}
	}
	if weight.Valid {
		w := weight.Float64
		t.Weight = &w
	}
	return t, nil
}

func tagArgs(t models.Tag) []any {
	subtitles := t.Subtitles
	if subtitles == nil {
		subtitles = []string{}
	}
	subJSON, _ := json.Marshal(subtitles)
	var weight sql.NullFloat64
	if t.Weight != nil {
		weight = sql.NullFloat64{Float64: *t.Weight, Valid: true}
	}
	return []any{t.ID, t.CategoryID, strings.TrimSpace(t.Name), string(subJSON), t.Keyword, weight, t.Color}
}

// GetAll returns the tags of categoryID, heaviest first, then by name.
func (t Tags) GetAll(ctx context.Context, categoryID string) ([]models.Tag, error) {
	if categoryID == "" {
		return []models.Tag{}, nil
	}
	return t.query(ctx, `SELECT `+tagColumns+` FROM tags
		WHERE category_id = ? ORDER BY `+tagOrder, categoryID)
}

// GetAllByLibrary returns every tag whose ownership chain ends at libraryID.
func (t Tags) GetAllByLibrary(ctx context.Context, libraryID string) ([]models.Tag, error) {
	if libraryID == "" {
		return []models.Tag{}, nil
	}
	return t.query(ctx, `
		SELECT t.id, t.category_id, t.name, t.subtitles, t.keyword, t.weight, t.color
		FROM tags t
		JOIN categories c ON c.id = t.category_id
		JOIN tag_groups g ON g.id = c.group_id
		WHERE g.library_id = ?
		ORDER BY t.weight IS NULL, t.weight DESC, t.name COLLATE NOCASE
	`, libraryID)
}

func (t Tags) query(ctx context.Context, query string, args ...any) ([]models.Tag, error) {
	rows, err := t.r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(err, "list tags")
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, persistence(err, "scan tag")
		}
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err, "list tags")
	}
	return nonNil(out), nil
}

// GetByID returns the tag with id.
func (t Tags) GetByID(ctx context.Context, id string) (*models.Tag, error) {
	out, err := t.query(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.NotFoundf("tag %s not found", id)
	}
	return &out[0], nil
}

// Add validates tag and inserts it under categoryID.
func (t Tags) Add(ctx context.Context, tag models.Tag, categoryID string) (string, error) {
	if err := requireParent("category", categoryID); err != nil {
		return "", err
	}
	if err := validateName("tag", tag.Name); err != nil {
		return "", err
	}
	if err := t.r.requireExists(ctx, "categories", "category", categoryID); err != nil {
		return "", err
	}
	taken, err := t.r.nameTaken(ctx, "tags", "category_id", categoryID, tag.Name, "")
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.Validationf("tag %q already exists in this category", strings.TrimSpace(tag.Name))
	}

	tag.ID = uuid.NewString()
	tag.CategoryID = categoryID
	if _, err := t.r.q().ExecContext(ctx,
		`INSERT INTO tags (`+tagColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`, tagArgs(tag)...); err != nil {
		return "", persistence(err, "insert tag")
	}
	return tag.ID, nil
}

// Update applies patch to the tag with id. A CategoryID in the patch moves
// the tag; the target must exist. It returns 0 when no such tag exists.
func (t Tags) Update(ctx context.Context, id string, patch models.TagPatch) (int64, error) {
	current, err := t.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	categoryID := current.CategoryID
	name := current.Name
	var s setter

	if patch.CategoryID != nil && *patch.CategoryID != current.CategoryID {
		if err := t.r.requireExists(ctx, "categories", "category", *patch.CategoryID); err != nil {
			return 0, err
		}
		categoryID = *patch.CategoryID
		s.set("category_id", categoryID)
	}
	if patch.Name != nil {
		if err := validateName("tag", *patch.Name); err != nil {
			return 0, err
		}
		name = *patch.Name
		s.set("name", strings.TrimSpace(name))
	}
	if patch.Name != nil || categoryID != current.CategoryID {
		taken, err := t.r.nameTaken(ctx, "tags", "category_id", categoryID, name, id)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, apperr.Validationf("tag %q already exists in this category", strings.TrimSpace(name))
		}
	}
	if patch.Subtitles != nil {
		subtitles := *patch.Subtitles
		if subtitles == nil {
			subtitles = []string{}
		}
		raw, _ := json.Marshal(subtitles)
		s.set("subtitles", string(raw))
	}
	if patch.Keyword != nil {
		s.set("keyword", *patch.Keyword)
	}
	switch {
	case patch.ClearWeight:
		s.set("weight", nil)
	case patch.Weight != nil:
		s.set("weight", *patch.Weight)
	}
	if patch.Color != nil {
		s.set("color", *patch.Color)
	}
	return s.exec(ctx, t.r.q(), "tags", id)
}

// Delete removes a single tag.
func (t Tags) Delete(ctx context.Context, id string) (int64, error) {
	return t.r.deleteRow(ctx, "tags", id)
}

// BulkAdd inserts tags in one transaction. Callers populate CategoryID.
func (t Tags) BulkAdd(ctx context.Context, tags []models.Tag) ([]string, error) {
	ids := make([]string, len(tags))
	err := t.r.atomic(ctx, func(r *Repos) error {
		stmt, err := r.tx.PrepareContext(ctx,
			`INSERT INTO tags (`+tagColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return persistence(err, "prepare tag insert")
		}
		defer stmt.Close()

		for i, tag := range tags {
			if err := requireParent("category", tag.CategoryID); err != nil {
				return err
			}
			if tag.ID == "" {
				tag.ID = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, tagArgs(tag)...); err != nil {
				return persistence(err, "insert tag")
			}
			ids[i] = tag.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
