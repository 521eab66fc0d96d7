package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
)

// Libraries is the repository for the libraries table.
type Libraries struct{ r *Repos }

const libraryColumns = `id, name, description, created_at`

func scanLibrary(s scanner) (models.Library, error) {
	var (
		l       models.Library
		created string
	)
	if err := s.Scan(&l.ID, &l.Name, &l.Description, &created); err != nil {
		return l, err
	}
	l.CreatedAt = parseTime(created)
	return l, nil
}

// GetAll returns every library sorted by name, case-insensitively.
func (l Libraries) GetAll(ctx context.Context) ([]models.Library, error) {
	rows, err := l.r.q().QueryContext(ctx,
		`SELECT `+libraryColumns+` FROM libraries ORDER BY name COLLATE NOCASE, created_at`)
	if err != nil {
		return nil, persistence(err, "list libraries")
	}
	defer rows.Close()

	var out []models.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, persistence(err, "scan library")
		}
		out = append(out, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err, "list libraries")
	}
	return nonNil(out), nil
}

// GetByID returns the library with id.
func (l Libraries) GetByID(ctx context.Context, id string) (*models.Library, error) {
	rows, err := l.r.q().QueryContext(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id)
	if err != nil {
		return nil, persistence(err, "get library")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, persistence(err, "get library")
		}
		return nil, apperr.NotFoundf("library %s not found", id)
	}
	lib, err := scanLibrary(rows)
	if err != nil {
		return nil, persistence(err, "scan library")
	}
	return &lib, nil
}

// FindByName returns the library whose name matches case-insensitively.
func (l Libraries) FindByName(ctx context.Context, name string) (*models.Library, error) {
	all, err := l.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(name)
	for i := range all {
		if strings.EqualFold(all[i].Name, want) {
			return &all[i], nil
		}
	}
	return nil, apperr.NotFoundf("library %q not found", name)
}

// Add validates and inserts a library, returning its new id.
func (l Libraries) Add(ctx context.Context, lib models.Library) (string, error) {
	if err := validateName("library", lib.Name); err != nil {
		return "", err
	}
	taken, err := l.r.nameTaken(ctx, "libraries", "", "", lib.Name, "")
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.Validationf("library %q already exists", strings.TrimSpace(lib.Name))
	}

	lib.ID = uuid.NewString()
	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = time.Now()
	}
	if err := l.insert(ctx, l.r.q(), lib); err != nil {
		return "", err
	}
	return lib.ID, nil
}

func (l Libraries) insert(ctx context.Context, q querier, lib models.Library) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO libraries (`+libraryColumns+`) VALUES (?, ?, ?, ?)`,
		lib.ID, strings.TrimSpace(lib.Name), lib.Description, formatTime(lib.CreatedAt))
	if err != nil {
		return persistence(err, "insert library")
	}
	return nil
}

// Update applies patch to the library with id. It returns 0 when no such
// library exists.
func (l Libraries) Update(ctx context.Context, id string, patch models.LibraryPatch) (int64, error) {
	if _, err := l.GetByID(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var s setter
	if patch.Name != nil {
		if err := validateName("library", *patch.Name); err != nil {
			return 0, err
		}
		taken, err := l.r.nameTaken(ctx, "libraries", "", "", *patch.Name, id)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, apperr.Validationf("library %q already exists", strings.TrimSpace(*patch.Name))
		}
		s.set("name", strings.TrimSpace(*patch.Name))
	}
	if patch.Description != nil {
		s.set("description", *patch.Description)
	}
	return s.exec(ctx, l.r.q(), "libraries", id)
}

// Delete removes the library row only. Use DeleteLibrary to cascade.
func (l Libraries) Delete(ctx context.Context, id string) (int64, error) {
	return l.r.deleteRow(ctx, "libraries", id)
}

// BulkAdd inserts libs in one transaction. Missing ids are generated.
func (l Libraries) BulkAdd(ctx context.Context, libs []models.Library) ([]string, error) {
	ids := make([]string, len(libs))
	err := l.r.atomic(ctx, func(r *Repos) error {
		for i, lib := range libs {
			if lib.ID == "" {
				lib.ID = uuid.NewString()
			}
			if lib.CreatedAt.IsZero() {
				lib.CreatedAt = time.Now()
			}
			if err := l.insert(ctx, r.q(), lib); err != nil {
				return err
			}
			ids[i] = lib.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
