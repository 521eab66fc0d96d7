package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tagshelf/internal/apperr"
)

// maxNameLength bounds every entity name.
const maxNameLength = 200

// Repos groups the per-entity repositories. Obtain autocommit repositories
// with DB.Repos, or transactional ones inside DB.InTx.
type Repos struct {
	db *DB
	tx *sql.Tx
}

// Libraries returns the library repository.
func (r *Repos) Libraries() Libraries { return Libraries{r: r} }

// Groups returns the group repository.
func (r *Repos) Groups() Groups { return Groups{r: r} }

// Categories returns the category repository.
func (r *Repos) Categories() Categories { return Categories{r: r} }

// Tags returns the tag repository.
func (r *Repos) Tags() Tags { return Tags{r: r} }

func (r *Repos) q() querier {
	if r.tx != nil {
		return r.tx
	}
	r.db.mu.RLock()
	conn := r.db.conn
	r.db.mu.RUnlock()
	if conn == nil {
		return closedQuerier{}
	}
	return conn
}

// atomic runs fn in the caller's transaction, or in a new one when r is autocommit.
func (r *Repos) atomic(ctx context.Context, fn func(r *Repos) error) error {
	if r.tx != nil {
		return fn(r)
	}
	return r.db.InTx(ctx, fn)
}

func persistence(err error, op string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Persistence(err, "store: "+op)
}

func validateName(kind, name string) error {
	err := validation.Validate(strings.TrimSpace(name),
		validation.Required,
		validation.RuneLength(1, maxNameLength),
	)
	if err != nil {
		return apperr.Validationf("%s name: %v", kind, err)
	}
	return nil
}

func requireParent(kind, parentID string) error {
	if parentID == "" {
		return apperr.Validationf("%s id is required", kind)
	}
	return nil
}

// exists reports whether table has a row with the given id.
func (r *Repos) exists(ctx context.Context, table, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var n int
	err := queryRow(ctx, r.q(),
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table), []any{id}, &n)
	if err != nil {
		return false, persistence(err, "lookup "+table)
	}
	return n > 0, nil
}

func (r *Repos) requireExists(ctx context.Context, table, kind, id string) error {
	ok, err := r.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("%s %s not found", kind, id)
	}
	return nil
}

// nameTaken reports whether a sibling under parentID already uses name,
// compared case-insensitively. excludeID skips the row being renamed.
// An empty parentCol scopes the check to the whole table.
func (r *Repos) nameTaken(ctx context.Context, table, parentCol, parentID, name, excludeID string) (bool, error) {
	query := fmt.Sprintf(`SELECT id, name FROM %s`, table)
	var args []any
	if parentCol != "" {
		query += fmt.Sprintf(` WHERE %s = ?`, parentCol)
		args = append(args, parentID)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return false, persistence(err, "check name in "+table)
	}
	defer rows.Close()

	want := strings.TrimSpace(name)
	for rows.Next() {
		var id, existing string
		if err := rows.Scan(&id, &existing); err != nil {
			return false, persistence(err, "scan names in "+table)
		}
		if id != excludeID && strings.EqualFold(strings.TrimSpace(existing), want) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, persistence(err, "check name in "+table)
	}
	return false, nil
}

// setter collects the SET clause of a partial update.
type setter struct {
	cols []string
	args []any
}

func (s *setter) set(col string, v any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

func (s *setter) exec(ctx context.Context, q querier, table, id string) (int64, error) {
	if len(s.cols) == 0 {
		return 1, nil
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(s.cols, ", "))
	res, err := q.ExecContext(ctx, query, append(s.args, id)...)
	if err != nil {
		return 0, persistence(err, "update "+table)
	}
	return res.RowsAffected()
}

func (r *Repos) deleteRow(ctx context.Context, table, id string) (int64, error) {
	res, err := r.q().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return 0, persistence(err, "delete from "+table)
	}
	return res.RowsAffected()
}

// chunkSize keeps IN lists well under SQLite's host parameter limit.
const chunkSize = 500

func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > chunkSize {
		out = append(out, ids[:chunkSize])
		ids = ids[chunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func placeholders(n int) (string, []any) {
	return strings.TrimSuffix(strings.Repeat("?,", n), ","), make([]any, 0, n)
}

// idsWhere returns the ids in table whose col matches any of parents.
func (r *Repos) idsWhere(ctx context.Context, table, col string, parents []string) ([]string, error) {
	var out []string
	for _, chunk := range chunks(parents) {
		ph, args := placeholders(len(chunk))
		for _, id := range chunk {
			args = append(args, id)
		}
		ids, err := distinctStrings(ctx, r.q(),
			fmt.Sprintf(`SELECT id FROM %s WHERE %s IN (%s)`, table, col, ph), args...)
		if err != nil {
			return nil, persistence(err, "collect "+table)
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (r *Repos) deleteIDs(ctx context.Context, table string, ids []string) (int64, error) {
	var total int64
	for _, chunk := range chunks(ids) {
		ph, args := placeholders(len(chunk))
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := r.q().ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, ph), args...)
		if err != nil {
			return total, persistence(err, "delete from "+table)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
