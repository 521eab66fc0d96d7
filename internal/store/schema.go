package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tagshelf/internal/apperr"
)

// LatestVersion is the schema version this build writes.
const LatestVersion = 3

// Names given to rows created while migrating older layouts.
const (
	DefaultLibraryName = "Default Library"
	DefaultGroupName   = "General"
)

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER NOT NULL,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// v1: flat categories and tags.
const schemaV1SQL = `
CREATE TABLE IF NOT EXISTS categories (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	icon  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tags (
	id          TEXT PRIMARY KEY,
	category_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	subtitles   TEXT NOT NULL DEFAULT '[]',
	keyword     TEXT NOT NULL DEFAULT '',
	weight      REAL,
	color       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_categories_name ON categories(name);
CREATE INDEX IF NOT EXISTS idx_tags_category ON tags(category_id);
CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);
CREATE INDEX IF NOT EXISTS idx_tags_keyword ON tags(keyword);
CREATE INDEX IF NOT EXISTS idx_tags_category_name ON tags(category_id, name COLLATE NOCASE);
`

// v2: libraries own categories.
const schemaV2SQL = `
CREATE TABLE IF NOT EXISTS libraries (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_libraries_name ON libraries(name COLLATE NOCASE);

ALTER TABLE categories ADD COLUMN library_id TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_categories_library ON categories(library_id);
CREATE INDEX IF NOT EXISTS idx_categories_library_name ON categories(library_id, name COLLATE NOCASE);
`

// v3: groups sit between libraries and categories.
const schemaV3GroupsSQL = `
CREATE TABLE IF NOT EXISTS tag_groups (
	id         TEXT PRIMARY KEY,
	library_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	color      TEXT NOT NULL DEFAULT '',
	icon       TEXT NOT NULL DEFAULT '',
	sort_order REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_groups_library ON tag_groups(library_id);
CREATE INDEX IF NOT EXISTS idx_groups_library_name ON tag_groups(library_id, name COLLATE NOCASE);

CREATE TABLE categories_v3 (
	id       TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	name     TEXT NOT NULL,
	color    TEXT NOT NULL DEFAULT '',
	icon     TEXT NOT NULL DEFAULT ''
);
`

const schemaV3CategoryIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_categories_name ON categories(name);
CREATE INDEX IF NOT EXISTS idx_categories_group ON categories(group_id);
CREATE INDEX IF NOT EXISTS idx_categories_group_name ON categories(group_id, name COLLATE NOCASE);
`

type migration struct {
	from int
	fn   func(ctx context.Context, tx *sql.Tx) error
}

// migrations are applied in order; each moves the schema from `from` to from+1.
var migrations = []migration{
	{from: 0, fn: migrateV0},
	{from: 1, fn: migrateV1},
	{from: 2, fn: migrateV2},
}

func migrate(ctx context.Context, conn *sql.DB, logger *slog.Logger) error {
	version, err := detectVersion(ctx, conn)
	if err != nil {
		return err
	}
	if version > LatestVersion {
		return apperr.SchemaIncompatible(version, LatestVersion)
	}

	for version < LatestVersion {
		m, ok := findMigration(version)
		if !ok {
			return apperr.SchemaIncompatible(version, LatestVersion)
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return fmt.Errorf("store: migrate v%d to v%d: %w", m.from, m.from+1, err)
		}
		logger.Info("store: schema migrated",
			slog.Int("from", m.from),
			slog.Int("to", m.from+1))
		version++
	}
	return nil
}

func findMigration(from int) (migration, bool) {
	for _, m := range migrations {
		if m.from == from {
			return m, true
		}
	}
	return migration{}, false
}

func applyMigration(ctx context.Context, conn *sql.DB, m migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.fn(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, versionTableSQL); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.from+1, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// detectVersion reads schema_version, or sniffs the table layout of
// databases written before versions were recorded.
func detectVersion(ctx context.Context, q querier) (int, error) {
	hasVersionTable, err := tableExists(ctx, q, "schema_version")
	if err != nil {
		return 0, err
	}
	if hasVersionTable {
		var v sql.NullInt64
		if err := queryRow(ctx, q, `SELECT MAX(version) FROM schema_version`, nil, &v); err != nil {
			return 0, fmt.Errorf("store: read schema version: %w", err)
		}
		if v.Valid {
			return int(v.Int64), nil
		}
	}

	cols, err := tableColumns(ctx, q, "categories")
	if err != nil {
		return 0, err
	}
	switch {
	case len(cols) == 0:
		return 0, nil
	case cols["group_id"]:
		return 3, nil
	case cols["library_id"]:
		return 2, nil
	default:
		return 1, nil
	}
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := queryRow(ctx, q,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		[]any{name}, &n)
	if err != nil {
		return false, fmt.Errorf("store: inspect %s: %w", name, err)
	}
	return n > 0, nil
}

func tableColumns(ctx context.Context, q querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("store: table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("store: scan table info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func migrateV0(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, schemaV1SQL); err != nil {
		return fmt.Errorf("apply v1 schema: %w", err)
	}
	return nil
}

// migrateV1 adds libraries and attaches every existing category to a
// default library so no row becomes unreachable.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, schemaV2SQL); err != nil {
		return fmt.Errorf("apply v2 schema: %w", err)
	}
	return adoptOrphanCategories(ctx, tx)
}

// migrateV2 inserts one default group per library and rebuilds categories
// to point at groups instead of libraries.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	// Categories whose library vanished are adopted first.
	if err := adoptOrphanCategories(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, schemaV3GroupsSQL); err != nil {
		return fmt.Errorf("apply v3 schema: %w", err)
	}

	owners, err := distinctStrings(ctx, tx, `SELECT DISTINCT library_id FROM categories`)
	if err != nil {
		return err
	}
	for _, libraryID := range owners {
		groupID := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tag_groups (id, library_id, name, sort_order) VALUES (?, ?, ?, 0)`,
			groupID, libraryID, DefaultGroupName,
		); err != nil {
			return fmt.Errorf("insert default group: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories_v3 (id, group_id, name, color, icon)
			SELECT id, ?, name, color, icon FROM categories WHERE library_id = ?
		`, groupID, libraryID); err != nil {
			return fmt.Errorf("copy categories: %w", err)
		}
	}

	for _, stmt := range []string{
		`DROP TABLE categories`,
		`ALTER TABLE categories_v3 RENAME TO categories`,
		schemaV3CategoryIndexesSQL,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild categories: %w", err)
		}
	}
	return nil
}

func adoptOrphanCategories(ctx context.Context, tx *sql.Tx) error {
	var orphans int
	if err := queryRow(ctx, tx, `
		SELECT COUNT(*) FROM categories
		WHERE library_id = '' OR library_id NOT IN (SELECT id FROM libraries)
	`, nil, &orphans); err != nil {
		return fmt.Errorf("count orphan categories: %w", err)
	}
	if orphans == 0 {
		return nil
	}

	libraryID, err := ensureDefaultLibrary(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE categories SET library_id = ?
		WHERE library_id = '' OR library_id NOT IN (SELECT id FROM libraries)
	`, libraryID); err != nil {
		return fmt.Errorf("attach categories: %w", err)
	}
	return nil
}

func ensureDefaultLibrary(ctx context.Context, tx *sql.Tx) (string, error) {
	var id string
	err := queryRow(ctx, tx, `SELECT id FROM libraries WHERE name = ? COLLATE NOCASE`,
		[]any{DefaultLibraryName}, &id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("find default library: %w", err)
	}
	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO libraries (id, name, description, created_at) VALUES (?, ?, '', ?)`,
		id, DefaultLibraryName, formatTime(time.Now()),
	); err != nil {
		return "", fmt.Errorf("insert default library: %w", err)
	}
	return id, nil
}

func distinctStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
