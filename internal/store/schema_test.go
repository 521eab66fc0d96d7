package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/starford/tagshelf/internal/apperr"
)

func tempPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "tagshelf-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() {
		os.Remove(f.Name())
		os.Remove(f.Name() + "-wal")
		os.Remove(f.Name() + "-shm")
	})
	return f.Name()
}

func testDB(t *testing.T) *DB {
	t.Helper()
	db := New(tempPath(t), nil)
	if err := db.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// legacyDB writes a pre-versioning layout with a raw connection.
func legacyDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := tempPath(t)
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			t.Fatalf("legacy exec %q: %v", s, err)
		}
	}
	return path
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	conn, _ := db.handle()
	for _, table := range []string{"libraries", "tag_groups", "categories", "tags", "schema_version"} {
		var n int
		if err := conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != LatestVersion {
		t.Errorf("version = %d, want %d", v, LatestVersion)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	db := testDB(t)
	conn, _ := db.handle()
	if err := db.Open(context.Background()); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	again, _ := db.handle()
	if conn != again {
		t.Error("second Open should keep the same connection")
	}
}

func TestReopenAfterClose(t *testing.T) {
	path := tempPath(t)
	ctx := context.Background()
	db := New(path, nil)
	if err := db.Open(ctx); err != nil {
		t.Fatal(err)
	}
	id, err := db.Repos().Libraries().Add(ctx, libraryNamed("Kept"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Repos().Libraries().GetAll(ctx); !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("closed handle: err = %v, want persistence error", err)
	}

	if err := db.Open(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if _, err := db.Repos().Libraries().GetByID(ctx, id); err != nil {
		t.Errorf("library lost across reopen: %v", err)
	}
}

func TestMigrateFromV1(t *testing.T) {
	path := legacyDB(t,
		schemaV1SQL,
		`INSERT INTO categories (id, name, color, icon) VALUES ('c1', 'Style', '#fff', '')`,
		`INSERT INTO categories (id, name, color, icon) VALUES ('c2', 'Light', '', '')`,
		`INSERT INTO tags (id, category_id, name, subtitles, keyword, weight, color)
			VALUES ('t1', 'c1', 'watercolor', '["wc"]', 'paint', 2, '')`,
	)
	ctx := context.Background()
	db := New(path, nil)
	if err := db.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	lib, err := db.Repos().Libraries().FindByName(ctx, DefaultLibraryName)
	if err != nil {
		t.Fatalf("default library not created: %v", err)
	}
	groups, err := db.Repos().Groups().GetAll(ctx, lib.ID)
	if err != nil || len(groups) != 1 || groups[0].Name != DefaultGroupName {
		t.Fatalf("groups = %+v, err = %v", groups, err)
	}
	cats, err := db.Repos().Categories().GetAll(ctx, groups[0].ID)
	if err != nil || len(cats) != 2 {
		t.Fatalf("categories = %+v, err = %v", cats, err)
	}
	tag, err := db.Repos().Tags().GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("tag lost: %v", err)
	}
	if tag.CategoryID != "c1" || tag.Keyword != "paint" || len(tag.Subtitles) != 1 || *tag.Weight != 2 {
		t.Errorf("tag fields changed: %+v", tag)
	}
	if v, _ := db.SchemaVersion(ctx); v != LatestVersion {
		t.Errorf("version = %d", v)
	}
}

func TestMigrateFromV2(t *testing.T) {
	path := legacyDB(t,
		schemaV1SQL,
		schemaV2SQL,
		`INSERT INTO libraries (id, name, description, created_at) VALUES ('l1', 'Anime', '', '2024-01-01T00:00:00Z')`,
		`INSERT INTO libraries (id, name, description, created_at) VALUES ('l2', 'Photo', '', '2024-01-01T00:00:00Z')`,
		`INSERT INTO categories (id, name, library_id) VALUES ('c1', 'Hair', 'l1')`,
		`INSERT INTO categories (id, name, library_id) VALUES ('c2', 'Lens', 'l2')`,
		`INSERT INTO tags (id, category_id, name) VALUES ('t1', 'c1', 'long hair')`,
	)
	ctx := context.Background()
	db := New(path, nil)
	if err := db.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for libID, catID := range map[string]string{"l1": "c1", "l2": "c2"} {
		cats, err := db.Repos().Categories().GetAllByLibrary(ctx, libID)
		if err != nil {
			t.Fatal(err)
		}
		if len(cats) != 1 || cats[0].ID != catID {
			t.Errorf("library %s categories = %+v", libID, cats)
		}
	}
	tags, _ := db.Repos().Tags().GetAllByLibrary(ctx, "l1")
	if len(tags) != 1 || tags[0].Name != "long hair" {
		t.Errorf("tags = %+v", tags)
	}
	if _, err := db.Repos().Libraries().FindByName(ctx, DefaultLibraryName); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("no default library expected when every category has an owner, err = %v", err)
	}
}

func TestNewerSchemaRejected(t *testing.T) {
	path := legacyDB(t, versionTableSQL, `INSERT INTO schema_version (version) VALUES (99)`)
	db := New(path, nil)
	err := db.Open(context.Background())
	if !errors.Is(err, apperr.ErrSchemaIncompatible) {
		t.Fatalf("err = %v, want schema incompatible", err)
	}
	if _, herr := db.handle(); herr == nil {
		t.Error("handle should stay closed after a refused open")
	}
}

func TestMissingMigrationPathRejected(t *testing.T) {
	saved := migrations
	migrations = migrations[:1]
	t.Cleanup(func() { migrations = saved })

	path := legacyDB(t, schemaV1SQL, `INSERT INTO categories (id, name) VALUES ('c1', 'Kept')`)
	db := New(path, nil)
	if err := db.Open(context.Background()); !errors.Is(err, apperr.ErrSchemaIncompatible) {
		t.Fatalf("err = %v, want schema incompatible", err)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	var n int
	if err := conn.QueryRow(`SELECT count(*) FROM categories`).Scan(&n); err != nil || n != 1 {
		t.Errorf("legacy rows touched: n = %d, err = %v", n, err)
	}
}
