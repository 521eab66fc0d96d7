// Package testutil provides shared test helpers for setting up stores,
// flag stores and exchange directories.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/tagshelf/internal/flagstore"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/storage"
	"github.com/starford/tagshelf/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, _ := TestDBFile(t)
	return db
}

// TestDBFile is TestDB that also returns the database file path, for tests
// that need a second raw connection.
func TestDBFile(t *testing.T) (*store.DB, string) {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tagshelf-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db := store.New(dbFile.Name(), nil)
	if err := db.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dbFile.Name()
}

// TestFlags opens an in-memory flag store.
func TestFlags(t *testing.T) *flagstore.Store {
	t.Helper()
	fs, err := flagstore.Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

// TestExchange creates a temporary exchange directory with a storage.Provider.
func TestExchange(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Fixture maps names to ids for a seeded library.
type Fixture struct {
	LibraryID  string
	Groups     map[string]string
	Categories map[string]string
	Tags       map[string]string
}

// Seed creates a library called name holding:
//
//	Style/Medium: watercolor, oil paint
//	Style/Light: rim light
//	Subject/Hair: long hair
func Seed(t *testing.T, db *store.DB, name string) Fixture {
	t.Helper()
	ctx := context.Background()
	r := db.Repos()

	f := Fixture{
		Groups:     map[string]string{},
		Categories: map[string]string{},
		Tags:       map[string]string{},
	}
	var err error
	if f.LibraryID, err = r.Libraries().Add(ctx, models.Library{Name: name}); err != nil {
		t.Fatalf("seed library: %v", err)
	}

	tree := []struct {
		group, category string
		tags            []string
	}{
		{"Style", "Medium", []string{"watercolor", "oil paint"}},
		{"Style", "Light", []string{"rim light"}},
		{"Subject", "Hair", []string{"long hair"}},
	}
	for _, n := range tree {
		gid, ok := f.Groups[n.group]
		if !ok {
			gid, err = r.Groups().Add(ctx, models.Group{Name: n.group, Order: float64(len(f.Groups))}, f.LibraryID)
			if err != nil {
				t.Fatalf("seed group: %v", err)
			}
			f.Groups[n.group] = gid
		}
		cid, err := r.Categories().Add(ctx, models.Category{Name: n.category}, gid)
		if err != nil {
			t.Fatalf("seed category: %v", err)
		}
		f.Categories[n.category] = cid
		for _, tag := range n.tags {
			tid, err := r.Tags().Add(ctx, models.Tag{Name: tag, Keyword: tag}, cid)
			if err != nil {
				t.Fatalf("seed tag: %v", err)
			}
			f.Tags[tag] = tid
		}
	}
	return f
}
