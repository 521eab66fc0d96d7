package transfer_test

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/store"
	"github.com/starford/tagshelf/internal/testutil"
	"github.com/starford/tagshelf/internal/transfer"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine(db *store.DB) *transfer.Engine {
	return transfer.NewEngine(db, nil, transfer.WithClock(func() time.Time { return fixedNow }))
}

func tagNames(t *testing.T, db *store.DB, libraryID string) []string {
	t.Helper()
	tags, err := db.Repos().Tags().GetAllByLibrary(context.Background(), libraryID)
	require.NoError(t, err)
	out := make([]string, 0, len(tags))
	for _, tg := range tags {
		out = append(out, tg.Name)
	}
	sort.Strings(out)
	return out
}

func TestExportNestsHierarchy(t *testing.T) {
	db := testutil.TestDB(t)
	f := testutil.Seed(t, db, "Demo")

	doc, err := newEngine(db).Export(context.Background(), f.LibraryID)
	require.NoError(t, err)

	assert.Equal(t, transfer.DocumentVersion, doc.Version)
	assert.Equal(t, "Demo", doc.Library.Name)
	require.NotNil(t, doc.Library.ExportedAt)
	assert.True(t, doc.Library.ExportedAt.Equal(fixedNow))

	require.Len(t, doc.Groups, 2)
	assert.Equal(t, "Style", doc.Groups[0].Name)
	assert.Equal(t, "Subject", doc.Groups[1].Name)
	require.Len(t, doc.Groups[0].Categories, 2)
	assert.Equal(t, 4, doc.TagCount())
}

func TestExportMissingLibrary(t *testing.T) {
	db := testutil.TestDB(t)
	_, err := newEngine(db).Export(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExportClearImportReplace(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	r := db.Repos()

	lib, err := r.Libraries().Add(ctx, models.Library{Name: "Demo"})
	require.NoError(t, err)
	g, err := r.Groups().Add(ctx, models.Group{Name: "G1"}, lib)
	require.NoError(t, err)
	c, err := r.Categories().Add(ctx, models.Category{Name: "C1"}, g)
	require.NoError(t, err)
	for _, n := range []string{"t1", "t2"} {
		_, err := r.Tags().Add(ctx, models.Tag{Name: n}, c)
		require.NoError(t, err)
	}

	e := newEngine(db)
	doc, err := e.Export(ctx, lib)
	require.NoError(t, err)
	require.NoError(t, r.ClearLibraryData(ctx, lib))

	res, err := e.Import(ctx, lib, doc, transfer.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TagsAdded)
	assert.Equal(t, []string{"t1", "t2"}, tagNames(t, db, lib))
}

func TestRoundTripIsIdempotent(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	f := testutil.Seed(t, db, "Demo")
	e := newEngine(db)

	first, err := e.Export(ctx, f.LibraryID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := e.Import(ctx, f.LibraryID, first, transfer.ModeReplace)
		require.NoError(t, err)
	}
	second, err := e.Export(ctx, f.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Merging the library's own export adds nothing.
	res, err := e.Import(ctx, f.LibraryID, second, transfer.ModeMerge)
	require.NoError(t, err)
	assert.Zero(t, res.GroupsAdded)
	assert.Zero(t, res.CategoriesAdded)
	assert.Zero(t, res.TagsAdded)
	assert.Equal(t, 4, res.TagsSkipped)
}

func TestMergeAddsOnlyNewNames(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	f := testutil.Seed(t, db, "Demo")

	doc := &transfer.Document{
		Version: transfer.DocumentVersion,
		Groups: []transfer.GroupDoc{
			{Name: "style", Categories: []transfer.CategoryDoc{
				{Name: "MEDIUM", Tags: []transfer.TagDoc{
					{Name: "Watercolor"},
					{Name: "ink"},
					{Name: "INK"},
				}},
				{Name: "Palette", Tags: []transfer.TagDoc{{Name: "pastel"}}},
			}},
			{Name: "Camera", Categories: []transfer.CategoryDoc{
				{Name: "Lens", Tags: []transfer.TagDoc{{Name: "85mm"}, {Name: "macro"}}},
			}},
		},
	}

	before, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)

	res, err := newEngine(db).Import(ctx, f.LibraryID, doc, transfer.ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, res.GroupsAdded)
	assert.Equal(t, 2, res.CategoriesAdded)
	assert.Equal(t, 4, res.TagsAdded)
	assert.Equal(t, 2, res.TagsSkipped)
	assert.Len(t, res.Warnings, 2)

	after, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, before.Groups+1, after.Groups)
	assert.Equal(t, before.Categories+2, after.Categories)
	assert.Equal(t, before.Tags+4, after.Tags)

	mediumTags, err := db.Repos().Tags().GetAll(ctx, f.Categories["Medium"])
	require.NoError(t, err)
	assert.Len(t, mediumTags, 3, "ink lands in the existing Medium category")

	groups, err := db.Repos().Groups().GetAll(ctx, f.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, "Camera", groups[len(groups)-1].Name, "new group is ordered after existing ones")
}

func TestReplaceDropsPreviousContent(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	f := testutil.Seed(t, db, "Demo")

	doc := &transfer.Document{Groups: []transfer.GroupDoc{
		{Name: "Only", Categories: []transfer.CategoryDoc{
			{Name: "One", Tags: []transfer.TagDoc{{Name: "a"}, {Name: "A"}}},
		}},
	}}
	res, err := newEngine(db).Import(ctx, f.LibraryID, doc, transfer.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TagsAdded)
	assert.Equal(t, 1, res.TagsSkipped)

	c, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, models.Counts{Groups: 1, Categories: 1, Tags: 1}, c)
}

func TestImportFormatErrorWritesNothing(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	f := testutil.Seed(t, db, "Demo")
	before, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)

	doc := &transfer.Document{Groups: []transfer.GroupDoc{
		{Name: "Fine", Categories: []transfer.CategoryDoc{{Name: "ok"}}},
		{Name: "  ", Categories: []transfer.CategoryDoc{}},
	}}
	_, err = newEngine(db).Import(ctx, f.LibraryID, doc, transfer.ModeReplace)
	require.ErrorIs(t, err, apperr.ErrFormat)

	after, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImportStorageFailureRollsBack(t *testing.T) {
	db, path := testutil.TestDBFile(t)
	ctx := context.Background()
	f := testutil.Seed(t, db, "Demo")
	before, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`CREATE TRIGGER reject_second BEFORE INSERT ON tags
		WHEN NEW.name = 'second'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)

	doc := &transfer.Document{Groups: []transfer.GroupDoc{{
		Name: "Camera",
		Categories: []transfer.CategoryDoc{{
			Name: "Lens",
			Tags: []transfer.TagDoc{{Name: "first"}, {Name: "second"}},
		}},
	}}}
	_, err = newEngine(db).Import(ctx, f.LibraryID, doc, transfer.ModeReplace)
	require.ErrorIs(t, err, apperr.ErrPersistence)

	after, err := db.Counts(ctx, f.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "the clear must roll back with the failed insert")
	assert.NotContains(t, tagNames(t, db, f.LibraryID), "first")
}

func TestImportIntoMissingLibrary(t *testing.T) {
	db := testutil.TestDB(t)
	_, err := newEngine(db).Import(context.Background(), "missing", &transfer.Document{}, transfer.ModeMerge)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want transfer.Mode
		err  bool
	}{
		{"", transfer.ModeMerge, false},
		{"merge", transfer.ModeMerge, false},
		{" Replace ", transfer.ModeReplace, false},
		{"append", "", true},
	}
	for _, tc := range cases {
		got, err := transfer.ParseMode(tc.in)
		if tc.err {
			assert.ErrorIs(t, err, apperr.ErrValidation, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseShapes(t *testing.T) {
	cases := []struct {
		name       string
		input      string
		groups     []string
		tags       int
		libName    string
		warnings   int
		firstGroup string
	}{
		{
			name: "nested",
			input: `{"version":"3.0","library":{"name":"Anime"},"groups":[
				{"name":"Style","categories":[{"name":"Medium","tags":[{"name":"ink"},{"name":""}]}]},
				{"name":"Empty","categories":[]}]}`,
			groups:   []string{"Style", "Empty"},
			tags:     1,
			libName:  "Anime",
			warnings: 1,
		},
		{
			name: "flat",
			input: `{"metadata":{"name":"Old"},"categories":[{"name":"Hair"},{"name":"Eyes"}],
				"tags":[{"name":"long","categoryName":"hair"},{"name":"blue","categoryName":"Eyes"},
				{"name":"lost","categoryName":"Nope"}]}`,
			groups:   []string{store.DefaultGroupName},
			tags:     2,
			libName:  "Old",
			warnings: 1,
		},
		{
			name: "library-scoped",
			input: `{"library":{"name":"Scoped"},"categories":[
				{"name":"Lens","tags":[{"name":"85mm","weight":2}]}]}`,
			groups:  []string{store.DefaultGroupName},
			tags:    1,
			libName: "Scoped",
		},
		{
			name: "yaml",
			input: `
library:
  name: Yaml Lib
groups:
  - name: Style
    categories:
      - name: Medium
        tags:
          - name: watercolor
            subtitles: [wc]
`,
			groups:  []string{"Style"},
			tags:    1,
			libName: "Yaml Lib",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, warnings, err := transfer.Parse([]byte(tc.input))
			require.NoError(t, err)
			var names []string
			for _, g := range doc.Groups {
				names = append(names, g.Name)
			}
			assert.Equal(t, tc.groups, names)
			assert.Equal(t, tc.tags, doc.TagCount())
			assert.Equal(t, tc.libName, doc.Library.Name)
			assert.Len(t, warnings, tc.warnings)
			assert.Equal(t, transfer.DocumentVersion, doc.Version)
		})
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"empty":                 "   ",
		"array":                 `[1, 2]`,
		"scalar yaml":           "just text",
		"no known arrays":       `{"library":{"name":"x"}}`,
		"group without name":    `{"groups":[{"categories":[]}]}`,
		"missing categories":    `{"groups":[{"name":"G"}]}`,
		"missing tags":          `{"groups":[{"name":"G","categories":[{"name":"C"}]}]}`,
		"scoped missing tags":   `{"categories":[{"name":"C"}]}`,
		"wrong field type":      `{"groups":"nope"}`,
		"flat unnamed category": `{"categories":[{"name":""}],"tags":[]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := transfer.Parse([]byte(input))
			assert.ErrorIs(t, err, apperr.ErrFormat)
		})
	}
}

func TestEncodeParsesBack(t *testing.T) {
	db := testutil.TestDB(t)
	f := testutil.Seed(t, db, "Demo")
	doc, err := newEngine(db).Export(context.Background(), f.LibraryID)
	require.NoError(t, err)

	for _, format := range []transfer.Format{transfer.FormatJSON, transfer.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := transfer.Encode(doc, format)
			require.NoError(t, err)
			if format == transfer.FormatJSON {
				assert.True(t, strings.HasSuffix(string(data), "}\n"))
			}
			back, warnings, err := transfer.Parse(data)
			require.NoError(t, err)
			assert.Empty(t, warnings)
			assert.Equal(t, doc.Groups, back.Groups)
			assert.Equal(t, doc.Library.Name, back.Library.Name)
		})
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, transfer.FormatYAML, transfer.FormatForPath("lib.YML"))
	assert.Equal(t, transfer.FormatYAML, transfer.FormatForPath("a/b.yaml"))
	assert.Equal(t, transfer.FormatJSON, transfer.FormatForPath("lib.json"))
	assert.Equal(t, transfer.FormatJSON, transfer.FormatForPath("lib"))
}
