package inbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/tagservice"
	"github.com/starford/tagshelf/internal/testutil"
	"github.com/starford/tagshelf/internal/transfer"
)

type fakeImporter struct {
	mu      sync.Mutex
	sources []string
	modes   []transfer.Mode
}

func (f *fakeImporter) ImportData(_ context.Context, data []byte, mode transfer.Mode, source string) (*tagservice.ImportResult, error) {
	doc, _, err := transfer.Parse(data)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	return &tagservice.ImportResult{
		Result: transfer.Result{Mode: mode, TagsAdded: doc.TagCount()},
		Source: source,
	}, nil
}

func (f *fakeImporter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

const validDoc = `{"groups":[{"name":"Style","categories":[{"name":"Medium","tags":[{"name":"ink"}]}]}]}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSyncImportsOnceUntilContentChanges(t *testing.T) {
	root, files := testutil.TestExchange(t)
	imp := &fakeImporter{}
	w := New(files, "inbox", imp, testutil.TestFlags(t), quietLogger())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "a.json"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "nested", "b.json"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "notes.txt"), []byte("hello"), 0o644))

	ctx := context.Background()
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, []string{"inbox/a.json"}, imp.calls(), "only top-level documents are imported")
	assert.Equal(t, []transfer.Mode{transfer.ModeMerge}, imp.modes)

	require.NoError(t, w.Sync(ctx))
	assert.Len(t, imp.calls(), 1, "unchanged content is skipped")

	changed := `{"groups":[{"name":"Style","categories":[{"name":"Medium","tags":[{"name":"ink"},{"name":"chalk"}]}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "a.json"), []byte(changed), 0o644))
	require.NoError(t, w.Sync(ctx))
	assert.Len(t, imp.calls(), 2)
}

func TestSyncRejectsMalformedDocument(t *testing.T) {
	root, files := testutil.TestExchange(t)
	imp := &fakeImporter{}

	var gotErr error
	w := New(files, "inbox", imp, testutil.TestFlags(t), quietLogger(),
		WithCallback(func(_ string, _ *tagservice.ImportResult, err error) { gotErr = err }))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "bad.json"), []byte(`{"nope":true}`), 0o644))

	require.NoError(t, w.Sync(context.Background()))
	assert.ErrorIs(t, gotErr, apperr.ErrFormat)

	_, err := os.Stat(filepath.Join(root, "inbox", "bad.json"))
	assert.True(t, os.IsNotExist(err), "rejected file leaves the inbox")
	_, err = os.Stat(filepath.Join(root, "inbox", RejectedDir, "bad.json"))
	assert.NoError(t, err)
}

func TestSyncCreatesMissingInbox(t *testing.T) {
	root, files := testutil.TestExchange(t)
	w := New(files, "drop", &fakeImporter{}, testutil.TestFlags(t), quietLogger())
	require.NoError(t, w.Sync(context.Background()))

	info, err := os.Stat(filepath.Join(root, "drop"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunImportsNewFile(t *testing.T) {
	root, files := testutil.TestExchange(t)
	imp := &fakeImporter{}

	var mu sync.Mutex
	var done []string
	w := New(files, "inbox", imp, testutil.TestFlags(t), quietLogger(),
		WithDebounce(50*time.Millisecond),
		WithCallback(func(path string, res *tagservice.ImportResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil && res != nil {
				done = append(done, path)
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "new.yaml"),
		[]byte("groups:\n  - name: Style\n    categories:\n      - name: Medium\n        tags:\n          - name: ink\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "readme.md"), []byte("# hi"), 0o644))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(done) == 1 && done[0] == "inbox/new.yaml"
	}, "new inbox document not imported")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"inbox/new.yaml"}, imp.calls(), "one debounced import, non-documents ignored")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestImportsIntoActiveLibrary(t *testing.T) {
	db := testutil.TestDB(t)
	seed := testutil.Seed(t, db, "Demo")
	root, files := testutil.TestExchange(t)
	flags := testutil.TestFlags(t)

	sess := session.New(db, flags, nil)
	require.NoError(t, sess.Start(context.Background()))
	svc := tagservice.NewService(db, sess, nil, tagservice.WithFiles(files))
	w := New(files, "inbox", svc, flags, quietLogger())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "more.json"), []byte(validDoc), 0o644))
	require.NoError(t, w.Sync(context.Background()))

	counts, err := db.Counts(context.Background(), seed.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Tags, "ink merges into the existing Style/Medium category")
	assert.Len(t, svc.Search("ink", session.Filter{CategoryID: seed.Categories["Medium"]}), 1)
}
