// Package inbox imports documents dropped into a watched directory into the
// active library.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/checksum"
	"github.com/starford/tagshelf/internal/storage"
	"github.com/starford/tagshelf/internal/tagservice"
	"github.com/starford/tagshelf/internal/transfer"
)

// RejectedDir is the inbox subdirectory malformed documents are moved to.
const RejectedDir = ".rejected"

// Importer merges raw document bytes into the active library.
type Importer interface {
	ImportData(ctx context.Context, data []byte, mode transfer.Mode, source string) (*tagservice.ImportResult, error)
}

// Checksums remembers the last imported content of each inbox file.
type Checksums interface {
	InboxChecksum(path string) (string, error)
	SetInboxChecksum(path, sum string) error
}

// EventCallback is called after every import attempt for path. res is nil
// when err is set.
type EventCallback func(path string, res *tagservice.ImportResult, err error)

// Watcher imports inbox documents on startup and whenever they change.
type Watcher struct {
	files    *storage.FS
	dir      string
	importer Importer
	sums     Checksums
	logger   *slog.Logger
	debounce time.Duration
	cb       EventCallback
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithCallback sets the callback run after each import attempt.
func WithCallback(cb EventCallback) Option {
	return func(w *Watcher) {
		w.cb = cb
	}
}

// New creates a watcher for dir, relative to the exchange root.
func New(files *storage.FS, dir string, importer Importer, sums Checksums, logger *slog.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		files:    files,
		dir:      filepath.ToSlash(filepath.Clean(dir)),
		importer: importer,
		sums:     sums,
		logger:   logger,
		debounce: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sync imports every inbox document whose content changed since its last
// import.
func (w *Watcher) Sync(ctx context.Context) error {
	if _, err := w.ensureDir(); err != nil {
		return err
	}
	metas, err := w.files.List(w.dir)
	if err != nil {
		return err
	}
	for _, m := range metas {
		if path.Dir(m.Path) != w.dir {
			continue
		}
		w.process(ctx, m.Path)
	}
	return nil
}

// Run watches the inbox until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := w.ensureDir()
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(abs); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", abs, err)
	}
	w.logger.Info("inbox: started", slog.String("dir", abs))

	ready := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	schedule := func(rel string) {
		if t, ok := timers[rel]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[rel] = time.AfterFunc(w.debounce, func() {
			select {
			case ready <- rel:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox: stopped")
			return nil

		case rel := <-ready:
			delete(timers, rel)
			w.process(ctx, rel)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !storage.IsDocument(name) || name[0] == '.' {
				continue
			}
			schedule(path.Join(w.dir, name))

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) ensureDir() (string, error) {
	abs, err := w.files.Abs(w.dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("inbox: mkdir: %w", err)
	}
	return abs, nil
}

// process imports one file unless its content was already imported.
func (w *Watcher) process(ctx context.Context, rel string) {
	data, err := w.files.Read(rel)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return
	}

	sum := checksum.Sum(data)
	prev, err := w.sums.InboxChecksum(rel)
	if err != nil {
		w.logger.Warn("inbox: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	if prev == sum {
		w.logger.Debug("inbox: unchanged, skipped", slog.String("path", rel))
		return
	}

	res, err := w.importer.ImportData(ctx, data, transfer.ModeMerge, rel)
	if err != nil {
		w.fail(rel, err)
		return
	}
	if err := w.sums.SetInboxChecksum(rel, sum); err != nil {
		w.logger.Warn("inbox: checksum save failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	w.logger.Info("inbox: imported",
		slog.String("path", rel),
		slog.Int("tags_added", res.TagsAdded),
		slog.Int("tags_skipped", res.TagsSkipped))
	if w.cb != nil {
		w.cb(rel, res, nil)
	}
}

// fail logs a failed import. Malformed documents are moved aside so they
// are not retried; other failures are retried on the next change.
func (w *Watcher) fail(rel string, err error) {
	w.logger.Warn("inbox: import failed", slog.String("path", rel), slog.String("error", err.Error()))
	if errors.Is(err, apperr.ErrFormat) {
		dest := path.Join(w.dir, RejectedDir, path.Base(rel))
		if mvErr := w.files.Move(rel, dest); mvErr != nil {
			w.logger.Warn("inbox: move rejected file", slog.String("path", rel), slog.String("error", mvErr.Error()))
		}
	}
	if w.cb != nil {
		w.cb(rel, nil, err)
	}
}
