// Package session tracks which library is active and holds its in-memory
// working set.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/store"
	"github.com/starford/tagshelf/internal/transfer"
)

// State is the lifecycle state of the active library.
type State string

// Session states.
const (
	StateNoLibrary State = "no_library"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateError     State = "error"
)

// ChangeKind says what caused a Change.
type ChangeKind string

// Change kinds.
const (
	ChangeSwitched ChangeKind = "switched"
	ChangeReloaded ChangeKind = "reloaded"
	ChangeFailed   ChangeKind = "failed"
	ChangeCleared  ChangeKind = "cleared"
)

// Change is delivered to subscribers after every settled transition.
type Change struct {
	Kind      ChangeKind
	State     State
	LibraryID string
	Previous  string
	Counts    models.Counts
	Err       error
}

// Flags persists the active library id outside the structured store.
type Flags interface {
	ActiveLibrary() (string, error)
	SetActiveLibrary(id string) error
}

// StarterFunc returns the document imported into a freshly bootstrapped
// library, or nil when there is none.
type StarterFunc func(ctx context.Context) (*transfer.Document, error)

// Option configures a Session.
type Option func(*Session)

// WithStarter sets the starter document used when no library exists.
func WithStarter(fn StarterFunc) Option {
	return func(s *Session) {
		s.starter = fn
	}
}

// WithClock overrides the clock used to stamp working sets.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session owns the active library id, its state and its working set.
type Session struct {
	db      *store.DB
	flags   Flags
	engine  *transfer.Engine
	logger  *slog.Logger
	starter StarterFunc
	now     func() time.Time
	cache   *searchCache
	fetch   func(ctx context.Context, id string) (*store.Contents, error)

	mu         sync.RWMutex
	state      State
	activeID   string
	ws         *WorkingSet
	lastErr    error
	generation uint64

	subMu sync.RWMutex
	subs  []func(Change)
}

// New creates a session in the NoLibrary state. Call Start to restore the
// persisted library.
func New(db *store.DB, flags Flags, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		db:     db,
		flags:  flags,
		engine: transfer.NewEngine(db, logger),
		logger: logger,
		now:    time.Now,
		cache:  newSearchCache(),
		state:  StateNoLibrary,
		ws:     emptyWorkingSet(),
	}
	s.fetch = db.LoadContents
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after every settled transition.
// Callbacks run synchronously and must not call back into the session's
// mutating methods.
func (s *Session) OnChange(fn func(Change)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Session) notify(c Change) {
	s.subMu.RLock()
	subs := make([]func(Change), len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActiveID returns the active library id, or "" when none is active.
func (s *Session) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// LastError returns the error of the most recent failed load.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Snapshot returns the current working set. It is empty unless the state
// is Ready, or Loading during a refresh of the same library.
func (s *Session) Snapshot() *WorkingSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ws
}

// RequireActive returns the active library id or a validation error.
func (s *Session) RequireActive() (string, error) {
	id := s.ActiveID()
	if id == "" {
		return "", apperr.Validationf("no active library")
	}
	return id, nil
}

// Start restores the persisted active library, falls back to the first
// library by name, or bootstraps the default library when none exist.
func (s *Session) Start(ctx context.Context) error {
	id, err := s.flags.ActiveLibrary()
	if err != nil {
		s.logger.Warn("session: read persisted library", slog.String("error", err.Error()))
		id = ""
	}

	libs := s.db.Repos().Libraries()
	if id != "" {
		_, err := libs.GetByID(ctx, id)
		switch {
		case err == nil:
			return s.Switch(ctx, id)
		case errors.Is(err, apperr.ErrNotFound):
			s.logger.Info("session: persisted library no longer exists", slog.String("library_id", id))
		default:
			return err
		}
	}

	all, err := libs.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(all) > 0 {
		s.logger.Info("session: falling back to first library",
			slog.String("library_id", all[0].ID),
			slog.String("name", all[0].Name))
		return s.Switch(ctx, all[0].ID)
	}

	id, err = s.bootstrap(ctx)
	if err != nil {
		return err
	}
	return s.Switch(ctx, id)
}

// bootstrap creates the default library and fills it from the starter.
// A broken starter leaves the library empty.
func (s *Session) bootstrap(ctx context.Context) (string, error) {
	id, err := s.db.Repos().Libraries().Add(ctx, models.Library{Name: store.DefaultLibraryName})
	if err != nil {
		return "", err
	}
	s.logger.Info("session: created default library", slog.String("library_id", id))

	if s.starter == nil {
		return id, nil
	}
	doc, err := s.starter(ctx)
	if err != nil {
		s.logger.Warn("session: load starter document", slog.String("error", err.Error()))
		return id, nil
	}
	if doc == nil {
		return id, nil
	}
	if _, err := s.engine.Import(ctx, id, doc, transfer.ModeReplace); err != nil {
		s.logger.Warn("session: import starter document", slog.String("error", err.Error()))
	}
	return id, nil
}

// Switch makes id the active library and loads its working set. An empty
// id clears the active library.
func (s *Session) Switch(ctx context.Context, id string) error {
	if id == "" {
		return s.clear()
	}
	return s.load(ctx, id, true)
}

// Refresh reloads the working set of the active library.
func (s *Session) Refresh(ctx context.Context) error {
	id := s.ActiveID()
	if id == "" {
		return nil
	}
	return s.load(ctx, id, false)
}

func (s *Session) clear() error {
	s.mu.Lock()
	s.generation++
	prev := s.activeID
	s.state = StateNoLibrary
	s.activeID = ""
	s.ws = emptyWorkingSet()
	s.lastErr = nil
	s.mu.Unlock()
	s.cache.Purge()

	if err := s.flags.SetActiveLibrary(""); err != nil {
		return err
	}
	s.logger.Info("session: active library cleared", slog.String("previous", prev))
	s.notify(Change{Kind: ChangeCleared, State: StateNoLibrary, Previous: prev})
	return nil
}

func (s *Session) load(ctx context.Context, id string, switching bool) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	prev := s.activeID
	s.state = StateLoading
	s.activeID = id
	if prev != id {
		s.ws = emptyWorkingSet()
	}
	s.mu.Unlock()

	contents, err := s.fetch(ctx, id)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("session: discarded stale load", slog.String("library_id", id))
		return nil
	}
	if err != nil {
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Error("session: load library",
			slog.String("library_id", id),
			slog.String("error", err.Error()))
		s.notify(Change{Kind: ChangeFailed, State: StateError, LibraryID: id, Previous: prev, Err: err})

		s.mu.Lock()
		if gen == s.generation {
			s.state = StateNoLibrary
			s.activeID = ""
			s.ws = emptyWorkingSet()
		}
		s.mu.Unlock()
		s.cache.Purge()
		return err
	}

	s.cache.Purge()
	ws := newWorkingSet(contents, gen, s.cache, s.now())
	s.ws = ws
	s.state = StateReady
	s.lastErr = nil
	s.mu.Unlock()

	if switching && prev != id {
		if err := s.flags.SetActiveLibrary(id); err != nil {
			s.logger.Warn("session: persist active library", slog.String("error", err.Error()))
		}
	}

	kind := ChangeReloaded
	if switching && prev != id {
		kind = ChangeSwitched
		s.logger.Info("session: switched library",
			slog.String("library_id", id),
			slog.String("name", ws.Library.Name))
	}
	s.notify(Change{Kind: kind, State: StateReady, LibraryID: id, Previous: prev, Counts: ws.Counts()})
	return nil
}
