// Package flagstore keeps small process flags, such as the active library id,
// in a badger key-value store next to the SQLite file. It can be read before
// the structured store is opened.
package flagstore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes.
const (
	sessionPrefix = "session:"
	inboxPrefix   = "inbox:"
)

const keyActiveLibrary = sessionPrefix + "active_library"

// Store is a badger-backed flag store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the flag store at path. An empty path keeps everything in memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("flagstore: open: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or "" when the key is absent.
func (s *Store) Get(key string) (string, error) {
	var out string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("flagstore: get %s: %w", key, err)
	}
	return out, nil
}

// Set stores value under key. An empty value deletes the key.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if value == "" {
			return txn.Delete([]byte(key))
		}
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("flagstore: set %s: %w", key, err)
	}
	return nil
}

// ActiveLibrary returns the persisted active library id, or "".
func (s *Store) ActiveLibrary() (string, error) {
	return s.Get(keyActiveLibrary)
}

// SetActiveLibrary persists id as the active library. An empty id clears it.
func (s *Store) SetActiveLibrary(id string) error {
	if err := s.Set(keyActiveLibrary, id); err != nil {
		return err
	}
	s.logger.Debug("flagstore: active library saved", slog.String("library_id", id))
	return nil
}

// InboxChecksum returns the checksum last imported from the inbox file at path.
func (s *Store) InboxChecksum(path string) (string, error) {
	return s.Get(inboxPrefix + path)
}

// SetInboxChecksum records the checksum of the content imported from path.
func (s *Store) SetInboxChecksum(path, sum string) error {
	return s.Set(inboxPrefix+path, sum)
}
