// Package storage defines the exchange directory abstraction used for
// document import and export.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/starford/tagshelf/internal/models"
)

// Provider is the interface for exchange file operations.
type Provider interface {
	// List returns metadata for every document file under dir (relative to root).
	List(dir string) ([]models.DocumentFile, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
}

// IsDocument reports whether name has a document extension (.json, .yaml, .yml).
func IsDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
