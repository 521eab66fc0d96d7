// Package transfer converts libraries to and from the portable nested
// document format, with replace and merge import modes.
package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/tagshelf/internal/apperr"
)

// Document format identifiers.
const (
	DocumentVersion = "3.0"
	DocumentSchema  = "tagshelf://schema/library-v3"
)

// Document is the portable Library → Group → Category → Tag tree.
// It never carries internal ids; names are the portable identity.
type Document struct {
	Schema  string        `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Version string        `json:"version" yaml:"version"`
	Library LibraryHeader `json:"library" yaml:"library"`
	Groups  []GroupDoc    `json:"groups" yaml:"groups"`
}

// LibraryHeader describes the exported library.
type LibraryHeader struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	ExportedAt  *time.Time `json:"exportedAt,omitempty" yaml:"exportedAt,omitempty"`
}

// GroupDoc is one group with its categories.
type GroupDoc struct {
	Name       string        `json:"name" yaml:"name"`
	Color      string        `json:"color,omitempty" yaml:"color,omitempty"`
	Icon       string        `json:"icon,omitempty" yaml:"icon,omitempty"`
	Order      *float64      `json:"order,omitempty" yaml:"order,omitempty"`
	Categories []CategoryDoc `json:"categories" yaml:"categories"`
}

// CategoryDoc is one category with its tags.
type CategoryDoc struct {
	Name  string   `json:"name" yaml:"name"`
	Color string   `json:"color,omitempty" yaml:"color,omitempty"`
	Icon  string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	Tags  []TagDoc `json:"tags" yaml:"tags"`
}

// TagDoc is one tag.
type TagDoc struct {
	Name      string   `json:"name" yaml:"name"`
	Subtitles []string `json:"subtitles,omitempty" yaml:"subtitles,omitempty"`
	Keyword   string   `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Weight    *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Color     string   `json:"color,omitempty" yaml:"color,omitempty"`
}

// TagCount returns the number of tags in the document.
func (d *Document) TagCount() int {
	n := 0
	for _, g := range d.Groups {
		for _, c := range g.Categories {
			n += len(c.Tags)
		}
	}
	return n
}

// Validate checks the structural rules an importable document must meet.
func (d *Document) Validate() error {
	for gi, g := range d.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return apperr.Formatf("group #%d has no name", gi+1)
		}
		for ci, c := range g.Categories {
			if strings.TrimSpace(c.Name) == "" {
				return apperr.Formatf("group %q: category #%d has no name", g.Name, ci+1)
			}
		}
	}
	return nil
}

// Format selects the serialization of a document file.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension; JSON is the default.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode serializes doc in the given format.
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("transfer: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("transfer: encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("transfer: encode json: %w", err)
		}
		return append(out, '\n'), nil
	}
}
