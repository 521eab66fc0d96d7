// Package catalog reads the list of bundled starter documents and community
// libraries that can be installed into the store.
package catalog

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/storage"
	"github.com/starford/tagshelf/internal/transfer"
)

// Entry is one installable document.
type Entry struct {
	Name        string `yaml:"name" json:"name"`
	Path        string `yaml:"path" json:"path"`
	Description string `yaml:"description" json:"description,omitempty"`
	Starter     bool   `yaml:"starter" json:"starter"`
	Community   bool   `yaml:"community" json:"community"`
}

// Validate implements validation.Validatable.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required),
		validation.Field(&e.Path, validation.Required, validation.By(documentPath)),
	)
}

func documentPath(v any) error {
	p, _ := v.(string)
	if !storage.IsDocument(p) {
		return fmt.Errorf("must end in .json, .yaml or .yml")
	}
	return nil
}

// Catalog is the parsed catalog file. Entry paths are relative to the
// provider it was loaded from.
type Catalog struct {
	Entries []Entry `yaml:"libraries" json:"libraries"`

	files storage.Provider
}

// Validate implements validation.Validatable.
func (c Catalog) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Entries),
	); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Entries))
	starters := 0
	for _, e := range c.Entries {
		key := strings.ToLower(e.Name)
		if seen[key] {
			return fmt.Errorf("duplicate entry %q", e.Name)
		}
		seen[key] = true
		if e.Starter {
			starters++
		}
	}
	if starters > 1 {
		return fmt.Errorf("%d entries marked as starter, want at most one", starters)
	}
	return nil
}

// Load reads and validates the catalog file at path within files. The file
// may be YAML or JSON.
func Load(files storage.Provider, path string) (*Catalog, error) {
	data, err := files.Read(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	c.files = files
	return &c, nil
}

// Empty returns a catalog without entries.
func Empty() *Catalog {
	return &Catalog{Entries: []Entry{}}
}

// Starter returns the entry marked as starter.
func (c *Catalog) Starter() (Entry, bool) {
	for _, e := range c.Entries {
		if e.Starter {
			return e, true
		}
	}
	return Entry{}, false
}

// Community returns the entries marked as community libraries.
func (c *Catalog) Community() []Entry {
	out := []Entry{}
	for _, e := range c.Entries {
		if e.Community {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry called name, compared case-insensitively.
func (c *Catalog) Find(name string) (Entry, error) {
	for _, e := range c.Entries {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			return e, nil
		}
	}
	return Entry{}, apperr.NotFoundf("catalog entry %q not found", name)
}

// Document reads and parses the document of e.
func (c *Catalog) Document(e Entry) (*transfer.Document, error) {
	if c.files == nil {
		return nil, apperr.NotFoundf("catalog has no document source")
	}
	data, err := c.files.Read(e.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	doc, _, err := transfer.Parse(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// StarterDocument returns the starter document, or nil when the catalog has
// no starter. Its signature matches session.StarterFunc.
func (c *Catalog) StarterDocument(context.Context) (*transfer.Document, error) {
	e, ok := c.Starter()
	if !ok {
		return nil, nil
	}
	return c.Document(e)
}
