package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/store"
)

// Raw shapes accepted on input. Pointer slices distinguish a missing array
// from an empty one.
type rawTag struct {
	Name         string   `json:"name"`
	Subtitles    []string `json:"subtitles"`
	Keyword      string   `json:"keyword"`
	Weight       *float64 `json:"weight"`
	Color        string   `json:"color"`
	CategoryName string   `json:"categoryName"`
}

type rawCategory struct {
	Name  string    `json:"name"`
	Color string    `json:"color"`
	Icon  string    `json:"icon"`
	Tags  *[]rawTag `json:"tags"`
}

type rawGroup struct {
	Name       string         `json:"name"`
	Color      string         `json:"color"`
	Icon       string         `json:"icon"`
	Order      *float64       `json:"order"`
	Categories *[]rawCategory `json:"categories"`
}

type rawHeader struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ExportedAt  *time.Time `json:"exportedAt"`
}

type rawDocument struct {
	Schema     string         `json:"$schema"`
	Library    *rawHeader     `json:"library"`
	Metadata   *rawHeader     `json:"metadata"`
	Groups     *[]rawGroup    `json:"groups"`
	Categories *[]rawCategory `json:"categories"`
	Tags       *[]rawTag      `json:"tags"`
}

// shape is one recognized document layout.
type shape struct {
	name    string
	matches func(*rawDocument) bool
	convert func(*rawDocument, *warnings) (*Document, error)
}

// shapes are tried in order; the first match wins.
var shapes = []shape{
	{
		name:    "nested",
		matches: func(d *rawDocument) bool { return d.Groups != nil },
		convert: convertNested,
	},
	{
		name:    "flat",
		matches: func(d *rawDocument) bool { return d.Categories != nil && d.Tags != nil },
		convert: convertFlat,
	},
	{
		name:    "library-scoped",
		matches: func(d *rawDocument) bool { return d.Categories != nil },
		convert: convertLibraryScoped,
	},
}

type warnings []string

func (w *warnings) addf(format string, args ...any) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

// Parse decodes a JSON or YAML document in any recognized layout and returns
// it in the current nested shape, plus warnings for content that was dropped.
func Parse(data []byte) (*Document, []string, error) {
	raw, err := toJSON(data)
	if err != nil {
		return nil, nil, err
	}

	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, apperr.Formatf("unexpected document structure: %v", err)
	}

	for _, s := range shapes {
		if !s.matches(&doc) {
			continue
		}
		var w warnings
		out, err := s.convert(&doc, &w)
		if err != nil {
			return nil, nil, err
		}
		return out, []string(w), nil
	}
	return nil, nil, apperr.Formatf("unrecognized document: expected a groups or categories array")
}

// toJSON normalizes input to JSON bytes; YAML input is decoded generically first.
func toJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, apperr.Formatf("empty document")
	}
	if json.Valid(trimmed) {
		if trimmed[0] != '{' {
			return nil, apperr.Formatf("document must be an object")
		}
		return trimmed, nil
	}

	var generic any
	if err := yaml.Unmarshal(trimmed, &generic); err != nil {
		return nil, apperr.Formatf("document is neither JSON nor YAML: %v", err)
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, apperr.Formatf("document must be an object")
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, apperr.Formatf("unsupported YAML content: %v", err)
	}
	return out, nil
}

func header(primary, fallback *rawHeader) LibraryHeader {
	h := primary
	if h == nil {
		h = fallback
	}
	if h == nil {
		return LibraryHeader{}
	}
	return LibraryHeader{
		Name:        strings.TrimSpace(h.Name),
		Description: h.Description,
		ExportedAt:  h.ExportedAt,
	}
}

func convertTags(in []rawTag, where string, w *warnings) []TagDoc {
	out := make([]TagDoc, 0, len(in))
	for i, t := range in {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			w.addf("%s: tag #%d has no name, skipped", where, i+1)
			continue
		}
		out = append(out, TagDoc{
			Name:      name,
			Subtitles: t.Subtitles,
			Keyword:   t.Keyword,
			Weight:    t.Weight,
			Color:     t.Color,
		})
	}
	return out
}

func convertNested(d *rawDocument, w *warnings) (*Document, error) {
	doc := &Document{
		Schema:  DocumentSchema,
		Version: DocumentVersion,
		Library: header(d.Library, d.Metadata),
		Groups:  make([]GroupDoc, 0, len(*d.Groups)),
	}
	for gi, g := range *d.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, apperr.Formatf("group #%d has no name", gi+1)
		}
		if g.Categories == nil {
			return nil, apperr.Formatf("group %q is missing its categories array", name)
		}
		gd := GroupDoc{
			Name:       name,
			Color:      g.Color,
			Icon:       g.Icon,
			Order:      g.Order,
			Categories: make([]CategoryDoc, 0, len(*g.Categories)),
		}
		for ci, c := range *g.Categories {
			cname := strings.TrimSpace(c.Name)
			if cname == "" {
				return nil, apperr.Formatf("group %q: category #%d has no name", name, ci+1)
			}
			if c.Tags == nil {
				return nil, apperr.Formatf("category %q is missing its tags array", cname)
			}
			gd.Categories = append(gd.Categories, CategoryDoc{
				Name:  cname,
				Color: c.Color,
				Icon:  c.Icon,
				Tags:  convertTags(*c.Tags, name+"/"+cname, w),
			})
		}
		doc.Groups = append(doc.Groups, gd)
	}
	return doc, nil
}

// convertFlat reads the oldest layout: top-level categories, and tags that
// point at their category by name.
func convertFlat(d *rawDocument, w *warnings) (*Document, error) {
	group := GroupDoc{Name: store.DefaultGroupName, Categories: []CategoryDoc{}}
	index := make(map[string]int)
	for ci, c := range *d.Categories {
		cname := strings.TrimSpace(c.Name)
		if cname == "" {
			return nil, apperr.Formatf("category #%d has no name", ci+1)
		}
		key := strings.ToLower(cname)
		if _, dup := index[key]; dup {
			w.addf("category %q listed twice, merged", cname)
			continue
		}
		index[key] = len(group.Categories)
		group.Categories = append(group.Categories, CategoryDoc{Name: cname, Color: c.Color, Icon: c.Icon, Tags: []TagDoc{}})
	}

	for ti, t := range *d.Tags {
		pos, ok := index[strings.ToLower(strings.TrimSpace(t.CategoryName))]
		if !ok {
			w.addf("tag #%d (%q) references unknown category %q, skipped", ti+1, t.Name, t.CategoryName)
			continue
		}
		cat := &group.Categories[pos]
		cat.Tags = append(cat.Tags, convertTags([]rawTag{t}, cat.Name, w)...)
	}

	return &Document{
		Schema:  DocumentSchema,
		Version: DocumentVersion,
		Library: header(d.Metadata, d.Library),
		Groups:  []GroupDoc{group},
	}, nil
}

// convertLibraryScoped reads the layout where categories hang directly off
// the library, each with nested tags.
func convertLibraryScoped(d *rawDocument, w *warnings) (*Document, error) {
	group := GroupDoc{Name: store.DefaultGroupName, Categories: []CategoryDoc{}}
	for ci, c := range *d.Categories {
		cname := strings.TrimSpace(c.Name)
		if cname == "" {
			return nil, apperr.Formatf("category #%d has no name", ci+1)
		}
		if c.Tags == nil {
			return nil, apperr.Formatf("category %q is missing its tags array", cname)
		}
		group.Categories = append(group.Categories, CategoryDoc{
			Name:  cname,
			Color: c.Color,
			Icon:  c.Icon,
			Tags:  convertTags(*c.Tags, cname, w),
		})
	}
	return &Document{
		Schema:  DocumentSchema,
		Version: DocumentVersion,
		Library: header(d.Library, d.Metadata),
		Groups:  []GroupDoc{group},
	}, nil
}
