package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/store"
)

// Search cache sizing.
const (
	searchCacheSize = 10
	searchCacheTTL  = 5 * time.Minute
)

type searchCache = expirable.LRU[string, []models.Tag]

func newSearchCache() *searchCache {
	return expirable.NewLRU[string, []models.Tag](searchCacheSize, nil, searchCacheTTL)
}

// WorkingSet is an immutable in-memory copy of one library's groups,
// categories and tags. A new one is built on every load.
type WorkingSet struct {
	Library    models.Library
	Groups     []models.Group
	Categories []models.Category
	Tags       []models.Tag
	LoadedAt   time.Time

	generation    uint64
	catsByGroup   map[string][]models.Category
	tagsByCat     map[string][]models.Tag
	groupOfCat    map[string]string
	categoryIndex map[string]models.Category
	cache         *searchCache
}

// Filter narrows a working-set query. Empty fields match everything.
type Filter struct {
	GroupID    string
	CategoryID string
	Query      string
}

func newWorkingSet(c *store.Contents, generation uint64, cache *searchCache, now time.Time) *WorkingSet {
	ws := &WorkingSet{
		Library:       c.Library,
		Groups:        c.Groups,
		Categories:    c.Categories,
		Tags:          c.Tags,
		LoadedAt:      now,
		generation:    generation,
		catsByGroup:   make(map[string][]models.Category, len(c.Groups)),
		tagsByCat:     make(map[string][]models.Tag, len(c.Categories)),
		groupOfCat:    make(map[string]string, len(c.Categories)),
		categoryIndex: make(map[string]models.Category, len(c.Categories)),
		cache:         cache,
	}
	for _, cat := range c.Categories {
		ws.catsByGroup[cat.GroupID] = append(ws.catsByGroup[cat.GroupID], cat)
		ws.groupOfCat[cat.ID] = cat.GroupID
		ws.categoryIndex[cat.ID] = cat
	}
	for _, t := range c.Tags {
		ws.tagsByCat[t.CategoryID] = append(ws.tagsByCat[t.CategoryID], t)
	}
	return ws
}

func emptyWorkingSet() *WorkingSet {
	return &WorkingSet{
		Groups:     []models.Group{},
		Categories: []models.Category{},
		Tags:       []models.Tag{},
	}
}

// LibraryID returns the id of the library the set was loaded from, or "".
func (ws *WorkingSet) LibraryID() string {
	return ws.Library.ID
}

// Counts returns the sizes of the set.
func (ws *WorkingSet) Counts() models.Counts {
	return models.Counts{Groups: len(ws.Groups), Categories: len(ws.Categories), Tags: len(ws.Tags)}
}

// Category returns the category with id, if the set holds it.
func (ws *WorkingSet) Category(id string) (models.Category, bool) {
	c, ok := ws.categoryIndex[id]
	return c, ok
}

// CategoriesByGroup returns the categories of groupID.
func (ws *WorkingSet) CategoriesByGroup(groupID string) []models.Category {
	return nonNil(ws.catsByGroup[groupID])
}

// TagsByCategory returns the tags of categoryID.
func (ws *WorkingSet) TagsByCategory(categoryID string) []models.Tag {
	return nonNil(ws.tagsByCat[categoryID])
}

// TagsByGroup returns every tag under groupID.
func (ws *WorkingSet) TagsByGroup(groupID string) []models.Tag {
	out := []models.Tag{}
	for _, c := range ws.catsByGroup[groupID] {
		out = append(out, ws.tagsByCat[c.ID]...)
	}
	return out
}

// Search returns the tags matching every whitespace-separated term of query.
// A term matches a case-insensitive substring of the name, keyword or any
// subtitle. An empty query returns all tags.
func (ws *WorkingSet) Search(query string) []models.Tag {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nonNil(ws.Tags)
	}
	key := strconv.FormatUint(ws.generation, 10) + "\x00" + strings.Join(terms, " ")
	if ws.cache != nil {
		if hit, ok := ws.cache.Get(key); ok {
			return hit
		}
	}

	out := []models.Tag{}
	for _, t := range ws.Tags {
		if matchesAll(t, terms) {
			out = append(out, t)
		}
	}
	if ws.cache != nil {
		ws.cache.Add(key, out)
	}
	return out
}

// Filter applies group, category and query constraints together.
func (ws *WorkingSet) Filter(f Filter) []models.Tag {
	var out []models.Tag
	for _, t := range ws.Search(f.Query) {
		if f.CategoryID != "" && t.CategoryID != f.CategoryID {
			continue
		}
		if f.GroupID != "" && ws.groupOfCat[t.CategoryID] != f.GroupID {
			continue
		}
		out = append(out, t)
	}
	return nonNil(out)
}

func matchesAll(t models.Tag, terms []string) bool {
	haystack := make([]string, 0, 2+len(t.Subtitles))
	haystack = append(haystack, strings.ToLower(t.Name), strings.ToLower(t.Keyword))
	for _, s := range t.Subtitles {
		haystack = append(haystack, strings.ToLower(s))
	}
	for _, term := range terms {
		found := false
		for _, h := range haystack {
			if strings.Contains(h, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
