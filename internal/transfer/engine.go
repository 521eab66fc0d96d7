package transfer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/store"
)

// Mode selects how an import treats existing library content.
type Mode string

// Import modes.
const (
	ModeReplace Mode = "replace"
	ModeMerge   Mode = "merge"
)

// ParseMode validates s as an import mode. An empty string means merge.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", apperr.Validationf("unknown import mode %q (want replace or merge)", s)
	}
}

// Result summarizes one import.
type Result struct {
	Mode            Mode     `json:"mode"`
	GroupsAdded     int      `json:"groups_added"`
	CategoriesAdded int      `json:"categories_added"`
	TagsAdded       int      `json:"tags_added"`
	TagsSkipped     int      `json:"tags_skipped"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Engine exports libraries to documents and imports documents into libraries.
type Engine struct {
	db     *store.DB
	logger *slog.Logger
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the clock used to stamp exports.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over db.
func NewEngine(db *store.DB, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export reads a library and nests it into a Document.
func (e *Engine) Export(ctx context.Context, libraryID string) (*Document, error) {
	contents, err := e.db.LoadContents(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	tagsByCategory := make(map[string][]TagDoc)
	for _, t := range contents.Tags {
		var subtitles []string
		if len(t.Subtitles) > 0 {
			subtitles = t.Subtitles
		}
		tagsByCategory[t.CategoryID] = append(tagsByCategory[t.CategoryID], TagDoc{
			Name:      t.Name,
			Subtitles: subtitles,
			Keyword:   t.Keyword,
			Weight:    t.Weight,
			Color:     t.Color,
		})
	}
	catsByGroup := make(map[string][]CategoryDoc)
	for _, c := range contents.Categories {
		tags := tagsByCategory[c.ID]
		if tags == nil {
			tags = []TagDoc{}
		}
		catsByGroup[c.GroupID] = append(catsByGroup[c.GroupID], CategoryDoc{
			Name:  c.Name,
			Color: c.Color,
			Icon:  c.Icon,
			Tags:  tags,
		})
	}

	exportedAt := e.now().UTC()
	doc := &Document{
		Schema:  DocumentSchema,
		Version: DocumentVersion,
		Library: LibraryHeader{
			Name:        contents.Library.Name,
			Description: contents.Library.Description,
			ExportedAt:  &exportedAt,
		},
		Groups: make([]GroupDoc, 0, len(contents.Groups)),
	}
	for _, g := range contents.Groups {
		cats := catsByGroup[g.ID]
		if cats == nil {
			cats = []CategoryDoc{}
		}
		order := g.Order
		doc.Groups = append(doc.Groups, GroupDoc{
			Name:       g.Name,
			Color:      g.Color,
			Icon:       g.Icon,
			Order:      &order,
			Categories: cats,
		})
	}
	return doc, nil
}

// importPlan is the full set of rows one import will insert.
type importPlan struct {
	groups     []models.Group
	categories []models.Category
	tags       []models.Tag
	skipped    int
}

func key(parentID, name string) string {
	return parentID + "\x00" + strings.ToLower(strings.TrimSpace(name))
}

// Import writes doc into libraryID in a single transaction.
//
// Replace clears the library first. Merge reuses groups and categories whose
// names match case-insensitively under the same parent; in both modes a tag
// whose name already exists in its category, or earlier in the same
// document, is skipped with a warning.
func (e *Engine) Import(ctx context.Context, libraryID string, doc *Document, mode Mode) (*Result, error) {
	if doc == nil {
		return nil, apperr.Formatf("no document supplied")
	}
	if mode != ModeReplace && mode != ModeMerge {
		return nil, apperr.Validationf("unknown import mode %q", mode)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Mode: mode}
	err := e.db.InTx(ctx, func(r *store.Repos) error {
		if _, err := r.Libraries().GetByID(ctx, libraryID); err != nil {
			return err
		}
		if mode == ModeReplace {
			if err := r.ClearLibraryData(ctx, libraryID); err != nil {
				return err
			}
		}

		plan, err := e.plan(ctx, r, libraryID, doc, res)
		if err != nil {
			return err
		}

		if _, err := r.Groups().BulkAdd(ctx, plan.groups); err != nil {
			return err
		}
		if _, err := r.Categories().BulkAdd(ctx, plan.categories); err != nil {
			return err
		}
		if _, err := r.Tags().BulkAdd(ctx, plan.tags); err != nil {
			return err
		}

		res.GroupsAdded = len(plan.groups)
		res.CategoriesAdded = len(plan.categories)
		res.TagsAdded = len(plan.tags)
		res.TagsSkipped = plan.skipped
		return nil
	})
	if err != nil {
		e.logger.Error("transfer: import failed",
			slog.String("library_id", libraryID),
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		return nil, err
	}

	e.logger.Info("transfer: import completed",
		slog.String("library_id", libraryID),
		slog.String("mode", string(mode)),
		slog.Int("groups_added", res.GroupsAdded),
		slog.Int("categories_added", res.CategoriesAdded),
		slog.Int("tags_added", res.TagsAdded),
		slog.Int("tags_skipped", res.TagsSkipped))
	return res, nil
}

// plan builds every new row in memory, resolving parents against what the
// library already holds.
func (e *Engine) plan(ctx context.Context, r *store.Repos, libraryID string, doc *Document, res *Result) (*importPlan, error) {
	existingGroups, err := r.Groups().GetAll(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	existingCats, err := r.Categories().GetAllByLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	existingTags, err := r.Tags().GetAllByLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	groupIDs := make(map[string]string, len(existingGroups))
	nextOrder := 0.0
	for _, g := range existingGroups {
		groupIDs[key("", g.Name)] = g.ID
		if g.Order >= nextOrder {
			nextOrder = g.Order + 1
		}
	}
	categoryIDs := make(map[string]string, len(existingCats))
	for _, c := range existingCats {
		categoryIDs[key(c.GroupID, c.Name)] = c.ID
	}
	tagKeys := make(map[string]struct{}, len(existingTags))
	for _, t := range existingTags {
		tagKeys[key(t.CategoryID, t.Name)] = struct{}{}
	}

	p := &importPlan{}
	for _, g := range doc.Groups {
		gid, ok := groupIDs[key("", g.Name)]
		if !ok {
			gid = uuid.NewString()
			order := nextOrder
			if g.Order != nil {
				order = *g.Order
			}
			nextOrder = max(nextOrder, order) + 1
			p.groups = append(p.groups, models.Group{
				ID:        gid,
				LibraryID: libraryID,
				Name:      strings.TrimSpace(g.Name),
				Color:     g.Color,
				Icon:      g.Icon,
				Order:     order,
			})
			groupIDs[key("", g.Name)] = gid
		}

		for _, c := range g.Categories {
			cid, ok := categoryIDs[key(gid, c.Name)]
			if !ok {
				cid = uuid.NewString()
				p.categories = append(p.categories, models.Category{
					ID:      cid,
					GroupID: gid,
					Name:    strings.TrimSpace(c.Name),
					Color:   c.Color,
					Icon:    c.Icon,
				})
				categoryIDs[key(gid, c.Name)] = cid
			}

			for _, t := range c.Tags {
				name := strings.TrimSpace(t.Name)
				if name == "" {
					res.Warnings = append(res.Warnings, "tag without a name skipped in "+c.Name)
					continue
				}
				k := key(cid, name)
				if _, dup := tagKeys[k]; dup {
					p.skipped++
					res.Warnings = append(res.Warnings, "duplicate tag "+name+" in "+c.Name+" skipped")
					e.logger.Warn("transfer: duplicate tag skipped",
						slog.String("group", g.Name),
						slog.String("category", c.Name),
						slog.String("tag", name))
					continue
				}
				tagKeys[k] = struct{}{}
				p.tags = append(p.tags, models.Tag{
					ID:         uuid.NewString(),
					CategoryID: cid,
					Name:       name,
					Subtitles:  t.Subtitles,
					Keyword:    t.Keyword,
					Weight:     t.Weight,
					Color:      t.Color,
				})
			}
		}
	}
	return p, nil
}
