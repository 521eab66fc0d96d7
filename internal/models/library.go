// Package models defines the domain types for tagshelf.
package models

import "time"

// Library is the root of the ownership hierarchy.
type Library struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Group is an ordered subdivision of a Library.
type Group struct {
	ID        string  `json:"id"`
	LibraryID string  `json:"library_id"`
	Name      string  `json:"name"`
	Color     string  `json:"color,omitempty"`
	Icon      string  `json:"icon,omitempty"`
	Order     float64 `json:"order"`
}

// Category is a subdivision of a Group that owns Tags.
type Category struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Icon    string `json:"icon,omitempty"`
}

// Tag is the leaf entity carrying the reusable content.
type Tag struct {
	ID         string   `json:"id"`
	CategoryID string   `json:"category_id"`
	Name       string   `json:"name"`
	Subtitles  []string `json:"subtitles,omitempty"`
	Keyword    string   `json:"keyword,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
	Color      string   `json:"color,omitempty"`
}

// LibraryPatch is a partial update for a Library. Nil fields are left unchanged.
type LibraryPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// GroupPatch is a partial update for a Group.
type GroupPatch struct {
	Name  *string  `json:"name,omitempty"`
	Color *string  `json:"color,omitempty"`
	Icon  *string  `json:"icon,omitempty"`
	Order *float64 `json:"order,omitempty"`
}

// CategoryPatch is a partial update for a Category.
type CategoryPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}

// TagPatch is a partial update for a Tag. Setting CategoryID moves the tag;
// ClearWeight removes a stored weight.
type TagPatch struct {
	CategoryID  *string   `json:"category_id,omitempty"`
	Name        *string   `json:"name,omitempty"`
	Subtitles   *[]string `json:"subtitles,omitempty"`
	Keyword     *string   `json:"keyword,omitempty"`
	Weight      *float64  `json:"weight,omitempty"`
	ClearWeight bool      `json:"clear_weight,omitempty"`
	Color       *string   `json:"color,omitempty"`
}

// Counts summarizes the size of one library.
type Counts struct {
	Groups     int `json:"groups"`
	Categories int `json:"categories"`
	Tags       int `json:"tags"`
}

// DocumentFile is a lightweight listing entry for an exchange document.
type DocumentFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
