package api

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/tagservice"
)

const maxNameLength = 200

var hexColor = validation.Match(regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)).Error("must be a hex color")

// CreateLibraryRequest is the request body for creating a library.
type CreateLibraryRequest struct {
	Name        string `json:"name" example:"Portraits" validate:"required"`
	Description string `json:"description,omitempty" example:"Lighting and lens tags"`
	Activate    bool   `json:"activate,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateLibraryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
	)
}

// CreateGroupRequest is the request body for creating a group. An empty
// library_id targets the active library.
type CreateGroupRequest struct {
	LibraryID string   `json:"library_id,omitempty"`
	Name      string   `json:"name" example:"Style" validate:"required"`
	Color     string   `json:"color,omitempty" example:"#ff8800"`
	Icon      string   `json:"icon,omitempty"`
	Order     *float64 `json:"order,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateGroupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Color, hexColor),
	)
}

// CreateCategoryRequest is the request body for creating a category.
type CreateCategoryRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	Name    string `json:"name" example:"Medium" validate:"required"`
	Color   string `json:"color,omitempty"`
	Icon    string `json:"icon,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateCategoryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.GroupID, validation.Required),
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Color, hexColor),
	)
}

// CreateTagRequest is the request body for creating a tag.
type CreateTagRequest struct {
	CategoryID string   `json:"category_id" validate:"required"`
	Name       string   `json:"name" example:"watercolor" validate:"required"`
	Subtitles  []string `json:"subtitles,omitempty"`
	Keyword    string   `json:"keyword,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
	Color      string   `json:"color,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateTagRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CategoryID, validation.Required),
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Weight, validation.Min(0.0)),
		validation.Field(&r.Color, hexColor),
	)
}

func (r CreateTagRequest) model() models.Tag {
	return models.Tag{
		Name:      r.Name,
		Subtitles: r.Subtitles,
		Keyword:   r.Keyword,
		Weight:    r.Weight,
		Color:     r.Color,
	}
}

// BatchDeleteRequest lists tags to delete.
type BatchDeleteRequest struct {
	IDs []string `json:"ids" validate:"required"`
}

// Validate implements validation.Validatable.
func (r BatchDeleteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required, validation.Each(validation.Required)),
	)
}

// MoveTagsRequest moves tags into another category.
type MoveTagsRequest struct {
	IDs        []string `json:"ids" validate:"required"`
	CategoryID string   `json:"category_id" validate:"required"`
}

// Validate implements validation.Validatable.
func (r MoveTagsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&r.CategoryID, validation.Required),
	)
}

// DocumentRequest names a document in the exchange directory.
type DocumentRequest struct {
	Path string `json:"path" example:"exports/portraits.yaml" validate:"required"`
	Mode string `json:"mode,omitempty" example:"merge"`
}

// Validate implements validation.Validatable.
func (r DocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Mode, validation.In("replace", "merge")),
	)
}

// CountResponse reports how many rows a batch operation touched.
type CountResponse struct {
	Count int64 `json:"count" example:"3" validate:"required"`
}

// LibraryListResponse wraps library listings.
type LibraryListResponse struct {
	Libraries []tagservice.LibrarySummary `json:"libraries" validate:"required"`
}

// WorkingSetResponse is the active library's filtered contents.
type WorkingSetResponse struct {
	Library    models.Library    `json:"library"`
	Groups     []models.Group    `json:"groups" validate:"required"`
	Categories []models.Category `json:"categories" validate:"required"`
	Tags       []models.Tag      `json:"tags" validate:"required"`
	Counts     models.Counts     `json:"counts"`
	State      session.State     `json:"state" example:"ready"`
}
