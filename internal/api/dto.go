package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/noteservice"
	"github.com/starford/rplanner/internal/store"
)

// NoteListResponse wraps every note with its id.
type NoteListResponse struct {
	Notes []document.Entry `json:"notes" validate:"required"`
}

// CreateNoteResponse is returned after a note is added.
type CreateNoteResponse struct {
	NoteID document.NoteID `json:"note_id" example:"1" validate:"required"`
}

// InsertImageRequest is the request body for inserting an image into a note.
type InsertImageRequest struct {
	FragmentNum int    `json:"fragment_num" example:"0"`
	Index       int    `json:"index" example:"5"`
	ImageName   string `json:"image_name" example:"cat.png" validate:"required"`
}

// Validate validates the request.
func (r InsertImageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FragmentNum, validation.Min(0)),
		validation.Field(&r.Index, validation.Min(0)),
		validation.Field(&r.ImageName, validation.Required),
	)
}

// SearchParams holds the search query parameters.
type SearchParams struct {
	Query string
	Limit int
}

// Validate validates the search parameters.
func (p SearchParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Query, validation.Required.Error("query parameter 'q' is required")),
		validation.Field(&p.Limit, validation.Min(0), validation.Max(100)),
	)
}

// ImageListResponse wraps the image names.
type ImageListResponse struct {
	Images []string `json:"images" validate:"required"`
}

// ImageUploadResponse is returned after a successful image upload.
type ImageUploadResponse = noteservice.ImageInfo

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}
