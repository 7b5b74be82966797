package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rplanner/internal/noteservice"
)

// ImageHandler serves, lists and accepts image files.
type ImageHandler struct {
	svc      *noteservice.Service
	maxBytes int64
}

// NewImageHandler creates an image handler. Uploads larger than maxBytes are
// rejected before they reach the service.
func NewImageHandler(svc *noteservice.Service, maxBytes int64) *ImageHandler {
	if maxBytes <= 0 {
		maxBytes = noteservice.DefaultMaxImageBytes
	}
	return &ImageHandler{svc: svc, maxBytes: maxBytes}
}

// ServeFile handles GET /images/{name}.
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.svc.ImagePath(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, "serve image", err)
		return
	}
	http.ServeFile(w, r, abs)
}

// List handles GET /api/images.
//
//	@Summary		List image names
//	@Tags			images
//	@Produce		json
//	@Success		200	{object}	ImageListResponse
//	@Security		BearerAuth
//	@Router			/images [get]
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.ListImages(r.Context())
	if err != nil {
		writeError(w, "list images", err)
		return
	}
	writeJSON(w, http.StatusOK, ImageListResponse{Images: names})
}

// Upload handles POST /api/images/{name} with the raw image bytes as body.
//
//	@Summary		Upload an image
//	@Tags			images
//	@Accept			octet-stream
//	@Produce		json
//	@Param			name	path		string	true	"Image file name"
//	@Success		201		{object}	ImageUploadResponse
//	@Failure		413		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{name} [post]
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("image too large", codeTooLarge))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body", codeBadRequest))
		return
	}
	info, err := h.svc.UploadImage(r.Context(), name, data)
	if err != nil {
		writeError(w, "upload image", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}
