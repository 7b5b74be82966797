package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/noteservice"
)

const maxNoteBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// noteID parses the {id} URL parameter.
func noteID(r *http.Request) (document.NoteID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return document.NoteID(id), true
}

func decodeNote(w http.ResponseWriter, r *http.Request) (document.Note, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBodyBytes)
	var n document.Note
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note body: "+err.Error(), codeBadRequest))
		return document.Note{}, false
	}
	if n.Content == nil {
		n.Content = []document.Fragment{}
	}
	return n, true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List every note with its id
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListNotes(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: entries})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Add a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		document.Note	true	"Note to add"
//	@Success		201		{object}	CreateNoteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	n, ok := decodeNote(w, r)
	if !ok {
		return
	}
	id, err := h.svc.CreateNote(r.Context(), n)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateNoteResponse{NoteID: id})
}

// ReplaceNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace a note's date and content
//	@Tags			notes
//	@Accept			json
//	@Param			id		path		int				true	"Note id"
//	@Param			body	body		document.Note	true	"Replacement note"
//	@Success		204		"Note replaced"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) ReplaceNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id", codeBadRequest))
		return
	}
	n, ok := decodeNote(w, r)
	if !ok {
		return
	}
	if err := h.svc.ReplaceNote(r.Context(), id, n); err != nil {
		writeError(w, "replace note", err, slog.Int64("note_id", int64(id)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note and all of its fragments
//	@Tags			notes
//	@Param			id	path	int	true	"Note id"
//	@Success		204	"Note deleted"
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id", codeBadRequest))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		writeError(w, "delete note", err, slog.Int64("note_id", int64(id)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InsertImage handles POST /api/notes/{id}/images.
//
//	@Summary		Split a text fragment and insert an image
//	@Tags			notes
//	@Accept			json
//	@Param			id		path		int					true	"Note id"
//	@Param			body	body		InsertImageRequest	true	"Insertion point"
//	@Success		204		"Image inserted"
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/images [post]
func (h *Handler) InsertImage(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id", codeBadRequest))
		return
	}
	var req InsertImageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body", codeBadRequest))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), codeBadRequest))
		return
	}
	if err := h.svc.InsertImage(r.Context(), id, req.FragmentNum, req.Index, req.ImageName); err != nil {
		writeError(w, "insert image", err, slog.Int64("note_id", int64(id)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFragment handles DELETE /api/notes/{id}/fragments/{num}.
//
//	@Summary		Remove a fragment, joining the text around it
//	@Tags			notes
//	@Param			id	path	int	true	"Note id"
//	@Param			num	path	int	true	"Fragment number"
//	@Success		204	"Fragment deleted"
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/fragments/{num} [delete]
func (h *Handler) DeleteFragment(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id", codeBadRequest))
		return
	}
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid fragment number", codeBadRequest))
		return
	}
	if err := h.svc.DeleteFragment(r.Context(), id, num); err != nil {
		writeError(w, "delete fragment", err, slog.Int64("note_id", int64(id)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Search text fragments
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := SearchParams{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit", codeBadRequest))
			return
		}
		params.Limit = limit
	}
	if err := params.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), codeBadRequest))
		return
	}
	results, err := h.svc.Search(r.Context(), params.Query, params.Limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", params.Query))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
