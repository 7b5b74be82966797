package store

import (
	"context"

	"github.com/starford/rplanner/internal/document"
)

// NoteStore defines the note persistence operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type NoteStore interface {
	ListNotes(ctx context.Context) ([]document.Entry, error)
	GetNote(ctx context.Context, id document.NoteID) (document.Note, error)
	CreateNote(ctx context.Context, n document.Note) (document.NoteID, error)
	ReplaceNote(ctx context.Context, id document.NoteID, n document.Note) error
	Update(ctx context.Context, id document.NoteID, edit func(document.Note) (document.Note, error)) error
	DeleteNote(ctx context.Context, id document.NoteID) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies NoteStore at compile time.
var _ NoteStore = (*DB)(nil)
