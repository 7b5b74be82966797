// Package noteservice coordinates note storage, the image directory and
// change events. Every note edit is a read, a pure document operation and a
// rewrite of the note's rows.
package noteservice

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/checksum"
	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/storage"
	"github.com/starford/rplanner/internal/store"
)

// DefaultMaxImageBytes is the upload limit when none is configured.
const DefaultMaxImageBytes = 2048 << 10

// Publisher receives change notifications. *sse.Broker satisfies it.
type Publisher interface {
	PublishNoteEvent(kind string, id document.NoteID)
	PublishImageEvent(name string)
}

// ImageInfo describes a stored image.
type ImageInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	URL      string `json:"url"`
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends change events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithMaxImageBytes caps the size of uploaded images.
func WithMaxImageBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithClock overrides the time source used to stamp notes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service coordinates note rows and image files.
type Service struct {
	db            store.NoteStore
	images        storage.Provider
	events        Publisher
	maxImageBytes int64
	now           func() time.Time
}

// NewService creates a new note service.
func NewService(db store.NoteStore, images storage.Provider, opts ...Option) *Service {
	s := &Service{
		db:            db,
		images:        images,
		maxImageBytes: DefaultMaxImageBytes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListNotes returns every note ordered by id.
func (s *Service) ListNotes(ctx context.Context) ([]document.Entry, error) {
	entries, err := s.db.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []document.Entry{}
	}
	return entries, nil
}

// GetNote returns a single note.
func (s *Service) GetNote(ctx context.Context, id document.NoteID) (document.Note, error) {
	return s.db.GetNote(ctx, id)
}

// CreateNote stores n as a new note. A missing date is stamped with the
// current time.
func (s *Service) CreateNote(ctx context.Context, n document.Note) (document.NoteID, error) {
	n = n.Clone()
	if n.Date == "" {
		n.Date = document.Date(s.now())
	}
	id, err := s.db.CreateNote(ctx, n)
	if err != nil {
		return 0, err
	}
	s.publishNote("created", id)
	return id, nil
}

// ReplaceNote overwrites the whole note. A missing date is stamped with the
// current time.
func (s *Service) ReplaceNote(ctx context.Context, id document.NoteID, n document.Note) error {
	n = n.Clone()
	if n.Date == "" {
		n.Date = document.Date(s.now())
	}
	if err := s.db.ReplaceNote(ctx, id, n); err != nil {
		return err
	}
	s.publishNote("updated", id)
	return nil
}

// ReplaceText replaces the note's content with a single text fragment.
func (s *Service) ReplaceText(ctx context.Context, id document.NoteID, text string) error {
	return s.edit(ctx, id, func(n document.Note) (document.Note, error) {
		n = document.ReplaceContent(n, []document.Fragment{document.Text(text)})
		n.Date = document.Date(s.now())
		return n, nil
	})
}

// DeleteNote removes a note. Deleting a missing note succeeds.
func (s *Service) DeleteNote(ctx context.Context, id document.NoteID) error {
	if err := s.db.DeleteNote(ctx, id); err != nil {
		return err
	}
	s.publishNote("deleted", id)
	return nil
}

// InsertImage splits text fragment fragmentNum at rune offset and inserts
// the named image between the halves. The image must already be stored.
func (s *Service) InsertImage(ctx context.Context, id document.NoteID, fragmentNum, offset int, name string) error {
	ok, err := s.images.Exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("noteservice: image %q: %w", name, apperr.ErrNotFound)
	}
	return s.edit(ctx, id, func(n document.Note) (document.Note, error) {
		return document.InsertImage(n, fragmentNum, offset, name)
	})
}

// DeleteFragment removes fragment num, joining the text around it.
func (s *Service) DeleteFragment(ctx context.Context, id document.NoteID, num int) error {
	return s.edit(ctx, id, func(n document.Note) (document.Note, error) {
		return document.DeleteFragment(n, num)
	})
}

// ListImages returns the sorted image names.
func (s *Service) ListImages(_ context.Context) ([]string, error) {
	names, err := s.images.List()
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// ImageExists reports whether an image is stored under name.
func (s *Service) ImageExists(name string) (bool, error) {
	return s.images.Exists(name)
}

// UploadImage stores data under name, replacing any previous image.
func (s *Service) UploadImage(_ context.Context, name string, data []byte) (ImageInfo, error) {
	if int64(len(data)) > s.maxImageBytes {
		return ImageInfo{}, fmt.Errorf("noteservice: image is %d bytes, limit %d: %w",
			len(data), s.maxImageBytes, apperr.ErrInvalidOperation)
	}
	if !s.images.Matches(name) {
		return ImageInfo{}, fmt.Errorf("noteservice: %q is not an accepted image name: %w",
			name, apperr.ErrInvalidOperation)
	}
	if err := s.images.Write(name, data); err != nil {
		return ImageInfo{}, err
	}
	if s.events != nil {
		s.events.PublishImageEvent(name)
	}
	return ImageInfo{
		Name:     name,
		Size:     int64(len(data)),
		Checksum: checksum.Sum(data),
		URL:      "/images/" + name,
	}, nil
}

// ImagePath resolves a stored image to its file path.
func (s *Service) ImagePath(_ context.Context, name string) (string, error) {
	ok, err := s.images.Exists(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("noteservice: image %q: %w", name, apperr.ErrNotFound)
	}
	return s.images.Path(name)
}

// Search finds text fragments matching query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	results, err := s.db.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	return results, nil
}

func (s *Service) edit(ctx context.Context, id document.NoteID, fn func(document.Note) (document.Note, error)) error {
	if err := s.db.Update(ctx, id, fn); err != nil {
		return err
	}
	s.publishNote("updated", id)
	return nil
}

func (s *Service) publishNote(kind string, id document.NoteID) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, id)
	}
}
