// Package editor drives an editing surface against the notes API.
//
// A Session resolves user input to caret positions, applies it to the
// surface, marks the touched note in the debounce scheduler and flushes the
// serialized surface once the note has been idle long enough. Client
// failures are logged and the operation is abandoned; the next refresh
// reconciles the surface with the server.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/caret"
	"github.com/starford/rplanner/internal/debounce"
	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/surface"
)

// Remote is the subset of the sync client a session uses.
// *client.Client satisfies it.
type Remote interface {
	ListNotes(ctx context.Context) ([]document.Entry, error)
	AddNote(ctx context.Context, n document.Note) (document.NoteID, error)
	ReplaceNote(ctx context.Context, id document.NoteID, n document.Note) error
	DeleteNote(ctx context.Context, id document.NoteID) error
	InsertImage(ctx context.Context, id document.NoteID, fragmentNum, offset int, name string) error
	DeleteFragment(ctx context.Context, id document.NoteID, num int) error
}

// Direction of a vertical caret move.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for abandoned operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithThreshold sets the number of idle ticks before a note is flushed.
func WithThreshold(n int) Option {
	return func(s *Session) { s.sched = debounce.New(n) }
}

// WithClock overrides the time source used to stamp flushed notes.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one editing session over a rendered set of notes.
type Session struct {
	mu     sync.Mutex
	remote Remote
	surf   *surface.Document
	sched  *debounce.Scheduler
	notes  map[document.NoteID]document.Note
	logger *slog.Logger
	now    func() time.Time
}

// New creates a session with an empty surface.
func New(remote Remote, opts ...Option) *Session {
	s := &Session{
		remote: remote,
		surf:   surface.New(),
		sched:  debounce.New(debounce.DefaultThreshold),
		notes:  map[document.NoteID]document.Note{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Surface returns the editing surface.
func (s *Session) Surface() *surface.Document { return s.surf }

// Scheduler returns the session's debounce scheduler.
func (s *Session) Scheduler() *debounce.Scheduler { return s.sched }

// Note returns the last fetched copy of a note.
func (s *Session) Note(id document.NoteID) (document.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return document.Note{}, false
	}
	return n.Clone(), true
}

// Refresh fetches every note and re-renders the surface.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) error {
	entries, err := s.remote.ListNotes(ctx)
	if err != nil {
		return fmt.Errorf("editor: refresh: %w", err)
	}
	clear(s.notes)
	for _, e := range entries {
		s.notes[e.ID] = e.Note
	}
	s.surf.Render(entries)
	return nil
}

// Input replaces the visible text of a text fragment, the way typing into
// it would, and marks the note edited. A caret inside the fragment keeps
// its offset, clamped to the new text.
func (s *Session) Input(id document.NoteID, fragmentNum int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	el, err := s.textElement(id, fragmentNum)
	if err != nil {
		return err
	}
	return s.input(el, id, fragmentNum, text)
}

// AppendLine adds line to the end of a text fragment as its own line.
func (s *Session) AppendLine(id document.NoteID, fragmentNum int, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	el, err := s.textElement(id, fragmentNum)
	if err != nil {
		return err
	}
	text := el.TextContent()
	if text != "" {
		text += "\n"
	}
	return s.input(el, id, fragmentNum, text+line)
}

func (s *Session) input(el *surface.Node, id document.NoteID, fragmentNum int, text string) error {
	pos, caretErr := caret.Current(s.surf)
	s.surf.SetTextContent(el, text)
	s.sched.Edit(id)
	if caretErr == nil && pos.NoteID == id && pos.FragmentNum == fragmentNum {
		pos.Offset = min(pos.Offset, utf8.RuneCountInString(text))
		return caret.Move(s.surf, pos)
	}
	return nil
}

// Tick advances the scheduler and flushes every note that became due.
// Flush failures are logged and abandoned.
func (s *Session) Tick(ctx context.Context) {
	s.flushDue(ctx, s.sched.Tick())
}

func (s *Session) flushDue(ctx context.Context, due []document.NoteID) {
	if len(due) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range due {
		if err := s.flush(ctx, id); err != nil {
			s.logger.Warn("editor: flush abandoned",
				slog.Int64("note_id", int64(id)),
				slog.String("error", err.Error()))
		}
	}
}

// Flush serializes the note's rendered fragments and replaces the stored
// note with them.
func (s *Session) Flush(ctx context.Context, id document.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx, id)
}

func (s *Session) flush(ctx context.Context, id document.NoteID) error {
	children, ok := s.surf.Children(id)
	if !ok {
		return fmt.Errorf("editor: flush note %d: not rendered: %w", id, apperr.ErrNotFound)
	}
	n := document.Note{Content: document.FromSurface(children), Date: document.Date(s.now())}
	if err := s.remote.ReplaceNote(ctx, id, n); err != nil {
		return fmt.Errorf("editor: flush note %d: %w", id, err)
	}
	s.sched.Settle(id)
	s.notes[id] = n
	return nil
}

// flushPending flushes the note first when it has unflushed edits, so a
// structural server-side edit does not discard them.
func (s *Session) flushPending(ctx context.Context, id document.NoteID) error {
	if !s.sched.Pending(id) {
		return nil
	}
	return s.flush(ctx, id)
}

// InsertNewline inserts a line break at the caret and leaves the caret just
// after it.
func (s *Session) InsertNewline() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	pos, err := caret.Current(s.surf)
	if err != nil {
		return fmt.Errorf("editor: newline: %w", err)
	}
	el, err := s.textElement(pos.NoteID, pos.FragmentNum)
	if err != nil {
		return err
	}
	runes := []rune(el.TextContent())
	if pos.Offset < 0 || pos.Offset > len(runes) {
		return fmt.Errorf("editor: newline at %d of %d: %w", pos.Offset, len(runes), apperr.ErrOutOfRange)
	}
	text := string(runes[:pos.Offset]) + "\n" + string(runes[pos.Offset:])

	s.surf.SetTextContent(el, text)
	s.sched.Edit(pos.NoteID)
	pos.Offset++
	return caret.Move(s.surf, pos)
}

// InsertImageAtCaret splits the text fragment under the caret around the
// named image and puts the caret at the start of the text after it.
func (s *Session) InsertImageAtCaret(ctx context.Context, image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	pos, err := caret.Current(s.surf)
	if err != nil {
		return fmt.Errorf("editor: insert image: %w", err)
	}
	if err := s.flushPending(ctx, pos.NoteID); err != nil {
		return err
	}
	if err := s.remote.InsertImage(ctx, pos.NoteID, pos.FragmentNum, pos.Offset, image); err != nil {
		return fmt.Errorf("editor: insert image: %w", err)
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	return caret.Move(s.surf, caret.Position{NoteID: pos.NoteID, FragmentNum: pos.FragmentNum + 2})
}

// Backspace handles a backspace at the start of a text fragment that
// follows an image: the image is deleted and the caret lands where the
// surrounding text fragments were merged. It reports false, leaving the
// keystroke to ordinary text editing, in every other position.
func (s *Session) Backspace(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	pos, err := caret.Current(s.surf)
	if err != nil {
		return false, fmt.Errorf("editor: backspace: %w", err)
	}
	if pos.Offset != 0 || pos.FragmentNum == 0 {
		return false, nil
	}
	children, ok := s.surf.Children(pos.NoteID)
	if !ok || pos.FragmentNum > len(children) || children[pos.FragmentNum-1].Kind != document.ChildImage {
		return false, nil
	}

	target := caret.Position{NoteID: pos.NoteID, FragmentNum: pos.FragmentNum - 1}
	if prev := pos.FragmentNum - 2; prev >= 0 && children[prev].Kind == document.ChildText {
		target = caret.Position{NoteID: pos.NoteID, FragmentNum: prev, Offset: utf8.RuneCountInString(children[prev].Value)}
	}

	if err := s.flushPending(ctx, pos.NoteID); err != nil {
		return true, err
	}
	if err := s.remote.DeleteFragment(ctx, pos.NoteID, pos.FragmentNum-1); err != nil {
		return true, fmt.Errorf("editor: backspace: %w", err)
	}
	if err := s.refresh(ctx); err != nil {
		return true, err
	}
	return true, caret.Move(s.surf, target)
}

// MoveVertical moves the caret one line up or down, keeping its column
// where the target line is long enough. Crossing a fragment boundary skips
// images. It reports false when there is no line in that direction.
func (s *Session) MoveVertical(dir Direction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	pos, err := caret.Current(s.surf)
	if err != nil {
		return false, fmt.Errorf("editor: move: %w", err)
	}
	children, ok := s.surf.Children(pos.NoteID)
	if !ok {
		return false, fmt.Errorf("editor: move: note %d not rendered: %w", pos.NoteID, apperr.ErrNotFound)
	}
	n := document.Note{Content: document.FromSurface(children)}

	column, line, err := caret.LinePosition(n, pos)
	if err != nil {
		return false, fmt.Errorf("editor: move: %w", err)
	}
	text := n.Content[pos.FragmentNum].Value()

	targetNum, targetLine := pos.FragmentNum, line+int(dir)
	if targetLine < 0 || targetLine >= caret.LineCount(text) {
		targetNum, err = caret.TextSibling(pos.NoteID, n, pos.FragmentNum, int(dir))
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("editor: move: %w", err)
		}
		text = n.Content[targetNum].Value()
		targetLine = 0
		if dir == Up {
			targetLine = caret.LineCount(text) - 1
		}
	}
	offset, _ := caret.LineOffset(text, targetLine, column)
	return true, caret.Move(s.surf, caret.Position{NoteID: pos.NoteID, FragmentNum: targetNum, Offset: offset})
}

// AddNote creates a note holding the default text and re-renders.
func (s *Session) AddNote(ctx context.Context) (document.NoteID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	id, err := s.remote.AddNote(ctx, document.New(document.Date(s.now())))
	if err != nil {
		return 0, fmt.Errorf("editor: add note: %w", err)
	}
	return id, s.refresh(ctx)
}

// DeleteNote deletes a note, drops its idle counter and re-renders.
func (s *Session) DeleteNote(ctx context.Context, id document.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.surf.Dispatch()

	if err := s.remote.DeleteNote(ctx, id); err != nil {
		return fmt.Errorf("editor: delete note %d: %w", id, err)
	}
	s.sched.Forget(id)
	return s.refresh(ctx)
}

// Run ticks the scheduler every period and flushes due notes until ctx is
// done.
func (s *Session) Run(ctx context.Context, period time.Duration) {
	s.sched.Run(ctx, period, func(due []document.NoteID) {
		s.flushDue(ctx, due)
	})
}

// Close ends the session. Edits that were not flushed yet are dropped.
func (s *Session) Close() {
	s.sched.Reset()
}

func (s *Session) textElement(id document.NoteID, num int) (*surface.Node, error) {
	el, ok := s.surf.FragmentElement(id, num)
	if !ok {
		return nil, fmt.Errorf("editor: note %d fragment %d: %w", id, num, apperr.ErrNotFound)
	}
	if el.Tag() != surface.TagDiv {
		return nil, fmt.Errorf("editor: note %d fragment %d is an image: %w", id, num, apperr.ErrInvalidOperation)
	}
	return el, nil
}
