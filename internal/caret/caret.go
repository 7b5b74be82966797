// Package caret maps between the selection of an editing surface and a
// (note, fragment, offset) position in the document model.
package caret

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/surface"
)

// Position addresses a caret inside a note. Offset counts runes.
type Position struct {
	NoteID      document.NoteID `json:"note_id"`
	FragmentNum int             `json:"fragment_num"`
	Offset      int             `json:"char_offset"`
}

// Surface is the editing surface the bridge reads and writes.
// *surface.Document satisfies it.
type Surface interface {
	Selection() (surface.Selection, bool)
	SetSelection(surface.Selection)
	FragmentElement(id document.NoteID, num int) (*surface.Node, bool)
	OnSelectionChange(fn func()) (cancel func())
}

var _ Surface = (*surface.Document)(nil)

// Current resolves the live selection. A text-node anchor resolves to its
// parent element; that element must carry integer noteId and order dataset
// values.
func Current(s Surface) (Position, error) {
	sel, ok := s.Selection()
	if !ok || sel.Anchor == nil {
		return Position{}, fmt.Errorf("caret: no selection: %w", apperr.ErrSelectionUnavailable)
	}
	el := sel.Anchor
	if el.Type() == surface.TextNode {
		el = el.Parent()
		if el == nil {
			return Position{}, fmt.Errorf("caret: detached text anchor: %w", apperr.ErrSelectionUnavailable)
		}
	}
	id, err := datasetInt(el, surface.KeyNoteID)
	if err != nil {
		return Position{}, err
	}
	num, err := datasetInt(el, surface.KeyOrder)
	if err != nil {
		return Position{}, err
	}
	return Position{NoteID: document.NoteID(id), FragmentNum: int(num), Offset: sel.Offset}, nil
}

func datasetInt(el *surface.Node, key string) (int64, error) {
	raw, ok := el.Dataset(key)
	if !ok {
		return 0, fmt.Errorf("caret: anchor has no %s: %w", key, apperr.ErrSelectionUnavailable)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("caret: parse %s %q: %w", key, raw, apperr.ErrSelectionUnavailable)
	}
	return v, nil
}

// Move places the caret at pos: on the first child of the fragment element,
// or on the element itself when it has no children. It also registers a
// one-shot listener that re-applies the same range on the next
// selection-change notification, so the caret survives adjustments the
// surface makes after a content mutation.
func Move(s Surface, pos Position) error {
	el, ok := s.FragmentElement(pos.NoteID, pos.FragmentNum)
	if !ok {
		return fmt.Errorf("caret: note %d fragment %d: %w", pos.NoteID, pos.FragmentNum, apperr.ErrNotFound)
	}
	anchor := el
	if fc := el.FirstChild(); fc != nil {
		anchor = fc
	}
	target := surface.Selection{Anchor: anchor, Offset: pos.Offset}
	s.SetSelection(target)
	Once(s, func() { s.SetSelection(target) })
	return nil
}

// Once registers fn for the next selection-change notification only.
func Once(s Surface, fn func()) {
	var (
		once   sync.Once
		mu     sync.Mutex
		cancel func()
	)
	mu.Lock()
	defer mu.Unlock()
	cancel = s.OnSelectionChange(func() {
		once.Do(func() {
			mu.Lock()
			c := cancel
			mu.Unlock()
			c()
			fn()
		})
	})
}

// LinePosition returns the line of the text fragment that contains
// pos.Offset and the offset within that line. Each line break consumes one
// newline that belongs to neither line.
func LinePosition(n document.Note, pos Position) (offset, line int, err error) {
	text, err := fragmentText(n, pos.FragmentNum)
	if err != nil {
		return 0, 0, err
	}
	if pos.Offset < 0 {
		return 0, 0, fmt.Errorf("caret: negative offset %d: %w", pos.Offset, apperr.ErrOutOfRange)
	}
	consumed := 0
	for i, l := range strings.Split(text, "\n") {
		length := utf8.RuneCountInString(l)
		if pos.Offset <= consumed+length {
			return pos.Offset - consumed, i, nil
		}
		consumed += length + 1
	}
	return 0, 0, fmt.Errorf("caret: no line at offset %d: %w", pos.Offset, apperr.ErrOutOfRange)
}

// LineOffset is the inverse of LinePosition: it returns the fragment offset
// of column on line, clamping the column to the line's length. The second
// result is false when the line does not exist.
func LineOffset(text string, line, column int) (int, bool) {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return 0, false
	}
	offset := 0
	for _, l := range lines[:line] {
		offset += utf8.RuneCountInString(l) + 1
	}
	column = max(0, min(column, utf8.RuneCountInString(lines[line])))
	return offset + column, true
}

// LineCount returns the number of lines in a text fragment.
func LineCount(text string) int {
	return strings.Count(text, "\n") + 1
}

// TextSibling returns the fragment number of the text fragment delta steps
// away from from, counting text fragments only.
func TextSibling(id document.NoteID, n document.Note, from, delta int) (int, error) {
	texts := make([]int, 0, n.Len())
	at := -1
	for i, f := range n.Content {
		if !f.IsText() {
			continue
		}
		if i == from {
			at = len(texts)
		}
		texts = append(texts, i)
	}
	if at < 0 {
		return 0, fmt.Errorf("caret: note %d has no text fragment %d: %w", id, from, apperr.ErrNotFound)
	}
	j := at + delta
	if j < 0 || j >= len(texts) {
		return 0, fmt.Errorf("caret: note %d: no text fragment %+d from %d: %w", id, delta, from, apperr.ErrNotFound)
	}
	return texts[j], nil
}

func fragmentText(n document.Note, num int) (string, error) {
	f, ok := n.Fragment(num)
	if !ok {
		return "", fmt.Errorf("caret: fragment %d of %d: %w", num, n.Len(), apperr.ErrNotFound)
	}
	if !f.IsText() {
		return "", fmt.Errorf("caret: fragment %d is an image: %w", num, apperr.ErrInvalidOperation)
	}
	return f.Value(), nil
}
