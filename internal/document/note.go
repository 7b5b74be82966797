package document

import (
	"strings"
	"time"
)

// NoteID is the stable identity of a note. It is assigned on creation and
// never reused.
type NoteID int64

// DefaultText is the content of the single text fragment a new note starts with.
const DefaultText = "New note..."

// Note is an ordered fragment sequence plus its last-modified date. A
// fragment's position in Content is its fragment number.
type Note struct {
	Content []Fragment `json:"content"`
	Date    string     `json:"date"`
}

// Entry pairs a note with its identity, as returned by list operations.
type Entry struct {
	ID   NoteID `json:"id"`
	Note Note   `json:"note"`
}

// Date formats t the way note dates are stamped.
func Date(t time.Time) string {
	return t.Format(time.RFC1123Z)
}

// New returns a note holding one default text fragment.
func New(date string) Note {
	return Note{Content: []Fragment{Text(DefaultText)}, Date: date}
}

// Clone returns a copy of n that shares no backing array with it.
func (n Note) Clone() Note {
	content := make([]Fragment, len(n.Content))
	copy(content, n.Content)
	return Note{Content: content, Date: n.Date}
}

// Len returns the number of fragments.
func (n Note) Len() int { return len(n.Content) }

// Fragment returns the fragment at num.
func (n Note) Fragment(num int) (Fragment, bool) {
	if num < 0 || num >= len(n.Content) {
		return Fragment{}, false
	}
	return n.Content[num], true
}

// PlainText renders the note as text, with images as Markdown image links.
func (n Note) PlainText() string {
	var b strings.Builder
	for _, f := range n.Content {
		switch f.Kind() {
		case KindText:
			b.WriteString(f.Value())
		case KindImage:
			b.WriteString("![](/images/")
			b.WriteString(f.Value())
			b.WriteString(")")
		}
	}
	return b.String()
}
