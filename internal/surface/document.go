package surface

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/rplanner/internal/document"
)

// Dataset keys and the image source prefix written by Render.
const (
	KeyNoteID   = "noteId"
	KeyOrder    = "order"
	ImagePrefix = "images/"
)

// maxDispatchRounds bounds listener chains that keep changing the selection.
const maxDispatchRounds = 16

// Selection is a collapsed caret: an anchor node and an offset inside it.
type Selection struct {
	Anchor *Node
	Offset int
}

// Document holds the rendered notes and the selection.
//
// Selection changes are not delivered synchronously. They are recorded and
// handed to listeners on the next Dispatch, after any caret adjustments the
// surface itself makes in response to content mutations.
type Document struct {
	mu          sync.Mutex
	root        *Node
	notes       map[document.NoteID]*Node
	sel         *Selection
	changed     bool
	adjustments []func()
	listeners   map[int]func()
	nextID      int
}

// New returns an empty document.
func New() *Document {
	return &Document{
		root:      NewElement("body"),
		notes:     map[document.NoteID]*Node{},
		listeners: map[int]func(){},
	}
}

// Root returns the root element.
func (d *Document) Root() *Node { return d.root }

// Render replaces the rendered notes with entries. Every note becomes a
// container element with id note-<id>; text fragments become DIV elements
// holding one text node and images become IMG elements with an
// images/<path> source. Both carry the noteId and order dataset keys.
func (d *Document) Render(entries []document.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.root.clearChildren()
	d.notes = make(map[document.NoteID]*Node, len(entries))
	for _, e := range entries {
		container := NewElement(TagDiv)
		container.SetAttr("id", "note-"+strconv.FormatInt(int64(e.ID), 10))
		for i, f := range e.Note.Content {
			container.AppendChild(renderFragment(e.ID, i, f))
		}
		d.root.AppendChild(container)
		d.notes[e.ID] = container
	}
	if d.sel != nil && !d.root.contains(d.sel.Anchor) {
		d.adjustments = append(d.adjustments, func() { d.setSelection(Selection{Anchor: d.root}) })
	}
}

func renderFragment(id document.NoteID, num int, f document.Fragment) *Node {
	var el *Node
	if f.IsImage() {
		el = NewElement(TagImg)
		el.SetAttr("src", ImagePrefix+f.Value())
	} else {
		el = NewElement(TagDiv)
		el.SetAttr("contenteditable", "true")
		el.AppendChild(NewText(f.Value()))
	}
	el.SetDataset(KeyNoteID, strconv.FormatInt(int64(id), 10))
	el.SetDataset(KeyOrder, strconv.Itoa(num))
	return el
}

// NoteElement returns the container of a rendered note.
func (d *Document) NoteElement(id document.NoteID) (*Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.notes[id]
	return n, ok
}

// FragmentElement returns the element rendered for fragment num of note id.
func (d *Document) FragmentElement(id document.NoteID, num int) (*Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	container, ok := d.notes[id]
	if !ok {
		return nil, false
	}
	want := strconv.Itoa(num)
	for _, c := range container.children {
		if v, ok := c.Dataset(KeyOrder); ok && v == want {
			return c, true
		}
	}
	return nil, false
}

// Children observes the current blocks of a rendered note in order: IMG
// elements as images (source without the images/ prefix) and DIV elements
// as text with their visible text.
func (d *Document) Children(id document.NoteID) ([]document.SurfaceChild, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	container, ok := d.notes[id]
	if !ok {
		return nil, false
	}
	out := make([]document.SurfaceChild, 0, len(container.children))
	for _, c := range container.children {
		switch c.tag {
		case TagImg:
			src, _ := c.Attr("src")
			out = append(out, document.SurfaceChild{Kind: document.ChildImage, Value: strings.TrimPrefix(src, ImagePrefix)})
		case TagDiv:
			out = append(out, document.SurfaceChild{Kind: document.ChildText, Value: c.TextContent()})
		}
	}
	return out, true
}

// SetTextContent replaces the children of el with a single text node (none
// for the empty string). When the selection was inside el, the surface moves
// the caret to the start of el on the next Dispatch.
func (d *Document) SetTextContent(el *Node, s string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hadCaret := d.sel != nil && el.contains(d.sel.Anchor) && d.sel.Anchor != el
	el.clearChildren()
	if s != "" {
		el.AppendChild(NewText(s))
	}
	if hadCaret {
		d.adjustments = append(d.adjustments, func() {
			anchor := el
			if fc := el.FirstChild(); fc != nil {
				anchor = fc
			}
			d.setSelection(Selection{Anchor: anchor})
		})
	}
}

// Selection returns the current selection.
func (d *Document) Selection() (Selection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sel == nil {
		return Selection{}, false
	}
	return *d.sel, true
}

// SetSelection replaces the selection. The offset is clamped to the anchor.
func (d *Document) SetSelection(s Selection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setSelection(s)
}

func (d *Document) setSelection(s Selection) {
	if s.Anchor == nil {
		d.sel = nil
		d.changed = true
		return
	}
	s.Offset = max(0, min(s.Offset, s.Anchor.maxOffset()))
	d.sel = &s
	d.changed = true
}

// ClearSelection removes the selection.
func (d *Document) ClearSelection() {
	d.SetSelection(Selection{})
}

// OnSelectionChange registers fn for selection-change notifications and
// returns a function that deregisters it.
func (d *Document) OnSelectionChange(fn func()) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// Listeners returns the number of registered selection-change listeners.
func (d *Document) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Dispatch applies pending caret adjustments and then notifies listeners of
// the selection change, repeating while listeners keep changing it.
func (d *Document) Dispatch() {
	for range maxDispatchRounds {
		d.mu.Lock()
		for _, adjust := range d.adjustments {
			adjust()
		}
		d.adjustments = nil
		if !d.changed {
			d.mu.Unlock()
			return
		}
		d.changed = false
		ids := make([]int, 0, len(d.listeners))
		for id := range d.listeners {
			ids = append(ids, id)
		}
		d.mu.Unlock()

		sort.Ints(ids)
		for _, id := range ids {
			d.mu.Lock()
			fn, ok := d.listeners[id]
			d.mu.Unlock()
			if ok {
				fn()
			}
		}
	}
}
