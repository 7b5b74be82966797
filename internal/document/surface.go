package document

// ChildKind classifies one child block observed on the editing surface.
type ChildKind uint8

const (
	ChildText ChildKind = iota + 1
	ChildImage
)

// SurfaceChild is one externally observed block of a rendered note: an image
// with its source path, or a text block with its visible text.
type SurfaceChild struct {
	Kind  ChildKind
	Value string
}

// FromSurface rebuilds a fragment sequence from the ordered children of a
// rendered note. Children of unknown kind are skipped.
func FromSurface(children []SurfaceChild) []Fragment {
	content := make([]Fragment, 0, len(children))
	for _, c := range children {
		switch c.Kind {
		case ChildImage:
			content = append(content, Image(c.Value))
		case ChildText:
			content = append(content, Text(c.Value))
		}
	}
	return content
}
