// Package document defines the ordered-fragment note representation and the
// structural edits (split on image insert, merge on delete) applied to it.
package document

import (
	"encoding/json"
	"fmt"
)

// Kind tags a Fragment as text or image.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindImage
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindImage:
		return "Image"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Fragment is one atomic unit of note content: a text run or an image path.
// Fragments are values; edits replace them wholesale.
type Fragment struct {
	kind  Kind
	value string
}

// Text returns a text fragment.
func Text(s string) Fragment { return Fragment{kind: KindText, value: s} }

// Image returns an image fragment referencing path inside the image directory.
func Image(path string) Fragment { return Fragment{kind: KindImage, value: path} }

// Kind reports the fragment kind.
func (f Fragment) Kind() Kind { return f.kind }

// IsText reports whether f is a text fragment.
func (f Fragment) IsText() bool { return f.kind == KindText }

// IsImage reports whether f is an image fragment.
func (f Fragment) IsImage() bool { return f.kind == KindImage }

// Value returns the text of a text fragment or the path of an image fragment.
func (f Fragment) Value() string { return f.value }

// String implements fmt.Stringer.
func (f Fragment) String() string {
	return fmt.Sprintf("%s(%q)", f.kind, f.value)
}

// MarshalJSON encodes the fragment externally tagged: {"Text":"..."} or {"Image":"..."}.
func (f Fragment) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case KindText:
		return json.Marshal(map[string]string{"Text": f.value})
	case KindImage:
		return json.Marshal(map[string]string{"Image": f.value})
	default:
		return nil, fmt.Errorf("document: marshal fragment: unknown kind %d", f.kind)
	}
}

// UnmarshalJSON decodes the externally tagged form produced by MarshalJSON.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("document: unmarshal fragment: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("document: unmarshal fragment: want exactly one tag, got %d", len(raw))
	}
	if v, ok := raw["Text"]; ok {
		*f = Text(v)
		return nil
	}
	if v, ok := raw["Image"]; ok {
		*f = Image(v)
		return nil
	}
	return fmt.Errorf("document: unmarshal fragment: unknown tag")
}
