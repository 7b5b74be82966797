package document

import (
	"fmt"

	"github.com/starford/rplanner/internal/apperr"
)

// InsertImage splits the text fragment at fragmentNum at rune offset and puts
// an image between the halves: Text(before), Image(path), Text(after). Every
// later fragment moves up by two.
func InsertImage(n Note, fragmentNum, offset int, path string) (Note, error) {
	target, ok := n.Fragment(fragmentNum)
	if !ok {
		return n, fmt.Errorf("%w: %w: fragment %d of %d", apperr.ErrInvalidOperation, apperr.ErrOutOfRange, fragmentNum, n.Len())
	}
	if target.IsImage() {
		return n, fmt.Errorf("%w: cannot insert image inside image fragment %d", apperr.ErrInvalidOperation, fragmentNum)
	}
	runes := []rune(target.Value())
	if offset < 0 || offset > len(runes) {
		return n, fmt.Errorf("%w: offset %d in fragment of length %d", apperr.ErrOutOfRange, offset, len(runes))
	}

	content := make([]Fragment, 0, len(n.Content)+2)
	content = append(content, n.Content[:fragmentNum]...)
	content = append(content,
		Text(string(runes[:offset])),
		Image(path),
		Text(string(runes[offset:])),
	)
	content = append(content, n.Content[fragmentNum+1:]...)
	return Note{Content: content, Date: n.Date}, nil
}

// DeleteFragment removes the fragment at fragmentNum. When the fragments that
// end up adjacent across the gap are both text they are joined into one.
func DeleteFragment(n Note, fragmentNum int) (Note, error) {
	if fragmentNum < 0 || fragmentNum >= n.Len() {
		return n, fmt.Errorf("%w: fragment %d of %d", apperr.ErrOutOfRange, fragmentNum, n.Len())
	}

	content := make([]Fragment, 0, n.Len()-1)
	content = append(content, n.Content[:fragmentNum]...)
	content = append(content, n.Content[fragmentNum+1:]...)

	prev, next := fragmentNum-1, fragmentNum
	if prev >= 0 && next < len(content) && content[prev].IsText() && content[next].IsText() {
		content[prev] = Text(content[prev].Value() + content[next].Value())
		content = append(content[:next], content[next+1:]...)
	}
	return Note{Content: content, Date: n.Date}, nil
}

// ReplaceContent replaces the whole fragment sequence. An empty sequence is a
// blanked note.
func ReplaceContent(n Note, content []Fragment) Note {
	c := make([]Fragment, len(content))
	copy(c, content)
	return Note{Content: c, Date: n.Date}
}
