// Package rowset converts between notes and the flat per-kind storage rows
// they are persisted as. Reconstruct is the exact inverse of Flatten.
package rowset

import (
	"fmt"
	"sort"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/document"
)

// HeaderRow is the per-note (id, date) row.
type HeaderRow struct {
	NoteID document.NoteID
	Date   string
}

// FragmentRow is one text or image row. Value holds the text or the image path
// depending on which collection the row belongs to; Num is the fragment's
// position in its note.
type FragmentRow struct {
	NoteID document.NoteID
	Value  string
	Num    int64
}

type numbered struct {
	fragment document.Fragment
	num      int64
}

// Reconstruct rebuilds every note from its header and fragment rows. Notes
// are returned in ascending id order. A note whose header has no fragment rows
// comes back with empty content; fragment rows without a header are dropped.
func Reconstruct(headers []HeaderRow, texts, images []FragmentRow) []document.Entry {
	dates := make(map[document.NoteID]string, len(headers))
	for _, h := range headers {
		dates[h.NoteID] = h.Date
	}

	buckets := make(map[document.NoteID][]numbered, len(dates))
	for _, r := range texts {
		buckets[r.NoteID] = append(buckets[r.NoteID], numbered{document.Text(r.Value), r.Num})
	}
	for _, r := range images {
		buckets[r.NoteID] = append(buckets[r.NoteID], numbered{document.Image(r.Value), r.Num})
	}

	ids := make([]document.NoteID, 0, len(dates))
	for id := range dates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]document.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, document.Entry{
			ID:   id,
			Note: document.Note{Content: project(buckets[id]), Date: dates[id]},
		})
	}
	return out
}

// ReconstructOne rebuilds the single note id, ignoring rows for other notes.
func ReconstructOne(id document.NoteID, headers []HeaderRow, texts, images []FragmentRow) (document.Note, error) {
	var hs []HeaderRow
	for _, h := range headers {
		if h.NoteID == id {
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		return document.Note{}, fmt.Errorf("rowset: note %d: %w", id, apperr.ErrNotFound)
	}
	entries := Reconstruct(hs, filter(id, texts), filter(id, images))
	return entries[0].Note, nil
}

// Flatten turns a note into its storage rows, numbering fragments by position.
func Flatten(id document.NoteID, n document.Note) (texts, images []FragmentRow) {
	for i, f := range n.Content {
		row := FragmentRow{NoteID: id, Value: f.Value(), Num: int64(i)}
		switch f.Kind() {
		case document.KindText:
			texts = append(texts, row)
		case document.KindImage:
			images = append(images, row)
		}
	}
	return texts, images
}

// project orders a bucket by num and drops the numbers. Storage row order is
// not trusted, so the sort is stable on num alone.
func project(bucket []numbered) []document.Fragment {
	sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].num < bucket[j].num })
	content := make([]document.Fragment, len(bucket))
	for i, b := range bucket {
		content[i] = b.fragment
	}
	return content
}

func filter(id document.NoteID, rows []FragmentRow) []FragmentRow {
	var out []FragmentRow
	for _, r := range rows {
		if r.NoteID == id {
			out = append(out, r)
		}
	}
	return out
}
