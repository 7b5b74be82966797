package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/rplanner/internal/apperr"
	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/rowset"
)

// SearchResult represents one matching text fragment.
type SearchResult struct {
	NoteID      document.NoteID `json:"note_id"`
	FragmentNum int64           `json:"fragment_num"`
	Snippet     string          `json:"snippet"`
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListNotes reconstructs every note from its rows.
func (db *DB) ListNotes(ctx context.Context) ([]document.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	headers, err := readHeaders(ctx, db.conn, `SELECT id, date FROM notes`)
	if err != nil {
		return nil, err
	}
	texts, err := readFragments(ctx, db.conn, `SELECT note_id, content, num FROM note_text_elements`)
	if err != nil {
		return nil, err
	}
	images, err := readFragments(ctx, db.conn, `SELECT note_id, path, num FROM note_image_elements`)
	if err != nil {
		return nil, err
	}
	return rowset.Reconstruct(headers, texts, images), nil
}

// GetNote reconstructs a single note. It returns apperr.ErrNotFound when the
// note has no header row.
func (db *DB) GetNote(ctx context.Context, id document.NoteID) (document.Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return getNote(ctx, db.conn, id)
}

// CreateNote inserts a header row and the note's fragment rows.
func (db *DB) CreateNote(ctx context.Context, n document.Note) (document.NoteID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `INSERT INTO notes (date) VALUES (?)`, n.Date)
	if err != nil {
		return 0, fmt.Errorf("store: insert note: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}
	id := document.NoteID(rowID)
	if err := insertContent(ctx, tx, id, n); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return id, nil
}

// ReplaceNote overwrites the date and every fragment row of an existing note.
func (db *DB) ReplaceNote(ctx context.Context, id document.NoteID, n document.Note) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE notes SET date = ? WHERE id = ?`, n.Date, id)
	if err != nil {
		return fmt.Errorf("store: update note date: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	} else if affected == 0 {
		return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err := deleteContent(ctx, tx, id); err != nil {
		return err
	}
	if err := insertContent(ctx, tx, id, n); err != nil {
		return err
	}
	return tx.Commit()
}

// Update reads the whole note, applies edit, deletes all of the note's
// fragment rows and re-inserts the edited note flattened. A failing edit or
// write leaves the stored note untouched.
func (db *DB) Update(ctx context.Context, id document.NoteID, edit func(document.Note) (document.Note, error)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := getNote(ctx, tx, id)
	if err != nil {
		return err
	}
	edited, err := edit(current)
	if err != nil {
		return err
	}
	if err := deleteContent(ctx, tx, id); err != nil {
		return err
	}
	if err := insertContent(ctx, tx, id, edited); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteNote removes a note's header and all of its fragment rows. Deleting a
// missing note is not an error.
func (db *DB) DeleteNote(ctx context.Context, id document.NoteID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteContent(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	return tx.Commit()
}

func getNote(ctx context.Context, q querier, id document.NoteID) (document.Note, error) {
	headers, err := readHeaders(ctx, q, `SELECT id, date FROM notes WHERE id = ?`, id)
	if err != nil {
		return document.Note{}, err
	}
	texts, err := readFragments(ctx, q, `SELECT note_id, content, num FROM note_text_elements WHERE note_id = ?`, id)
	if err != nil {
		return document.Note{}, err
	}
	images, err := readFragments(ctx, q, `SELECT note_id, path, num FROM note_image_elements WHERE note_id = ?`, id)
	if err != nil {
		return document.Note{}, err
	}
	return rowset.ReconstructOne(id, headers, texts, images)
}

func insertContent(ctx context.Context, tx *sql.Tx, id document.NoteID, n document.Note) error {
	texts, images := rowset.Flatten(id, n)
	if len(texts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO note_text_elements (note_id, content, num) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare text insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range texts {
			if _, err := stmt.ExecContext(ctx, r.NoteID, r.Value, r.Num); err != nil {
				return fmt.Errorf("store: insert text fragment: %w", err)
			}
			if err := ftsInsert(ctx, tx, r); err != nil {
				return err
			}
		}
	}
	if len(images) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO note_image_elements (note_id, path, num) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare image insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range images {
			if _, err := stmt.ExecContext(ctx, r.NoteID, r.Value, r.Num); err != nil {
				return fmt.Errorf("store: insert image fragment: %w", err)
			}
		}
	}
	return nil
}

func deleteContent(ctx context.Context, tx *sql.Tx, id document.NoteID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_text_elements WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete text fragments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_image_elements WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete image fragments: %w", err)
	}
	return ftsDelete(ctx, tx, id)
}

func readHeaders(ctx context.Context, q querier, query string, args ...any) ([]rowset.HeaderRow, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query headers: %w", err)
	}
	defer rows.Close()

	var out []rowset.HeaderRow
	for rows.Next() {
		var h rowset.HeaderRow
		if err := rows.Scan(&h.NoteID, &h.Date); err != nil {
			return nil, fmt.Errorf("store: scan header: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func readFragments(ctx context.Context, q querier, query string, args ...any) ([]rowset.FragmentRow, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query fragments: %w", err)
	}
	defer rows.Close()

	var out []rowset.FragmentRow
	for rows.Next() {
		var r rowset.FragmentRow
		if err := rows.Scan(&r.NoteID, &r.Value, &r.Num); err != nil {
			return nil, fmt.Errorf("store: scan fragment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
