//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/rowset"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS note_text_fts USING fts5(
			note_id UNINDEXED,
			num UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(ctx context.Context, tx *sql.Tx, r rowset.FragmentRow) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO note_text_fts (note_id, num, content) VALUES (?, ?, ?)`,
		r.NoteID, r.Num, r.Value)
	if err != nil {
		return fmt.Errorf("store: insert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id document.NoteID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_text_fts WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete fts: %w", err)
	}
	return nil
}

// phraseQuery quotes each whitespace-separated term of a user query as an
// FTS5 string, so operators and stray quotes are matched as text. The terms
// are still ANDed together.
func phraseQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// Search performs an FTS5 full-text search over text fragments.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	match := phraseQuery(query)
	if match == "" {
		return nil, nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id,
		       num,
		       snippet(note_text_fts, 2, '<b>', '</b>', '...', 32)
		FROM note_text_fts
		WHERE note_text_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NoteID, &r.FragmentNum, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
