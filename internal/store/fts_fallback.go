//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/rplanner/internal/document"
	"github.com/starford/rplanner/internal/rowset"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over note_text_elements.content.
	return nil
}

func ftsInsert(_ context.Context, _ *sql.Tx, _ rowset.FragmentRow) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ document.NoteID) error { return nil }

// likeEscaper makes LIKE wildcards in a query match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search performs a LIKE-based search over text fragments (fallback when FTS5
// is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.note_id, t.num, substr(t.content, 1, 200)
		FROM note_text_elements t
		JOIN notes n ON n.id = t.note_id
		WHERE t.content LIKE ? ESCAPE '\'
		ORDER BY t.note_id, t.num
		LIMIT ?
	`, "%"+likeEscaper.Replace(query)+"%", limit)
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
