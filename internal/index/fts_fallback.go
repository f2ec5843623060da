//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the attributes table.
	return nil
}

func ftsInsert(_ *sql.Tx, _, _, _, _ string) error { return nil }

func ftsDeleteModel(_ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search over attribute names and categories
// (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT model_id, attr_id, name, category, '[' || category || '][' || name || ']'
		FROM attributes
		WHERE name LIKE ? OR category LIKE ?
		ORDER BY name, model_id
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ModelID, &r.AttrID, &r.Name, &r.Category, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
