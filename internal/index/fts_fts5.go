//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS attributes_fts USING fts5(
			model_id UNINDEXED,
			attr_id UNINDEXED,
			name,
			category,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, modelID, attrID, name, category string) error {
	_, err := tx.Exec(`INSERT INTO attributes_fts (model_id, attr_id, name, category) VALUES (?, ?, ?, ?)`,
		modelID, attrID, name, category)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDeleteModel(tx *sql.Tx, modelID string) error {
	if _, err := tx.Exec(`DELETE FROM attributes_fts WHERE model_id = ?`, modelID); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 search over attribute names and categories and
// returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT model_id,
		       attr_id,
		       name,
		       category,
		       snippet(attributes_fts, 2, '<b>', '</b>', '...', 16)
		FROM attributes_fts
		WHERE attributes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
