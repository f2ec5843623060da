package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
)

// CatalogRow represents a row in the catalogs table.
type CatalogRow struct {
	ModelID       string    `json:"model_id"`
	SchemaVersion int       `json:"schema_version"`
	Checksum      string    `json:"checksum"`
	AttrCount     int       `json:"attr_count"`
	Skipped       int       `json:"skipped"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AttributeRow represents a row in the attributes table.
type AttributeRow struct {
	ModelID  string `json:"model_id"`
	AttrID   string `json:"attr_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	DataType int    `json:"data_type"`
	Flags    int    `json:"flags"`
	Family   string `json:"family"`
	Column   string `json:"column"`
	Hash     string `json:"hash"`
	Scheme   string `json:"scheme"`
	Native   bool   `json:"native"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ModelID  string `json:"model_id"`
	AttrID   string `json:"attr_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

const attributeColumns = `model_id, attr_id, name, category, data_type, flags, family, col, hash, scheme, native`

// IndexSchema replaces everything indexed for the snapshot's model within
// a transaction. Standard attributes are indexed too, so hash matching
// covers them.
func (db *DB) IndexSchema(s *attrschema.Schema, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	attrs := s.Attributes()
	_, err = tx.Exec(`
		INSERT INTO catalogs (model_id, schema_version, checksum, attr_count, skipped, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			checksum       = excluded.checksum,
			attr_count     = excluded.attr_count,
			skipped        = excluded.skipped,
			updated_at     = excluded.updated_at
	`, s.ModelID(), s.Version(), checksum, len(attrs), len(s.Skipped()), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: upsert catalog: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM attributes WHERE model_id = ?`, s.ModelID()); err != nil {
		return fmt.Errorf("index: clear attributes: %w", err)
	}
	if err := ftsDeleteModel(tx, s.ModelID()); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO attributes (` + attributeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare attribute insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range attrs {
		_, err := stmt.Exec(s.ModelID(), d.ID(), d.Name(), d.Category(), int(d.DataType()), int(d.Flags()),
			string(d.Family()), d.Column(), d.Hash(), d.Scheme().String(), d.IsNative())
		if err != nil {
			return fmt.Errorf("index: insert attribute %s: %w", d.ID(), err)
		}
		if err := ftsInsert(tx, s.ModelID(), d.ID(), d.Name(), d.Category()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteCatalog removes a model and its attributes.
func (db *DB) DeleteCatalog(modelID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDeleteModel(tx, modelID); err != nil {
		return err
	}
	_, _ = tx.Exec(`DELETE FROM attributes WHERE model_id = ?`, modelID)
	_, _ = tx.Exec(`DELETE FROM catalogs WHERE model_id = ?`, modelID)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a model, or empty string if
// the model is not indexed.
func (db *DB) GetChecksum(modelID string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM catalogs WHERE model_id = ?`, modelID).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed model.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT model_id, checksum FROM catalogs`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// ListCatalogs returns every indexed model ordered by id.
func (db *DB) ListCatalogs() ([]CatalogRow, error) {
	rows, err := db.conn.Query(`
		SELECT model_id, schema_version, checksum, attr_count, skipped, updated_at
		FROM catalogs ORDER BY model_id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: list catalogs: %w", err)
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var r CatalogRow
		if err := rows.Scan(&r.ModelID, &r.SchemaVersion, &r.Checksum, &r.AttrCount, &r.Skipped, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MatchHash returns the attributes of every model that share an identity
// hash, ordered by model.
func (db *DB) MatchHash(hash string) ([]AttributeRow, error) {
	return db.queryAttributes(`SELECT `+attributeColumns+` FROM attributes WHERE hash = ? ORDER BY model_id, attr_id`, hash)
}

// FindByName returns the attributes of every model with the given
// category and name.
func (db *DB) FindByName(category, name string) ([]AttributeRow, error) {
	return db.queryAttributes(`SELECT `+attributeColumns+` FROM attributes WHERE category = ? AND name = ? ORDER BY model_id, attr_id`, category, name)
}

func (db *DB) queryAttributes(query string, args ...any) ([]AttributeRow, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query attributes: %w", err)
	}
	defer rows.Close()

	var out []AttributeRow
	for rows.Next() {
		var r AttributeRow
		if err := rows.Scan(&r.ModelID, &r.AttrID, &r.Name, &r.Category, &r.DataType, &r.Flags,
			&r.Family, &r.Column, &r.Hash, &r.Scheme, &r.Native); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
