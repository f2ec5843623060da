// Package models defines the domain types shared by the catalog store,
// the index and the service layer.
package models

import "time"

// CatalogExt is the file extension of stored catalogs.
const CatalogExt = ".json"

// CatalogMetadata is a lightweight description of a stored catalog file.
type CatalogMetadata struct {
	ModelID   string    `json:"model_id"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelSummary describes the schema snapshot currently loaded for a model.
type ModelSummary struct {
	ModelID            string    `json:"model_id"`
	SchemaVersion      int       `json:"schema_version"`
	AttributeCount     int       `json:"attribute_count"`
	NativeCount        int       `json:"native_count"`
	SkippedCount       int       `json:"skipped_count"`
	DuplicateCount     int       `json:"duplicate_count"`
	MalformedUUIDCount int       `json:"malformed_uuid_count"`
	Checksum           string    `json:"checksum"`
	UpdatedAt          time.Time `json:"updated_at"`
}
