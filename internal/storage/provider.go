// Package storage defines the catalog file store: one JSON document per
// model, named <modelID>.json.
package storage

import "github.com/autodesk-tandem/tandem-sample-rest/internal/models"

// Provider is the interface for catalog file operations.
type Provider interface {
	// List returns metadata for every stored catalog.
	List() ([]models.CatalogMetadata, error)
	// Read returns the raw catalog of a model.
	Read(modelID string) ([]byte, error)
	// Write atomically replaces the catalog of a model.
	Write(modelID string, content []byte) error
	// Delete removes the catalog of a model.
	Delete(modelID string) error
}
