package index

import "github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"

// CatalogIndex is the index surface the service layer depends on.
type CatalogIndex interface {
	IndexSchema(s *attrschema.Schema, checksum string) error
	DeleteCatalog(modelID string) error
	GetChecksum(modelID string) (string, error)
	AllChecksums() (map[string]string, error)
	ListCatalogs() ([]CatalogRow, error)
	MatchHash(hash string) ([]AttributeRow, error)
	FindByName(category, name string) ([]AttributeRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies CatalogIndex at compile time.
var _ CatalogIndex = (*DB)(nil)
