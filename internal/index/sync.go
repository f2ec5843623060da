package index

import (
	"sort"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/models"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

// Plan is the difference between the catalog store and the index.
type Plan struct {
	// Changed catalogs are new on disk or have a different checksum.
	Changed []models.CatalogMetadata
	// Unchanged catalogs are indexed with their current checksum.
	Unchanged []models.CatalogMetadata
	// Removed models are indexed but no longer stored.
	Removed []string
}

// Diff compares the store against the indexed checksums.
func Diff(db CatalogIndex, store storage.Provider) (Plan, error) {
	metas, err := store.List()
	if err != nil {
		return Plan{}, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.ModelID] = struct{}{}
		if checksums[m.ModelID] == m.Checksum {
			plan.Unchanged = append(plan.Unchanged, m)
		} else {
			plan.Changed = append(plan.Changed, m)
		}
	}
	for id := range checksums {
		if _, ok := disk[id]; !ok {
			plan.Removed = append(plan.Removed, id)
		}
	}
	sort.Strings(plan.Removed)
	return plan, nil
}
