// Package testutil provides shared test helpers for setting up catalog
// directories and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/index"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

// SampleCatalog is a small catalog with one attribute of each hash scheme.
const SampleCatalog = `["pdb version dt 3",
	101, ["Serial Number","General",20,null,"","",0,0,""],
	7, ["Thickness","Construction",3,null,"","",0,2,"feet"],
	"z9", ["Installation Date","General",22,null,"","",18,0,"","","","","",{"dtClass":["23.40.20"]},null,"e"],
	"z3", ["Asset Tag","Identity Data",20,null,"","",16,0,"","","","9a1b2c3d-1111-2222-3333-444455556666","",null,null,"e"]
]`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tandem-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCatalogDir creates a temporary catalog directory with a storage.Provider.
func TestCatalogDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteCatalog writes a catalog file for modelID directly to dir.
func WriteCatalog(t *testing.T, dir, modelID, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, modelID+".json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}
