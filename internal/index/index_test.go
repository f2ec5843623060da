package index

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "tandem-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func buildSchema(t *testing.T, modelID, catalog string) *attrschema.Schema {
	t.Helper()
	s, err := attrschema.New(modelID, json.RawMessage(catalog), attrschema.WithLogger(quiet))
	if err != nil {
		t.Fatalf("attrschema.New: %v", err)
	}
	return s
}

const catalogA = `["pdb version dt 3",
	101, ["Serial Number","General",20,null,"","",0,0,""],
	"z9", ["Installation Date","General",22,null,"","",18,0,"","","","","",null,null,"e"]]`

const catalogB = `["pdb version dt 2",
	55, ["Serial Number","General",20,null,"","",0,0,""],
	56, ["Pressure","Mechanical",3,null,"","",0,0,"pascals"]]`

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM catalogs`).Scan(&count); err != nil {
		t.Fatalf("catalogs table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM attributes`).Scan(&count); err != nil {
		t.Fatalf("attributes table missing: %v", err)
	}
}

func TestIndexSchemaAndGetChecksum(t *testing.T) {
	db := testDB(t)
	s := buildSchema(t, "urn:m1", catalogA)
	if err := db.IndexSchema(s, "abc123"); err != nil {
		t.Fatalf("IndexSchema: %v", err)
	}
	cs, err := db.GetChecksum("urn:m1")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	cats, err := db.ListCatalogs()
	if err != nil {
		t.Fatalf("ListCatalogs: %v", err)
	}
	if len(cats) != 1 || cats[0].SchemaVersion != 3 || cats[0].AttrCount != len(s.Attributes()) {
		t.Errorf("catalogs = %+v", cats)
	}
}

func TestMatchHashAcrossModels(t *testing.T) {
	db := testDB(t)
	_ = db.IndexSchema(buildSchema(t, "m1", catalogA), "1")
	_ = db.IndexSchema(buildSchema(t, "m2", catalogB), "2")

	rows, err := db.MatchHash("[General][Serial Number][][]")
	if err != nil {
		t.Fatalf("MatchHash: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(rows))
	}
	if rows[0].ModelID != "m1" || rows[0].AttrID != "101" || rows[1].ModelID != "m2" || rows[1].AttrID != "55" {
		t.Errorf("matches = %+v", rows)
	}
	if rows[0].Family != "r" || rows[0].Native {
		t.Errorf("row = %+v, want non-native family r", rows[0])
	}

	native, _ := db.MatchHash("z[General][Installation Date][22]")
	if len(native) != 1 || !native[0].Native || native[0].Scheme != "v2" {
		t.Errorf("native matches = %+v", native)
	}
}

func TestFindByName(t *testing.T) {
	db := testDB(t)
	_ = db.IndexSchema(buildSchema(t, "m2", catalogB), "2")

	rows, err := db.FindByName("Mechanical", "Pressure")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if len(rows) != 1 || rows[0].AttrID != "56" || rows[0].DataType != 3 {
		t.Errorf("rows = %+v", rows)
	}
	// standard attributes are indexed with every model
	std, _ := db.FindByName("Common", "Name")
	if len(std) != 1 || std[0].AttrID != "n:n" {
		t.Errorf("standard rows = %+v", std)
	}
}

func TestDeleteCatalog(t *testing.T) {
	db := testDB(t)
	_ = db.IndexSchema(buildSchema(t, "del", catalogB), "x")

	if err := db.DeleteCatalog("del"); err != nil {
		t.Fatalf("DeleteCatalog: %v", err)
	}
	cs, _ := db.GetChecksum("del")
	if cs != "" {
		t.Errorf("deleted catalog still has checksum %q", cs)
	}
	rows, _ := db.FindByName("Mechanical", "Pressure")
	if len(rows) != 0 {
		t.Errorf("expected no attributes after delete, got %d", len(rows))
	}
}

func TestIndexSchemaReplacesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.IndexSchema(buildSchema(t, "up", catalogB), "1")
	_ = db.IndexSchema(buildSchema(t, "up", catalogA), "2")

	cs, _ := db.GetChecksum("up")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	if rows, _ := db.FindByName("Mechanical", "Pressure"); len(rows) != 0 {
		t.Error("old attributes should be removed on reindex")
	}
	if rows, _ := db.FindByName("General", "Installation Date"); len(rows) != 1 {
		t.Error("new attributes should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.IndexSchema(buildSchema(t, "s", catalogB), "1")

	results, err := db.Search("Pressure", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ModelID != "s" || results[0].AttrID != "56" {
		t.Errorf("search results = %+v, want 1 hit for s/56", results)
	}
}
