package catalogservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/apperr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/checksum"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/index"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/testutil"
)

const otherCatalog = `["pdb version dt 2",
	55, ["Serial Number","General",20,null,"","",0,0,""],
	56, ["Pressure","Mechanical",3,null,"","",0,0,"pascals"]]`

func newTestService(t *testing.T, opts ...Option) (*Service, string, storage.Provider, *index.DB) {
	t.Helper()
	dir, store := testutil.TestCatalogDir(t)
	db := testutil.TestDB(t)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewService(store, db, opts...), dir, store, db
}

func mustSchema(t *testing.T, modelID, doc string) *attrschema.Schema {
	t.Helper()
	s, err := attrschema.New(modelID, json.RawMessage(doc), attrschema.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSyncLoadsAndIndexes(t *testing.T) {
	svc, dir, _, db := newTestService(t, WithWorkers(2))
	testutil.WriteCatalog(t, dir, "urn:m1", testutil.SampleCatalog)
	testutil.WriteCatalog(t, dir, "urn:m2", otherCatalog)
	testutil.WriteCatalog(t, dir, "broken", `{"not":"a catalog"}`)

	if svc.Ready() {
		t.Fatal("service should not be ready before sync")
	}
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !svc.Ready() {
		t.Fatal("service should be ready after sync")
	}

	ms := svc.Models(context.Background())
	if len(ms) != 2 || ms[0].ModelID != "urn:m1" || ms[1].ModelID != "urn:m2" {
		t.Fatalf("models = %+v", ms)
	}
	if ms[0].SchemaVersion != 3 || ms[0].NativeCount != 2 {
		t.Errorf("summary = %+v", ms[0])
	}

	cs, _ := db.GetChecksum("urn:m1")
	if cs != checksum.Sum([]byte(testutil.SampleCatalog)) {
		t.Errorf("indexed checksum = %q", cs)
	}
	if cs, _ := db.GetChecksum("broken"); cs != "" {
		t.Error("invalid catalog should not be indexed")
	}

	matches, err := svc.MatchHash(context.Background(), "[General][Serial Number][][]")
	if err != nil {
		t.Fatalf("MatchHash: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected the serial number in both models, got %+v", matches)
	}
}

func TestSyncRemovesStaleIndexEntries(t *testing.T) {
	svc, dir, store, db := newTestService(t)
	testutil.WriteCatalog(t, dir, "gone", otherCatalog)
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum("gone"); cs != "" {
		t.Error("stale catalog still indexed")
	}
	if _, err := svc.Schema("gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Schema err = %v, want ErrNotFound", err)
	}
}

func TestSyncReusesIndexForUnchangedCatalogs(t *testing.T) {
	svc, dir, _, db := newTestService(t)
	testutil.WriteCatalog(t, dir, "m", otherCatalog)
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, _ := db.ListCatalogs()

	// A fresh service over the same index loads snapshots without reindexing.
	again := NewService(svc.store, db, WithLogger(svc.logger))
	if err := again.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	after, _ := db.ListCatalogs()
	if len(before) != 1 || len(after) != 1 || !before[0].UpdatedAt.Equal(after[0].UpdatedAt) {
		t.Errorf("unchanged catalog was reindexed: %+v -> %+v", before, after)
	}
	if _, err := again.FindAttribute("m", "Mechanical", "Pressure"); err != nil {
		t.Errorf("FindAttribute: %v", err)
	}
}

func TestImportCatalog(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ImportCatalog(ctx, "urn:new", []byte(otherCatalog), Precondition{IfNoneMatch: "*"})
	if err != nil {
		t.Fatalf("ImportCatalog: %v", err)
	}
	if !res.Created || !res.Changed || res.Summary.SchemaVersion != 2 {
		t.Errorf("result = %+v", res)
	}
	if _, err := store.Read("urn:new"); err != nil {
		t.Errorf("catalog not stored: %v", err)
	}

	_, err = svc.ImportCatalog(ctx, "urn:new", []byte(otherCatalog), Precondition{IfNoneMatch: "*"})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}

	res, err = svc.ImportCatalog(ctx, "urn:new", []byte(otherCatalog), Precondition{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created || res.Changed {
		t.Errorf("identical import should be a no-op: %+v", res)
	}

	_, err = svc.ImportCatalog(ctx, "urn:new", []byte(testutil.SampleCatalog), Precondition{IfMatch: `"stale"`})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	res, err = svc.ImportCatalog(ctx, "urn:new", []byte(testutil.SampleCatalog),
		Precondition{IfMatch: checksum.ETag(checksum.Sum([]byte(otherCatalog)))})
	if err != nil {
		t.Fatalf("conditional import: %v", err)
	}
	if !res.Changed || res.Summary.SchemaVersion != 3 {
		t.Errorf("result = %+v", res)
	}
	if _, err := svc.FindAttribute("urn:new", "Mechanical", "Pressure"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("old attribute still served: %v", err)
	}
}

func TestImportCatalogRejectsInvalid(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportCatalog(ctx, "m", []byte(`["no marker"]`), Precondition{})
	if !errors.Is(err, apperr.ErrInvalidCatalog) {
		t.Errorf("err = %v, want ErrInvalidCatalog", err)
	}
	if _, err := store.Read("m"); err == nil {
		t.Error("invalid catalog must not be stored")
	}

	_, err = svc.ImportCatalog(ctx, "../escape", []byte(otherCatalog), Precondition{})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}

	strict, _, _, _ := newTestService(t, WithStrict(true))
	dup := `["pdb version dt 1", 1, ["A","B",20,null,"","",0,0,""], 2, ["A","B",20,null,"","",0,0,""]]`
	if _, err := strict.ImportCatalog(ctx, "m", []byte(dup), Precondition{}); !errors.Is(err, apperr.ErrInvalidCatalog) {
		t.Errorf("strict err = %v, want ErrInvalidCatalog", err)
	}
}

func TestDeleteCatalog(t *testing.T) {
	svc, _, _, db := newTestService(t)
	ctx := context.Background()
	if _, err := svc.ImportCatalog(ctx, "m", []byte(otherCatalog), Precondition{}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteCatalog(ctx, "m"); err != nil {
		t.Fatalf("DeleteCatalog: %v", err)
	}
	if cs, _ := db.GetChecksum("m"); cs != "" {
		t.Error("deleted catalog still indexed")
	}
	if err := svc.DeleteCatalog(ctx, "m"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestLoadAndUnload(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	changed, err := svc.Load("m", []byte(otherCatalog))
	if err != nil || !changed {
		t.Fatalf("Load = %v, %v", changed, err)
	}
	changed, err = svc.Load("m", []byte(otherCatalog))
	if err != nil || changed {
		t.Errorf("reload of identical content = %v, %v", changed, err)
	}
	if _, err := svc.Load("m", []byte(`[]`)); !errors.Is(err, apperr.ErrInvalidCatalog) {
		t.Errorf("err = %v, want ErrInvalidCatalog", err)
	}
	// a failed load keeps the previous snapshot
	if _, err := svc.FindAttribute("m", "Mechanical", "Pressure"); err != nil {
		t.Errorf("snapshot lost after failed load: %v", err)
	}

	removed, err := svc.Unload("m")
	if err != nil || !removed {
		t.Errorf("Unload = %v, %v", removed, err)
	}
	removed, _ = svc.Unload("m")
	if removed {
		t.Error("second unload should report nothing removed")
	}
}

func TestLookups(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.Load("m", []byte(testutil.SampleCatalog)); err != nil {
		t.Fatal(err)
	}

	d, err := svc.FindAttributeByID("m", "101")
	if err != nil || d.Name() != "Serial Number" {
		t.Errorf("FindAttributeByID = %v, %v", d, err)
	}
	d, err = svc.FindAttributeByID("m", dtschema.QCName)
	if err != nil || d.Name() != "Name" {
		t.Errorf("FindAttributeByID(qualified) = %v, %v", d, err)
	}
	if _, err := svc.FindAttributeByID("m", "404"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	d, err = svc.FindAttributeByHash("m", "[9a1b2c3d-1111-2222-3333-444455556666][20]")
	if err != nil || d.ID() != "z3" {
		t.Errorf("FindAttributeByHash = %v, %v", d, err)
	}

	app, err := svc.Applicable("m", "23.40.20.30")
	if err != nil || len(app) != 1 || app[0].ID() != "z9" {
		t.Errorf("Applicable = %v, %v", app, err)
	}

	if _, err := svc.Attributes("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFormatRows(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.Load("m", []byte(testutil.SampleCatalog)); err != nil {
		t.Fatal(err)
	}

	scan := `[{"version":1},{"k":"AAAAAQ","n:n":["Pump"],"r:101":["SN-9"]}]`
	out, err := svc.FormatRows(context.Background(), "m", []byte(scan), []dtschema.ColumnFamily{dtschema.FamilySource})
	if err != nil {
		t.Fatalf("FormatRows: %v", err)
	}
	if len(out) != 1 || len(out[0].Props) != 1 || out[0].Props[0].Name != "Name" {
		t.Errorf("rows = %+v", out)
	}

	if _, err := svc.FormatRows(context.Background(), "m", []byte(`{}`), nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestConcurrentLoadAndRead(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.Load("m", []byte(otherCatalog)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = svc.Load("m", []byte(testutil.SampleCatalog))
				_, _ = svc.Load("m", []byte(otherCatalog))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = svc.FindAttribute("m", "General", "Serial Number")
				_ = svc.Models(context.Background())
			}
		}()
	}
	wg.Wait()
}

func TestImportCatalogIndexFailureKeepsStoredFile(t *testing.T) {
	svc, _, store, db := newTestService(t)
	ctx := context.Background()
	if _, err := svc.ImportCatalog(ctx, "m", []byte(otherCatalog), Precondition{}); err != nil {
		t.Fatal(err)
	}

	db.Close()
	if _, err := svc.ImportCatalog(ctx, "m", []byte(testutil.SampleCatalog), Precondition{}); err == nil {
		t.Fatal("import should fail when the index is unavailable")
	}
	snap, err := svc.Snapshot("m")
	if err != nil || snap.Schema.Version() != 2 {
		t.Fatalf("served snapshot = %+v, %v", snap, err)
	}
	data, _ := store.Read("m")
	if string(data) != testutil.SampleCatalog {
		t.Fatalf("stored catalog was not replaced")
	}

	// a fresh sync over the same store serves the stored file
	next := NewService(store, testutil.TestDB(t), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := next.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	snap, err = next.Snapshot("m")
	if err != nil || snap.Schema.Version() != 3 {
		t.Errorf("synced snapshot = %+v, %v", snap, err)
	}
}

func TestMatchNameAndIndexedCatalogs(t *testing.T) {
	svc, _, _, db := newTestService(t)
	ctx := context.Background()
	for id, doc := range map[string]string{"a": testutil.SampleCatalog, "b": otherCatalog} {
		if _, err := svc.Load(id, []byte(doc)); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := svc.MatchName(ctx, "General", "Serial Number")
	if err != nil {
		t.Fatalf("MatchName: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("matches = %+v", matches)
	}

	entries, err := svc.IndexedCatalogs(ctx)
	if err != nil {
		t.Fatalf("IndexedCatalogs: %v", err)
	}
	if len(entries) != 2 || entries[0].ModelID != "a" || !entries[0].Served || !entries[1].Served {
		t.Errorf("entries = %+v", entries)
	}

	// indexed by an earlier run but not loaded here
	if err := db.IndexSchema(mustSchema(t, "c", otherCatalog), "old"); err != nil {
		t.Fatal(err)
	}
	entries, _ = svc.IndexedCatalogs(ctx)
	if len(entries) != 3 || entries[2].ModelID != "c" || entries[2].Served {
		t.Errorf("entries = %+v", entries)
	}
}

func TestBuildMutation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Load("m", []byte(testutil.SampleCatalog)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.BuildMutation(ctx, "m", MutationRequest{Category: "Construction", Name: "Thickness", Value: "0.5"})
	if err != nil {
		t.Fatalf("BuildMutation: %v", err)
	}
	got, _ := json.Marshal(res.Mutation)
	if string(got) != `["i","r","7",0.5]` {
		t.Errorf("mutation = %s", got)
	}

	res, err = svc.BuildMutation(ctx, "m", MutationRequest{ID: "z3", Value: 42.0})
	if err != nil {
		t.Fatalf("BuildMutation by id: %v", err)
	}
	got, _ = json.Marshal(res.Mutation)
	if string(got) != `["i","z","z3","42"]` {
		t.Errorf("mutation = %s", got)
	}

	res, err = svc.BuildMutation(ctx, "m", MutationRequest{ID: "7", Value: "abc", UseDefault: true})
	if err != nil || res.Value != float64(0) {
		t.Errorf("default = %+v, %v", res, err)
	}

	for name, req := range map[string]MutationRequest{
		"unparsable double": {ID: "7", Value: "abc"},
		"read-only column":  {ID: dtschema.QCCategoryID, Value: 3},
		"no attribute":      {Value: 1},
	} {
		if _, err := svc.BuildMutation(ctx, "m", req); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
	if _, err := svc.BuildMutation(ctx, "m", MutationRequest{ID: "404", Value: 1}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
