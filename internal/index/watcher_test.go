package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/checksum"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

// indexHandler loads catalogs straight into the index.
type indexHandler struct{ db *DB }

func (h indexHandler) Load(modelID string, data []byte) (bool, error) {
	sum := checksum.Sum(data)
	if cs, _ := h.db.GetChecksum(modelID); cs == sum {
		return false, nil
	}
	s, err := attrschema.New(modelID, json.RawMessage(data), attrschema.WithLogger(quiet))
	if err != nil {
		return false, err
	}
	return true, h.db.IndexSchema(s, sum)
}

func (h indexHandler) Unload(modelID string) (bool, error) {
	if cs, _ := h.db.GetChecksum(modelID); cs == "" {
		return false, nil
	}
	return true, h.db.DeleteCatalog(modelID)
}

// watcherTestEnv sets up a catalog dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeCatalog(t *testing.T, dir, modelID, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, modelID+".json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiff(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	writeCatalog(t, dir, "same", catalogA)
	writeCatalog(t, dir, "new", catalogB)
	_ = db.IndexSchema(buildSchema(t, "same", catalogA), checksum.Sum([]byte(catalogA)))
	_ = db.IndexSchema(buildSchema(t, "gone", catalogA), "old")

	plan, err := Diff(db, store)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(plan.Changed) != 1 || plan.Changed[0].ModelID != "new" {
		t.Errorf("changed = %+v", plan.Changed)
	}
	if len(plan.Unchanged) != 1 || plan.Unchanged[0].ModelID != "same" {
		t.Errorf("unchanged = %+v", plan.Unchanged)
	}
	if len(plan.Removed) != 1 || plan.Removed[0] != "gone" {
		t.Errorf("removed = %+v", plan.Removed)
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, dir, quiet, indexHandler{db}, func(kind, modelID string) {
		mu.Lock()
		events = append(events, kind+":"+modelID)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	writeCatalog(t, dir, "urn:new", catalogA)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("urn:new")
		return cs != ""
	}, "new catalog not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:urn:new" {
				return true
			}
		}
		return false
	}, "expected created:urn:new callback")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, dir, quiet, indexHandler{db}, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(catalogA), 0o644)
	writeCatalog(t, dir, "real", catalogB)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("real")
		return cs != ""
	}, "catalog not indexed by watcher")

	all, _ := db.AllChecksums()
	if len(all) != 1 {
		t.Errorf("expected only the catalog to be indexed, got %v", all)
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	writeCatalog(t, dir, "del", catalogB)
	if _, err := (indexHandler{db}).Load("del", []byte(catalogB)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, dir, quiet, indexHandler{db}, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "del.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del")
		return cs == ""
	}, "deleted catalog still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	writeCatalog(t, dir, "old", catalogA)
	if _, err := (indexHandler{db}).Load("old", []byte(catalogA)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, dir, quiet, indexHandler{db}, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.json"), filepath.Join(dir, "renamed.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old")
		newCS, _ := db.GetChecksum("renamed")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old model should be removed and new model indexed")
}
