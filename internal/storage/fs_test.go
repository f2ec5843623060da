package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

const urn = "urn:adsk.dtm:abc-123"

func TestWriteAndRead(t *testing.T) {
	s := tempStore(t)
	content := []byte(`["pdb version dt 1"]`)
	if err := s.Write(urn, content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(urn)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), urn+".json")); err != nil {
		t.Errorf("catalog file not named after model: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("m1", []byte("[]"))
	if err := s.Delete("m1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := s.Read("m1")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist reading deleted catalog, got %v", err)
	}
}

func TestList(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("a", []byte("[1]"))
	_ = s.Write(urn, []byte("[2]"))
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not a catalog"), 0o644)
	_ = os.Mkdir(filepath.Join(s.Root(), "sub.json"), 0o755)

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" || it.Size == 0 {
			t.Errorf("incomplete metadata: %+v", it)
		}
	}
}

func TestInvalidModelIDs(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"",
		"../../etc/passwd",
		"../outside",
		"/etc/shadow",
		"a/b",
		`a\b`,
		".hidden",
	}
	for _, id := range cases {
		if _, err := s.Read(id); err == nil {
			t.Errorf("expected error for id %q", id)
		}
		if err := s.Write(id, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", id)
		}
	}
}

func TestModelIDFromFile(t *testing.T) {
	if id, ok := ModelIDFromFile("/data/catalogs/" + urn + ".json"); !ok || id != urn {
		t.Errorf("ModelIDFromFile = %q, %v", id, ok)
	}
	if _, ok := ModelIDFromFile(".tandem-tmp-123"); ok {
		t.Error("temp file must not be a catalog")
	}
	if _, ok := ModelIDFromFile("notes.md"); ok {
		t.Error("non-json file must not be a catalog")
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("m", []byte("original"))

	updated := []byte("updated")
	if err := s.Write("m", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("m")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "tandem-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
