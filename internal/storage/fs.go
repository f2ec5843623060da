package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/checksum"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/models"
)

const tmpPattern = ".tandem-tmp-*"

// FS implements Provider backed by a flat directory.
type FS struct {
	root string // absolute path to the catalog directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute catalog directory.
func (f *FS) Root() string { return f.root }

// ValidModelID reports whether id can be used as a catalog file name.
// Model URNs contain colons and dots, which are allowed; separators and
// traversal are not.
func ValidModelID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..") && !strings.ContainsRune(id, 0)
}

// ModelIDFromFile returns the model id for a catalog file name, or false
// when the name is not a catalog.
func ModelIDFromFile(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, models.CatalogExt) {
		return "", false
	}
	id := strings.TrimSuffix(base, models.CatalogExt)
	return id, ValidModelID(id)
}

// path resolves a model id to its file and rejects anything that would
// escape the root.
func (f *FS) path(modelID string) (string, error) {
	if !ValidModelID(modelID) {
		return "", fmt.Errorf("storage: invalid model id %q", modelID)
	}
	abs := filepath.Join(f.root, modelID+models.CatalogExt)
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: model id escapes catalog root: %s", modelID)
	}
	return abs, nil
}

// List returns metadata for every catalog file in the root directory.
func (f *FS) List() ([]models.CatalogMetadata, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.CatalogMetadata
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ModelIDFromFile(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", e.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", e.Name(), err)
		}
		out = append(out, models.CatalogMetadata{
			ModelID:   id,
			Checksum:  checksum.Sum(data),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw catalog bytes of a model.
func (f *FS) Read(modelID string) ([]byte, error) {
	abs, err := f.path(modelID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", modelID, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(modelID string, content []byte) error {
	abs, err := f.path(modelID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the catalog of a model.
func (f *FS) Delete(modelID string) error {
	abs, err := f.path(modelID)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", modelID, err)
	}
	return nil
}
