// Package catalogservice keeps one attribute schema snapshot per cached
// model and coordinates the catalog store with the attribute index.
package catalogservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/apperr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/checksum"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/index"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/models"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/rows"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

// Snapshot is the schema currently served for a model. It is replaced as a
// whole on reload and never mutated.
type Snapshot struct {
	Schema    *attrschema.Schema
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// Summary describes the snapshot.
func (s *Snapshot) Summary() models.ModelSummary {
	return models.ModelSummary{
		ModelID:            s.Schema.ModelID(),
		SchemaVersion:      s.Schema.Version(),
		AttributeCount:     len(s.Schema.Attributes()),
		NativeCount:        len(s.Schema.Native()),
		SkippedCount:       len(s.Schema.Skipped()),
		DuplicateCount:     len(s.Schema.Duplicates()),
		MalformedUUIDCount: len(s.Schema.MalformedUUIDs()),
		Checksum:           s.Checksum,
		UpdatedAt:          s.UpdatedAt,
	}
}

// Service coordinates the catalog store, the index and the in-memory
// snapshots.
type Service struct {
	store     storage.Provider
	db        index.CatalogIndex
	logger    *slog.Logger
	strict    bool
	overrides attr.FormatOverrides
	workers   int

	// writeMu serializes store writes and snapshot swaps.
	writeMu sync.Mutex

	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	synced    bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStrict rejects catalogs with malformed tuples or duplicate names.
func WithStrict(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithFormatOverrides replaces the unit override table used for every
// snapshot.
func WithFormatOverrides(fo attr.FormatOverrides) Option {
	return func(s *Service) { s.overrides = fo }
}

// WithWorkers bounds how many catalogs Sync parses concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService creates a new catalog service. Call Sync to load the store.
func NewService(store storage.Provider, db index.CatalogIndex, opts ...Option) *Service {
	s := &Service{
		store:     store,
		db:        db,
		logger:    slog.Default(),
		overrides: attr.DefaultFormatOverrides(),
		workers:   4,
		snapshots: make(map[string]*Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) build(modelID string, data []byte) (*Snapshot, error) {
	schema, err := attrschema.New(modelID, json.RawMessage(data),
		attrschema.WithLogger(s.logger),
		attrschema.WithStrict(s.strict),
		attrschema.WithFormatOverrides(s.overrides),
	)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Schema:    schema,
		Checksum:  checksum.Sum(data),
		Size:      int64(len(data)),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Sync loads every stored catalog, reindexes the ones whose checksum the
// index does not have and drops index entries without a catalog. Invalid
// catalogs are logged and left out.
func (s *Service) Sync(ctx context.Context) error {
	plan, err := index.Diff(s.db, s.store)
	if err != nil {
		return err
	}

	metas := append(append([]models.CatalogMetadata{}, plan.Changed...), plan.Unchanged...)
	built := make([]*Snapshot, len(metas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, m := range metas {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.store.Read(m.ModelID)
			if err != nil {
				s.logger.Warn("sync: read failed", slog.String("model_id", m.ModelID), slog.String("error", err.Error()))
				return nil
			}
			snap, err := s.build(m.ModelID, data)
			if err != nil {
				s.logger.Warn("sync: invalid catalog", slog.String("model_id", m.ModelID), slog.String("error", err.Error()))
				return nil
			}
			built[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	next := make(map[string]*Snapshot, len(metas))
	for i, m := range metas {
		snap := built[i]
		changed := i < len(plan.Changed)
		if snap == nil {
			if !changed {
				continue
			}
			// A changed catalog that no longer parses must not keep its
			// previous rows in the index.
			if err := s.db.DeleteCatalog(m.ModelID); err != nil {
				s.logger.Warn("sync: delete failed", slog.String("model_id", m.ModelID), slog.String("error", err.Error()))
			}
			continue
		}
		next[m.ModelID] = snap
		if changed {
			if err := s.db.IndexSchema(snap.Schema, snap.Checksum); err != nil {
				s.logger.Warn("sync: index failed", slog.String("model_id", m.ModelID), slog.String("error", err.Error()))
			} else {
				s.logger.Debug("sync: indexed", slog.String("model_id", m.ModelID))
			}
		}
	}

	for _, id := range plan.Removed {
		if err := s.db.DeleteCatalog(id); err != nil {
			s.logger.Warn("sync: delete failed", slog.String("model_id", id), slog.String("error", err.Error()))
		} else {
			s.logger.Debug("sync: removed stale", slog.String("model_id", id))
		}
	}

	s.mu.Lock()
	s.snapshots = next
	s.synced = true
	s.mu.Unlock()

	s.logger.Info("sync: done",
		slog.Int("models", len(next)),
		slog.Int("changed", len(plan.Changed)),
		slog.Int("removed", len(plan.Removed)))
	return nil
}

// Ready reports whether the first Sync has completed.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Load builds and indexes a snapshot from raw catalog bytes. It reports
// false when the model already serves this exact content.
func (s *Service) Load(modelID string, data []byte) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.load(modelID, data)
}

func (s *Service) load(modelID string, data []byte) (bool, error) {
	sum := checksum.Sum(data)
	if cur, ok := s.snapshot(modelID); ok && cur.Checksum == sum {
		return false, nil
	}
	snap, err := s.build(modelID, data)
	if err != nil {
		return false, fmt.Errorf("%w: %w", apperr.ErrInvalidCatalog, err)
	}
	return s.install(snap)
}

// install indexes snap and makes it the served snapshot of its model.
func (s *Service) install(snap *Snapshot) (bool, error) {
	modelID := snap.Schema.ModelID()
	if cur, ok := s.snapshot(modelID); ok && cur.Checksum == snap.Checksum {
		return false, nil
	}
	if err := s.db.IndexSchema(snap.Schema, snap.Checksum); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.snapshots[modelID] = snap
	s.mu.Unlock()
	return true, nil
}

// Unload drops a model's snapshot and index entries. It reports whether
// the model was loaded or indexed.
func (s *Service) Unload(modelID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.unload(modelID)
}

func (s *Service) unload(modelID string) (bool, error) {
	s.mu.Lock()
	_, loaded := s.snapshots[modelID]
	delete(s.snapshots, modelID)
	s.mu.Unlock()

	cs, err := s.db.GetChecksum(modelID)
	if err != nil {
		return loaded, err
	}
	if cs == "" {
		return loaded, nil
	}
	return true, s.db.DeleteCatalog(modelID)
}

// Precondition carries the optimistic concurrency headers of an import.
type Precondition struct {
	// IfMatch must name the checksum of the stored catalog when set; "*"
	// requires any stored catalog.
	IfMatch string
	// IfNoneMatch "*" rejects the import when a catalog is already stored.
	IfNoneMatch string
}

// ImportResult describes a stored catalog.
type ImportResult struct {
	Summary models.ModelSummary `json:"summary"`
	Created bool                `json:"created"`
	// Changed is false when the stored content was already served.
	Changed bool `json:"changed"`
}

// ImportCatalog validates data by building a snapshot, then stores and
// indexes it.
func (s *Service) ImportCatalog(_ context.Context, modelID string, data []byte, pre Precondition) (*ImportResult, error) {
	if !storage.ValidModelID(modelID) {
		return nil, fmt.Errorf("%w: model id %q", apperr.ErrInvalidInput, modelID)
	}
	built, err := s.build(modelID, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidCatalog, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.store.Read(modelID)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if pre.IfNoneMatch == "*" && exists {
		return nil, apperr.ErrAlreadyExists
	}
	if pre.IfMatch != "" && (!exists || !checksum.Matches(pre.IfMatch, checksum.Sum(existing))) {
		return nil, apperr.ErrConflict
	}

	if err := s.store.Write(modelID, data); err != nil {
		return nil, err
	}
	// The store is the source of truth. If indexing fails the new file is
	// already on disk while the old snapshot keeps being served; the
	// watcher event for the write or the next Sync loads it again.
	changed, err := s.install(built)
	if err != nil {
		return nil, err
	}
	snap, _ := s.snapshot(modelID)
	s.logger.Info("catalog imported", slog.String("model_id", modelID), slog.Bool("created", !exists), slog.Bool("changed", changed))
	return &ImportResult{Summary: snap.Summary(), Created: !exists, Changed: changed}, nil
}

// DeleteCatalog removes a model's catalog from the store, the index and
// memory.
func (s *Service) DeleteCatalog(_ context.Context, modelID string) error {
	if !storage.ValidModelID(modelID) {
		return apperr.ErrNotFound
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Delete(modelID); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	_, err := s.unload(modelID)
	return err
}

// CatalogData returns the stored catalog bytes and their checksum.
func (s *Service) CatalogData(_ context.Context, modelID string) ([]byte, string, error) {
	if !storage.ValidModelID(modelID) {
		return nil, "", apperr.ErrNotFound
	}
	data, err := s.store.Read(modelID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperr.ErrNotFound
		}
		return nil, "", err
	}
	return data, checksum.Sum(data), nil
}

func (s *Service) snapshot(modelID string) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[modelID]
	return snap, ok
}

// Snapshot returns the snapshot served for a model.
func (s *Service) Snapshot(modelID string) (*Snapshot, error) {
	snap, ok := s.snapshot(modelID)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return snap, nil
}

// Schema returns the schema served for a model.
func (s *Service) Schema(modelID string) (*attrschema.Schema, error) {
	snap, err := s.Snapshot(modelID)
	if err != nil {
		return nil, err
	}
	return snap.Schema, nil
}

// Models lists the loaded models ordered by id.
func (s *Service) Models(_ context.Context) []models.ModelSummary {
	s.mu.RLock()
	out := make([]models.ModelSummary, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.Summary())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Attributes returns every attribute of a model, catalog entries first.
func (s *Service) Attributes(modelID string) ([]*attr.Definition, error) {
	schema, err := s.Schema(modelID)
	if err != nil {
		return nil, err
	}
	return schema.Attributes(), nil
}

// FindAttribute looks an attribute up by category and name.
func (s *Service) FindAttribute(modelID, category, name string) (*attr.Definition, error) {
	schema, err := s.Schema(modelID)
	if err != nil {
		return nil, err
	}
	d, ok := schema.FindAttribute(category, name)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}

// FindAttributeByID looks an attribute up by catalog id or standard column.
func (s *Service) FindAttributeByID(modelID, id string) (*attr.Definition, error) {
	schema, err := s.Schema(modelID)
	if err != nil {
		return nil, err
	}
	d, ok := schema.FindAttributeByID(id)
	if !ok {
		d, ok = schema.FindAttributeByQualifiedColumn(id)
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}

// FindAttributeByHash looks an attribute up by identity hash.
func (s *Service) FindAttributeByHash(modelID, hash string) (*attr.Definition, error) {
	schema, err := s.Schema(modelID)
	if err != nil {
		return nil, err
	}
	d, ok := schema.FindAttributeByHash(hash)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}

// Applicable returns the native parameters that auto-apply to elements of
// the given classification.
func (s *Service) Applicable(modelID, classification string) ([]*attr.Definition, error) {
	schema, err := s.Schema(modelID)
	if err != nil {
		return nil, err
	}
	return schema.ApplicableAttributes(classification), nil
}

// MatchHash returns every indexed attribute with the given identity hash
// across all models.
func (s *Service) MatchHash(_ context.Context, hash string) ([]index.AttributeRow, error) {
	return s.db.MatchHash(hash)
}

// MatchName returns every indexed attribute with the given category and
// name across all models.
func (s *Service) MatchName(_ context.Context, category, name string) ([]index.AttributeRow, error) {
	return s.db.FindByName(category, name)
}

// IndexEntry is an indexed catalog and whether it matches the snapshot
// currently served for the model.
type IndexEntry struct {
	index.CatalogRow
	Served bool `json:"served"`
}

// IndexedCatalogs lists the catalogs recorded in the index. An entry that
// is not served was indexed by an earlier run, or its model failed to
// reload, and is reconciled by the next Sync.
func (s *Service) IndexedCatalogs(_ context.Context) ([]IndexEntry, error) {
	rows, err := s.db.ListCatalogs()
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, len(rows))
	for i, r := range rows {
		snap, ok := s.snapshot(r.ModelID)
		out[i] = IndexEntry{CatalogRow: r, Served: ok && snap.Checksum == r.Checksum}
	}
	return out, nil
}

// Search delegates attribute search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// FormatRows resolves a raw scan response against a model's schema.
func (s *Service) FormatRows(_ context.Context, modelID string, data []byte, exclude []dtschema.ColumnFamily) ([]rows.ElementProps, error) {
	schema, err := s.Schema(modelID)
	if err != nil {
		return nil, err
	}
	res, err := rows.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	return rows.FormatAll(schema, res, rows.Options{ExcludeFamilies: exclude, Logger: s.logger}), nil
}
