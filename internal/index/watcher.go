package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

// EventCallback is called after a watcher-driven catalog change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, modelID string)

// Handler applies catalog changes seen by the watcher. Both methods report
// whether anything actually changed; a rewrite with identical content is
// not a change.
type Handler interface {
	Load(modelID string, data []byte) (bool, error)
	Unload(modelID string) (bool, error)
}

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the catalog directory and processes
// file change events until ctx is cancelled. It calls cb (if non-nil) after
// each change the handler accepted.
//
// Rename events trigger a reconciliation pass that unloads models whose
// files no longer exist and loads files that are not indexed yet.
func Watch(ctx context.Context, db CatalogIndex, store storage.Provider, root string, logger *slog.Logger, h Handler, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	notify := func(kind, modelID string) {
		if cb != nil {
			cb(kind, modelID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, h, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// Temp files from atomic writes and anything else that is not a
			// catalog are ignored.
			modelID, isCatalog := storage.ModelIDFromFile(filepath.Base(ev.Name))
			if !isCatalog {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(modelID)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("model_id", modelID), slog.String("error", readErr.Error()))
					continue
				}
				existing, _ := db.GetChecksum(modelID)
				changed, loadErr := h.Load(modelID, data)
				if loadErr != nil {
					logger.Warn("watcher: load failed", slog.String("model_id", modelID), slog.String("error", loadErr.Error()))
					continue
				}
				if !changed {
					continue
				}
				kind := "updated"
				if existing == "" {
					kind = "created"
				}
				logger.Debug("watcher: loaded", slog.String("model_id", modelID), slog.String("op", kind))
				notify(kind, modelID)

			case ev.Op&fsnotify.Remove != 0:
				removed, delErr := h.Unload(modelID)
				if delErr != nil {
					logger.Warn("watcher: unload failed", slog.String("model_id", modelID), slog.String("error", delErr.Error()))
					continue
				}
				if removed {
					logger.Debug("watcher: unloaded", slog.String("model_id", modelID))
					notify("deleted", modelID)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new name
				// arrives as a separate Create when it stays in the directory.
				removed, delErr := h.Unload(modelID)
				if delErr != nil {
					logger.Warn("watcher: rename unload failed", slog.String("model_id", modelID), slog.String("error", delErr.Error()))
				} else if removed {
					logger.Debug("watcher: rename old unloaded", slog.String("model_id", modelID))
					notify("deleted", modelID)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile unloads indexed models without a file and loads files whose
// checksum the index does not have.
func reconcile(db CatalogIndex, store storage.Provider, logger *slog.Logger, h Handler, notify EventCallback) {
	plan, err := Diff(db, store)
	if err != nil {
		logger.Warn("reconcile: diff failed", slog.String("error", err.Error()))
		return
	}

	for _, id := range plan.Removed {
		if removed, err := h.Unload(id); err == nil && removed {
			logger.Debug("reconcile: removed stale", slog.String("model_id", id))
			notify("deleted", id)
		}
	}

	for _, m := range plan.Changed {
		existing, _ := db.GetChecksum(m.ModelID)
		data, err := store.Read(m.ModelID)
		if err != nil {
			continue
		}
		if changed, err := h.Load(m.ModelID, data); err == nil && changed {
			kind := "updated"
			if existing == "" {
				kind = "created"
			}
			logger.Debug("reconcile: loaded", slog.String("model_id", m.ModelID))
			notify(kind, m.ModelID)
		}
	}
}
