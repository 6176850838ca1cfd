package storage

import (
	"context"
	"log/slog"
	"time"

	"appdepot/internal/server/database"
)

// orphanGrace is how old an unreferenced file must be before the sweeper
// removes it. Files for an in-flight upload exist briefly before the app
// record referencing them is saved.
const orphanGrace = 30 * time.Minute

// OrphanSweeper periodically deletes files in the upload directory that no
// app record references: leftovers from deleted apps, replaced uploads, or a
// crash between file write and record save.
type OrphanSweeper struct {
	db       *database.Store
	store    Store
	interval time.Duration
	done     chan struct{}
}

// NewOrphanSweeper creates a sweeper over the given record store and storage.
func NewOrphanSweeper(db *database.Store, store Store, interval time.Duration) *OrphanSweeper {
	return &OrphanSweeper{
		db:       db,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (sw *OrphanSweeper) Start(ctx context.Context) {
	slog.Info("orphan sweeper started", "interval", sw.interval)

	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		// Run once immediately on start
		sw.runSweep()

		for {
			select {
			case <-ticker.C:
				sw.runSweep()
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(sw.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (sw *OrphanSweeper) Wait() {
	<-sw.done
}

func (sw *OrphanSweeper) runSweep() {
	removed, err := sw.SweepOnce()
	if err != nil {
		slog.Error("orphan sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("orphan sweep complete", "removed", removed)
	}
}

// SweepOnce removes unreferenced files older than the grace period and
// returns how many were deleted.
func (sw *OrphanSweeper) SweepOnce() (int, error) {
	db, err := sw.db.Load()
	if err != nil {
		return 0, err
	}

	referenced := make(map[string]bool, len(db.Apps))
	for _, app := range db.Apps {
		if app.FilePath != "" {
			referenced[app.FilePath] = true
		}
	}

	files, err := sw.store.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-orphanGrace)
	var removed int
	for _, f := range files {
		if referenced[f.Name] || f.ModTime.After(cutoff) {
			continue
		}
		if err := sw.store.Delete(f.Name); err != nil {
			slog.Error("failed to delete orphaned file", "name", f.Name, "error", err)
			continue
		}
		removed++
		slog.Info("deleted orphaned file", "name", f.Name)
	}
	return removed, nil
}
