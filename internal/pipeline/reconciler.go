package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"deskmemo/internal/logger"
	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
)

const reindexBatchSize = 50

// ReconcileResult counts what one pass did.
type ReconcileResult struct {
	Enqueued  int
	Skipped   int // already queued or in flight
	Missing   int
	Reindexed int
}

// Reconciler re-discovers pending images the queue lost (restart, dropped
// enqueue) and closes the ones whose file is gone.
type Reconciler struct {
	store    storage.Storage
	queue    *Queue
	files    FileChecker
	indexer  *activityIndexer
	interval time.Duration
	log      *logrus.Entry
}

func NewReconciler(store storage.Storage, queue *Queue, files FileChecker, index vectorindex.Index,
	interval time.Duration, maxIndexAttempts int) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxIndexAttempts <= 0 {
		maxIndexAttempts = 3
	}
	return &Reconciler{
		store:    store,
		queue:    queue,
		files:    files,
		indexer:  newActivityIndexer(store, index, maxIndexAttempts),
		interval: interval,
		log:      logger.WithComponent("reconciler"),
	}
}

// Reconcile enqueues every pending image whose file exists, oldest first.
// Pending images without a file are closed without an Activity.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	pending, err := r.store.ListPendingImages(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list pending images: %w", err)
	}

	for _, img := range pending {
		if !r.files.Exists(img.Path) {
			if err := r.store.MarkImageAnalyzed(ctx, img.ID); err != nil {
				return res, fmt.Errorf("failed to close image %d: %w", img.ID, err)
			}
			r.log.WithFields(logrus.Fields{"image_id": img.ID, "path": img.Path}).
				Warnf("Closing image: %v", ErrSourceMissing)
			res.Missing++
			continue
		}
		if r.queue.Enqueue(img.ID) {
			res.Enqueued++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// Reindex re-submits Activities that have no vector entry yet and have not
// used up their index attempts. It returns how many succeeded.
func (r *Reconciler) Reindex(ctx context.Context) (int, error) {
	if !r.indexer.enabled() {
		return 0, nil
	}

	acts, err := r.indexer.pending(ctx, reindexBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unindexed activities: %w", err)
	}

	done := 0
	for _, a := range acts {
		if err := r.indexer.submit(ctx, a); err != nil {
			var ie *IndexingError
			if errors.As(err, &ie) {
				r.log.WithField("activity_id", a.ID).Warnf("Reindex failed: %v", err)
				continue
			}
			return done, err
		}
		done++
	}
	return done, nil
}

// RunOnce performs one reconcile pass followed by a reindex pass.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	res, err := r.Reconcile(ctx)
	if err != nil {
		return res, err
	}
	n, err := r.Reindex(ctx)
	res.Reindexed = n
	if err != nil {
		return res, err
	}
	return res, nil
}

// Run reconciles immediately and then on every tick, but only while the
// queue is idle.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reconciler stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	if !r.queue.Idle() {
		return
	}
	res, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Errorf("Reconcile pass failed: %v", err)
		return
	}
	if res.Enqueued > 0 || res.Missing > 0 || res.Reindexed > 0 {
		r.log.WithFields(logrus.Fields{
			"enqueued":  res.Enqueued,
			"missing":   res.Missing,
			"reindexed": res.Reindexed,
		}).Info("Reconcile pass")
	}
}
