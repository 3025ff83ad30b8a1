package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deskmemo/internal/analyzer"
	"deskmemo/internal/logger"
	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
)

// FileChecker probes whether an image file still exists.
type FileChecker interface {
	Exists(path string) bool
}

// ImageResolver turns a stored image into the reference sent to the analyzer.
type ImageResolver interface {
	Resolve(path, filename string) (string, error)
}

type Options struct {
	MaxAttempts    int
	ErrorMaxLength int
	AnalyzeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.ErrorMaxLength <= 0 {
		o.ErrorMaxLength = 500
	}
	if o.AnalyzeTimeout <= 0 {
		o.AnalyzeTimeout = 120 * time.Second
	}
	return o
}

// Worker drains the queue one item at a time.
type Worker struct {
	store    storage.Storage
	queue    *Queue
	analyzer analyzer.Analyzer
	parser   analyzer.Parser
	refs     ImageResolver
	files    FileChecker
	indexer  *activityIndexer
	opts     Options
	log      *logrus.Entry

	// mu guards the process-one-item critical section.
	mu sync.Mutex
}

func NewWorker(store storage.Storage, queue *Queue, a analyzer.Analyzer, p analyzer.Parser,
	index vectorindex.Index, refs ImageResolver, files FileChecker, opts Options) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		store:    store,
		queue:    queue,
		analyzer: a,
		parser:   p,
		refs:     refs,
		files:    files,
		indexer:  newActivityIndexer(store, index, opts.MaxAttempts),
		opts:     opts,
		log:      logger.WithComponent("worker"),
	}
}

// Run processes queued items until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Analysis worker started")
	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.log.Info("Analysis worker stopped")
			return nil
		}
		w.processSafely(ctx, id)
		w.queue.Done(id)
	}
}

func (w *Worker) processSafely(ctx context.Context, id int64) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithFields(logrus.Fields{
				"image_id": id,
				"panic":    r,
			}).Errorf("Recovered from panic while processing image:\n%s", debug.Stack())
		}
	}()

	status, err := w.Process(ctx, id)
	if err != nil {
		var ae *AnalysisError
		if errors.As(err, &ae) {
			// already logged with attempt context
			return
		}
		w.log.WithField("image_id", id).Errorf("Failed to process image: %v", err)
		return
	}
	w.log.WithFields(logrus.Fields{"image_id": id, "state": status.State}).Debug("Processed image")
}

// Process runs one analysis attempt for image id and returns the resulting
// status. Items that are not Pending are left untouched. A failed attempt
// returns an *AnalysisError.
func (w *Worker) Process(ctx context.Context, id int64) (Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	img, err := w.store.GetImage(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if img == nil {
		return Status{}, fmt.Errorf("image %d: %w", id, ErrImageNotFound)
	}

	status := StatusOf(img)
	if status.State != StatePending {
		return status, nil
	}

	// Once the attempt starts it runs to completion; cancellation only
	// stops the wait for the next item.
	ctx = context.WithoutCancel(ctx)
	log := w.log.WithFields(logrus.Fields{"image_id": img.ID, "filename": img.Filename})

	if !w.files.Exists(img.Path) {
		next := Next(status, OutcomeSourceMissing, w.opts.MaxAttempts)
		if err := w.store.MarkImageAnalyzed(ctx, img.ID); err != nil {
			return status, err
		}
		log.Warnf("Closing image: %v", ErrSourceMissing)
		return next, nil
	}

	ref, err := w.refs.Resolve(img.Path, img.Filename)
	if err != nil {
		return w.fail(ctx, img, status, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.opts.AnalyzeTimeout)
	text, err := w.analyzer.Analyze(callCtx, ref)
	cancel()
	if err != nil {
		return w.fail(ctx, img, status, err)
	}

	result, err := w.parser.Parse(text)
	if err != nil {
		return w.fail(ctx, img, status, fmt.Errorf("failed to parse analyzer reply: %w", err))
	}
	if result.Fallback {
		log.Warn("Analyzer reply had no JSON object, stored as free text")
	}

	activity := &storage.Activity{
		ImageID:        img.ID,
		ImageFilename:  img.Filename,
		Timestamp:      img.Timestamp,
		Category:       result.Category,
		Application:    result.Application,
		Description:    result.Description,
		ContentSummary: result.ContentSummary,
		RawText:        result.RawText,
		VectorID:       vectorindex.VectorID(img.ID),
	}
	if err := w.store.RecordSuccess(ctx, activity); err != nil {
		return status, fmt.Errorf("failed to record analysis of image %d: %w", img.ID, err)
	}

	next := Next(status, OutcomeSuccess, w.opts.MaxAttempts)
	log.WithField("category", activity.Category).Info("Image analyzed")

	if err := w.indexer.submit(ctx, activity); err != nil {
		log.Warnf("Activity stored without vector entry: %v", err)
	}
	return next, nil
}

func (w *Worker) fail(ctx context.Context, img *storage.CapturedImage, status Status, cause error) (Status, error) {
	next := Next(status, OutcomeFailure, w.opts.MaxAttempts)
	abandoned := next.State == StateAbandoned

	msg := truncate(cause.Error(), w.opts.ErrorMaxLength)
	if err := w.store.UpdateAnalysisStatus(ctx, img.ID, abandoned, next.Failures, msg); err != nil {
		return status, fmt.Errorf("failed to record failure of image %d: %w", img.ID, err)
	}

	aerr := &AnalysisError{ImageID: img.ID, Attempt: next.Failures, Permanent: abandoned, Err: cause}
	entry := w.log.WithFields(logrus.Fields{
		"image_id":  img.ID,
		"attempt":   next.Failures,
		"kind":      analyzer.ErrorKind(cause),
		"retryable": analyzer.IsRetryable(cause),
		"error":     msg,
	})
	if abandoned {
		entry.Error("Analysis abandoned after reaching the attempt limit")
	} else {
		entry.Warn("Analysis attempt failed, will retry")
	}
	return next, aerr
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
