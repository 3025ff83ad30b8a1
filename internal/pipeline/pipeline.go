// Package pipeline moves uploaded images through analysis: an in-memory queue,
// a single worker with bounded retries, and a reconciler that recovers work
// the queue lost.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"deskmemo/internal/analyzer"
	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
)

type Config struct {
	Options
	ReconcileInterval time.Duration
}

// Deps are the collaborators of a Pipeline. Index may be nil.
type Deps struct {
	Store    storage.Storage
	Analyzer analyzer.Analyzer
	Parser   analyzer.Parser
	Index    vectorindex.Index
	Refs     ImageResolver
	Files    FileChecker
}

type Pipeline struct {
	Queue      *Queue
	Worker     *Worker
	Reconciler *Reconciler
	Manual     *Manual
}

func New(deps Deps, cfg Config) *Pipeline {
	if deps.Parser == nil {
		deps.Parser = analyzer.NewTolerantParser()
	}
	q := NewQueue()
	w := NewWorker(deps.Store, q, deps.Analyzer, deps.Parser, deps.Index, deps.Refs, deps.Files, cfg.Options)
	r := NewReconciler(deps.Store, q, deps.Files, deps.Index, cfg.ReconcileInterval, w.opts.MaxAttempts)
	return &Pipeline{
		Queue:      q,
		Worker:     w,
		Reconciler: r,
		Manual:     NewManual(deps.Store, q),
	}
}

// Submit enqueues a freshly admitted image.
func (p *Pipeline) Submit(id int64) bool {
	return p.Queue.Enqueue(id)
}

// Run starts the worker and the reconciler and blocks until ctx is
// cancelled and both have returned.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Worker.Run(ctx) })
	g.Go(func() error { return p.Reconciler.Run(ctx) })
	return g.Wait()
}
