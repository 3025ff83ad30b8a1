package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"deskmemo/internal/logger"
)

// Ingester stores one screenshot.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader, capturedAt time.Time) (*Result, error)
}

const DefaultSettleDelay = 2 * time.Second

var inboxExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Watcher ingests image files dropped into an inbox directory. A file is
// picked up once it has stopped changing for the settle delay, and removed
// after it has been stored.
type Watcher struct {
	dir     string
	ingest  Ingester
	settle  time.Duration
	log     *logrus.Entry
	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewWatcher(dir string, ingest Ingester, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Watcher{
		dir:     dir,
		ingest:  ingest,
		settle:  settle,
		log:     logger.WithComponent("inbox"),
		pending: make(map[string]*time.Timer),
	}
}

// Run watches the inbox until ctx is cancelled. Files already present when
// it starts are ingested first, oldest first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.log.Infof("Watching inbox %s", w.dir)

	w.drainExisting(ctx)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("Watch error: %v", err)
		}
	}
}

func (w *Watcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warnf("Failed to list inbox: %v", err)
		return
	}

	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !accepted(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{filepath.Join(w.dir, e.Name()), info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	for _, f := range files {
		w.process(ctx, f.path)
	}
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !accepted(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	log := w.log.WithField("file", filepath.Base(path))

	info, err := os.Stat(path)
	if err != nil {
		// already consumed or removed
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warnf("Failed to open inbox file: %v", err)
		return
	}
	res, err := w.ingest.Ingest(ctx, f, info.ModTime())
	f.Close()
	if err != nil {
		log.Errorf("Failed to ingest inbox file: %v", err)
		return
	}

	if err := os.Remove(path); err != nil {
		log.Warnf("Failed to remove ingested file: %v", err)
	}
	log.WithFields(logrus.Fields{
		"image_id":  res.Image.ID,
		"duplicate": res.Decision.Duplicate,
	}).Info("Ingested inbox file")
}

func accepted(name string) bool {
	return inboxExtensions[strings.ToLower(filepath.Ext(name))]
}
