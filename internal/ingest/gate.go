// Package ingest admits uploaded screenshots: it fingerprints them, flags
// near-identical consecutive captures as duplicates and submits the rest
// for analysis.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"deskmemo/internal/logger"
	"deskmemo/internal/phash"
	"deskmemo/internal/storage"
)

const DefaultSimilarityThreshold = 10

// Submitter takes admitted image ids for analysis.
type Submitter interface {
	Submit(id int64) bool
}

// IsDuplicate reports whether cur is too close to prev to be worth analyzing.
func IsDuplicate(prev, cur phash.Fingerprint, threshold int) bool {
	return phash.Distance(prev, cur) < threshold
}

// Decision describes what Admit did with an image.
type Decision struct {
	Duplicate bool
	Distance  int // -1 when there was no predecessor to compare with
	Enqueued  bool
}

// Gate compares each new image with the one captured just before it.
type Gate struct {
	store     storage.Storage
	submitter Submitter
	threshold int
	log       *logrus.Entry

	// mu keeps "read previous, then insert" atomic across concurrent uploads.
	mu sync.Mutex
}

func NewGate(store storage.Storage, submitter Submitter, threshold int) *Gate {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Gate{
		store:     store,
		submitter: submitter,
		threshold: threshold,
		log:       logger.WithComponent("ingest"),
	}
}

// Admit persists img, flagging it as a duplicate when its fingerprint is
// within the threshold of the record captured immediately before it.
// Late arrivals are compared by capture time, not arrival order. Only novel images are
// submitted. img.Fingerprint must already be set.
func (g *Gate) Admit(ctx context.Context, img *storage.CapturedImage) (Decision, error) {
	cur, err := phash.Parse(img.Fingerprint)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to parse fingerprint of %s: %w", img.Filename, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	d := Decision{Distance: -1}
	prev, err := g.store.PreviousImage(ctx, img.Timestamp)
	if err != nil {
		return d, fmt.Errorf("failed to load previous image: %w", err)
	}
	if prev != nil {
		pf, err := phash.Parse(prev.Fingerprint)
		if err != nil {
			g.log.WithField("image_id", prev.ID).Warnf("Ignoring unreadable fingerprint: %v", err)
		} else {
			d.Distance = phash.Distance(pf, cur)
			d.Duplicate = IsDuplicate(pf, cur, g.threshold)
		}
	}

	img.IsDuplicate = d.Duplicate
	if err := g.store.SaveImage(ctx, img); err != nil {
		return d, err
	}

	if !d.Duplicate && g.submitter != nil {
		d.Enqueued = g.submitter.Submit(img.ID)
	}

	g.log.WithFields(logrus.Fields{
		"image_id":  img.ID,
		"distance":  d.Distance,
		"duplicate": d.Duplicate,
	}).Debug("Image admitted")
	return d, nil
}
