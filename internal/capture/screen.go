package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"
)

const DefaultCaptureTimeout = 15 * time.Second

// Grabber takes a screenshot of one display.
type Grabber interface {
	Grab(ctx context.Context, display int) (image.Image, error)
}

// ScreenGrabber captures real displays.
type ScreenGrabber struct {
	Timeout time.Duration
}

func (g ScreenGrabber) Grab(ctx context.Context, display int) (image.Image, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("display %d out of range, %d active", display, n)
	}
	bounds := screenshot.GetDisplayBounds(display)

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		img *image.RGBA
		err error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		img, err := screenshot.CaptureRect(bounds)
		done <- result{img, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("failed to capture display %d (took %v, bounds: %v): %w",
				display, time.Since(start), bounds, res.err)
		}
		return res.img, nil
	case <-ctx.Done():
		// On macOS this is usually a missing Screen Recording permission.
		return nil, fmt.Errorf("capture of display %d timed out after %v (bounds: %v): %w",
			display, time.Since(start), bounds, ctx.Err())
	}
}
