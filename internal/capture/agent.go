// Package capture periodically screenshots a display and uploads the image
// to the server.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"github.com/sirupsen/logrus"

	"deskmemo/internal/logger"
	"deskmemo/internal/scheduler"
)

type Agent struct {
	grabber Grabber
	client  *Client
	display int
	now     func() time.Time
	log     *logrus.Entry
}

func NewAgent(grabber Grabber, client *Client, display int) *Agent {
	return &Agent{
		grabber: grabber,
		client:  client,
		display: display,
		now:     time.Now,
		log:     logger.WithComponent("capture"),
	}
}

// CaptureOnce grabs the display, encodes it as PNG and uploads it.
func (a *Agent) CaptureOnce(ctx context.Context) error {
	capturedAt := a.now()
	img, err := a.grabber.Grab(ctx, a.display)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode screenshot: %w", err)
	}

	res, err := a.client.Upload(ctx, buf.Bytes(), capturedAt.Format("20060102-150405")+".png", capturedAt)
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"screenshot_id": res.Screenshot.ID,
		"duplicate":     res.IsDuplicate,
		"bytes":         buf.Len(),
	}).Info("Screenshot uploaded")
	return nil
}

// Run logs in, captures immediately and then every interval until ctx is
// cancelled. A failed capture is logged and does not stop the agent.
func (a *Agent) Run(ctx context.Context, interval time.Duration) error {
	if err := a.client.Login(ctx); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	sched := scheduler.NewFixedRateScheduler(interval).RunImmediately()
	err := sched.Start(func() error {
		if err := a.CaptureOnce(ctx); err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.log.Infof("Capturing display %d every %s", a.display, interval)

	<-ctx.Done()
	return sched.Stop()
}
