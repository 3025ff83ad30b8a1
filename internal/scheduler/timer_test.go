package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		cron     string
		wantErr  bool
		wantCron bool
	}{
		{name: "固定间隔", interval: "1m"},
		{name: "cron 优先", interval: "1m", cron: "0 5 * * * *", wantCron: true},
		{name: "非法间隔", interval: "soon", wantErr: true},
		{name: "非法 cron", cron: "every hour", wantErr: true},
		{name: "都为空", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(tt.interval, tt.cron, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if _, ok := s.(*CronScheduler); ok != tt.wantCron {
				t.Errorf("got %T, wantCron %v", s, tt.wantCron)
			}
		})
	}
}

func TestFixedRateScheduler_RunsAndStops(t *testing.T) {
	var runs atomic.Int32
	s := NewFixedRateScheduler(10 * time.Millisecond).RunImmediately()
	if err := s.Start(func() error {
		if runs.Add(1) == 2 {
			return errors.New("boom")
		}
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("task ran %d times, want at least 3", runs.Load())
	}

	_ = s.Stop()
	_ = s.Stop() // second Stop is a no-op
	stopped := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got > stopped+1 {
		t.Errorf("task kept running after Stop: %d -> %d", stopped, got)
	}
}

func TestCronScheduler_Location(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	s, err := NewCronScheduler("0 5 * * * *", loc)
	if err != nil {
		t.Fatalf("NewCronScheduler() error = %v", err)
	}
	if err := s.Start(func() error { return nil }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	next := s.Next().In(loc)
	if next.Minute() != 5 || next.Second() != 0 {
		t.Errorf("next run = %v, want minute 5 second 0", next)
	}
}
