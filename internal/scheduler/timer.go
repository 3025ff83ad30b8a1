package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"deskmemo/internal/logger"
)

type Scheduler interface {
	Start(task func() error) error
	Stop() error
}

type FixedRateScheduler struct {
	interval  time.Duration
	immediate bool
	ticker    *time.Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

func NewFixedRateScheduler(interval time.Duration) *FixedRateScheduler {
	return &FixedRateScheduler{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// RunImmediately makes Start run the task once before the first tick.
func (s *FixedRateScheduler) RunImmediately() *FixedRateScheduler {
	s.immediate = true
	return s
}

func (s *FixedRateScheduler) Start(task func() error) error {
	if s.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	s.ticker = time.NewTicker(s.interval)

	go func() {
		if s.immediate {
			runTask(task)
		}
		for {
			select {
			case <-s.ticker.C:
				runTask(task)
			case <-s.done:
				return
			}
		}
	}()

	return nil
}

func (s *FixedRateScheduler) Stop() error {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
	})
	return nil
}

type CronScheduler struct {
	spec  string
	loc   *time.Location
	cron  *cron.Cron
	entry cron.EntryID
}

// NewCronScheduler parses six-field specs (with seconds) evaluated in loc.
func NewCronScheduler(spec string, loc *time.Location) (*CronScheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec: %w", err)
	}
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	return &CronScheduler{
		spec: spec,
		loc:  loc,
		cron: c,
	}, nil
}

func (s *CronScheduler) Start(task func() error) error {
	entryID, err := s.cron.AddFunc(s.spec, func() {
		runTask(task)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec: %w", err)
	}

	s.entry = entryID
	s.cron.Start()
	return nil
}

// Next is the next activation time, zero before Start.
func (s *CronScheduler) Next() time.Time {
	e := s.cron.Entry(s.entry)
	if e.Schedule == nil {
		return time.Time{}
	}
	return e.Schedule.Next(time.Now().In(s.loc))
}

func (s *CronScheduler) Stop() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

func runTask(task func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("scheduler").Errorf("Scheduled task panicked: %v", r)
		}
	}()
	if err := task(); err != nil {
		logger.WithComponent("scheduler").Errorf("Scheduled task execution failed: %v", err)
	}
}

func NewScheduler(interval string, cronSpec string, loc *time.Location) (Scheduler, error) {
	if cronSpec != "" {
		return NewCronScheduler(cronSpec, loc)
	}

	if interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		return NewFixedRateScheduler(duration), nil
	}

	return nil, fmt.Errorf("either interval or cron must be specified")
}
