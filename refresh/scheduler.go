package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-crm-install/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultInterval = time.Hour

// Scheduler drives the sweeper on a fixed interval. Start runs the first
// pass immediately so a fresh deployment does not wait an hour for expiring
// credentials.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   core.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithSchedulerLogger(logger core.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewScheduler(sweeper *Sweeper, options ...SchedulerOption) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("refresh: sweeper is required")
	}
	scheduler := &Scheduler{
		sweeper:  sweeper,
		interval: defaultInterval,
	}
	for _, option := range options {
		if option != nil {
			option(scheduler)
		}
	}
	_, scheduler.logger = glog.Resolve("crm-install.refresh.scheduler", nil, scheduler.logger)
	return scheduler, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.sweeper == nil {
		return fmt.Errorf("refresh: scheduler is not configured")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("refresh: scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	stopped := make(chan struct{})
	s.stopped = stopped
	s.mu.Unlock()

	go s.run(ctx, stopped)
	return nil
}

func (s *Scheduler) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
	}
}

// Stop cancels the loop and waits for an in-flight pass to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.stopped = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
