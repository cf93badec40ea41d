// Package scheduler drives a tick function on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

type Scheduler struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	tickFn   func(context.Context)

	running  atomic.Bool
	lastTick atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, clock clockwork.Clock, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		clock:    clock,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the loop in the background. It reports false if already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)
		s.loop(ctx)
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "scheduler", s.name)
	return true
}

// Run ticks in the calling goroutine until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	s.loop(ctx)
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// LastTick is the start of the most recent tick, zero if none ran yet.
func (s *Scheduler) LastTick() time.Time {
	ns := s.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "scheduler", s.name, "interval", s.interval.String())

	s.safeTick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping", "scheduler", s.name)
			return
		case <-ticker.Chan():
			s.safeTick(ctx)
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "scheduler", s.name, "panic", r)
		}
	}()

	start := s.clock.Now()
	s.lastTick.Store(start.UnixNano())
	s.tickFn(ctx)
	slog.Debug("scheduler tick completed", "scheduler", s.name, "duration_ms", s.clock.Since(start).Milliseconds())
}
