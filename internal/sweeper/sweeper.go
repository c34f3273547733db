// Package sweeper periodically drops dialogue sessions that have gone quiet.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer drops sessions last updated before cutoff and reports how many.
type Expirer interface {
	ExpireIdle(ctx context.Context, cutoff time.Time) int
}

// Sweeper runs an Expirer on a cron schedule.
type Sweeper struct {
	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	target Expirer
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	runCtx context.Context
}

// New creates a sweeper that expires sessions idle for longer than ttl.
func New(target Expirer, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cron:   cron.New(),
		target: target,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		runCtx: context.Background(),
	}
}

// Schedule sets the sweep schedule, replacing any previous one.
// The schedule is a standard 5-field cron expression or a descriptor like @every 1m.
func (s *Sweeper) Schedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.SweepOnce(s.context()) })
	if err != nil {
		return fmt.Errorf("sweeper: invalid schedule %q: %w", spec, err)
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	s.logger.Info("sweep scheduled", "schedule", spec, "ttl", s.ttl)
	return nil
}

// Start runs the cron scheduler. Blocks until context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("sweeper started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
	return ctx.Err()
}

// SweepOnce expires idle sessions now and returns how many were dropped.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)
	n := s.target.ExpireIdle(ctx, cutoff)
	if n > 0 {
		s.logger.Info("idle sessions expired", "count", n, "cutoff", cutoff)
	}
	return n
}

func (s *Sweeper) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}
