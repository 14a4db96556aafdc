// Package retention runs the periodic purge of expired and revoked refresh sessions.
package retention

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/metrics"
)

// DefaultInterval is how often the sweeper runs when no interval is configured.
const DefaultInterval = 6 * time.Hour

// Purger deletes records that are expired at now or no longer active.
type Purger interface {
	PurgeExpiredOrInactive(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper purges the session store once at Start and then on every tick until stopped.
// A failed sweep is logged and retried on the next tick.
type Sweeper struct {
	store    Purger
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewSweeper returns a Sweeper over store. interval <= 0 means DefaultInterval; a nil log discards output.
func NewSweeper(store Purger, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log.Named("retention"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every interval in a new goroutine.
// It returns at once; the loop ends on Stop or when ctx is cancelled. Call Start at most once.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("starting retention sweeper", zap.Duration("interval", s.interval))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stopCh:
				s.log.Info("retention sweeper stopped")
				return
			case <-ctx.Done():
				s.log.Info("retention sweeper context cancelled")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish. Safe to call more than once.
// Stop must only be called after Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// PurgeNow runs one purge synchronously and returns the number of records deleted.
// Unlike the background loop it returns the store error to the caller.
func (s *Sweeper) PurgeNow(ctx context.Context) (int64, error) {
	began := time.Now()
	n, err := s.store.PurgeExpiredOrInactive(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	metrics.SessionsPurgedTotal.Add(float64(n))
	s.log.Info("refresh sessions purged", zap.Int64("deleted", n), zap.Duration("duration", time.Since(began)))
	return n, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.PurgeNow(ctx); err != nil {
		metrics.SweepFailuresTotal.Inc()
		s.log.Error("retention sweep failed", zap.Error(err))
	}
}
