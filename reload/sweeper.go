package reload

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Sweeper: periodic liveness polling of type registries
// ---------------------------------------------------------------------------

// SweepStats holds statistics from a single sweep.
type SweepStats struct {
	Polled        int
	TornDown      int
	SweepDuration time.Duration
	Timestamp     time.Time
}

// Sweeper periodically polls every registry of a Context and tears down
// the ones whose load context is gone. Polling is advisory: a dead load
// context may be noticed up to one interval late.
type Sweeper struct {
	ctx      *Context
	interval time.Duration
	enabled  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc // nil while not running
	done   chan struct{}

	sweepCount atomic.Uint64
	lastStats  atomic.Pointer[SweepStats]
}

// DefaultSweepInterval is the default polling interval.
const DefaultSweepInterval = 30 * time.Second

// NewSweeper creates a sweeper for ctx. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(ctx *Context, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{ctx: ctx, interval: interval}
	s.enabled.Store(true)
	return s
}

// Start polls in the background until parent is done or Stop is called.
// Starting a running sweeper does nothing.
func (s *Sweeper) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(parent)
	s.cancel, s.done = cancel, make(chan struct{})
	go s.run(runCtx, s.done)
}

// Stop halts polling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetEnabled pauses or resumes sweeping; the polling loop keeps running.
func (s *Sweeper) SetEnabled(enabled bool) { s.enabled.Store(enabled) }

// IsEnabled reports whether sweeps are currently performed.
func (s *Sweeper) IsEnabled() bool { return s.enabled.Load() }

// Interval returns the polling interval.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// SweepCount returns the number of sweeps performed.
func (s *Sweeper) SweepCount() uint64 { return s.sweepCount.Load() }

// LastStats returns the most recent sweep statistics, or nil.
func (s *Sweeper) LastStats() *SweepStats { return s.lastStats.Load() }

// SweepNow performs an immediate sweep, even when sweeping is paused.
func (s *Sweeper) SweepNow() *SweepStats {
	return s.sweep()
}

func (s *Sweeper) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.enabled.Load() {
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() *SweepStats {
	start := time.Now()
	stats := &SweepStats{Timestamp: start}

	for _, r := range s.ctx.Registries() {
		stats.Polled++
		if r.Alive() {
			continue
		}
		n, err := s.ctx.Teardown(r.ID())
		if err != nil {
			// already torn down as the child of an earlier dead registry
			continue
		}
		stats.TornDown += n
	}
	stats.SweepDuration = time.Since(start)

	s.sweepCount.Add(1)
	s.lastStats.Store(stats)
	s.ctx.metrics.sweeps.Inc()
	s.ctx.metrics.tornDown.Add(float64(stats.TornDown))
	s.ctx.logger("sweeper").Debugf("swept %d registries, tore down %d in %s", stats.Polled, stats.TornDown, stats.SweepDuration)
	return stats
}
