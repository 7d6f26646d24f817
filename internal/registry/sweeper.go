package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically demotes heartbeat-stale entries to offline.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// NewSweeper creates a sweeper ticking every interval and expiring
// entries whose heartbeat is older than timeout.
func NewSweeper(registry *Registry, interval, timeout time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Run blocks, sweeping on every tick until the context is cancelled.
// A panic inside a tick is logged and the loop resumes on the next tick;
// the sweep must not take the process down.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Dur("timeout", s.timeout).Msg("staleness sweeper started")

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			s.log.Info().Msg("staleness sweeper stopped")
			return
		}
	}
}

// Tick runs one sweep pass. Exposed for tests and manual triggers.
func (s *Sweeper) Tick() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("staleness sweep panicked; resuming next tick")
		}
	}()

	changed := s.registry.SweepStale(s.timeout)
	if len(changed) > 0 {
		s.log.Info().Strs("offline", changed).Msg("staleness sweep demoted entries")
	}
}
