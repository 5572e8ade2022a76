package cache

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Sweeper periodically evicts expired RankCache entries on a jittered
// interval so many bot instances sweeping in lockstep don't contend at the
// same moment.
type Sweeper struct {
	cache    *RankCache
	min, max time.Duration
}

// NewSweeper constructs a Sweeper that fires at a random interval in [min, max).
func NewSweeper(cache *RankCache, min, max time.Duration) *Sweeper {
	return &Sweeper{cache: cache, min: min, max: max}
}

// Run blocks, sweeping until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		interval := s.nextInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			removed := s.cache.Sweep()
			if removed > 0 {
				slog.Debug("rank cache swept", "removed", removed)
			}
		}
	}
}

func (s *Sweeper) nextInterval() time.Duration {
	if s.max <= s.min {
		return s.min
	}
	span := s.max - s.min
	return s.min + time.Duration(rand.Int63n(int64(span)))
}
