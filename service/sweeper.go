package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SweepTask is one unit of periodic cleanup. It returns how many entries
// it removed.
type SweepTask struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically prunes expired challenges, sessions and cache
// entries so the in-memory backends stay bounded without external TTLs.
type Sweeper struct {
	interval time.Duration
	tasks    []SweepTask
	log      zerolog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. Zero interval defaults to one minute.
func NewSweeper(interval time.Duration, log zerolog.Logger, tasks ...SweepTask) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{interval: interval, tasks: tasks, log: log, now: time.Now}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := s.now()
	for _, task := range s.tasks {
		removed, err := task.Run(ctx, now)
		if err != nil {
			s.log.Warn().Err(err).Str("task", task.Name).Msg("sweep failed")
			continue
		}
		if removed > 0 {
			s.log.Debug().Str("task", task.Name).Int("removed", removed).Msg("swept")
		}
	}
}
