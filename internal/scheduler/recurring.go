package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Recurring invokes run on every interval while active reports pending work.
type Recurring struct {
	Interval time.Duration
	Active   func(ctx context.Context) (bool, error)
	Run      func(ctx context.Context) error
	Log      zerolog.Logger
}

// Start blocks until ctx is done.
func (r *Recurring) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.Log.Info().Dur("interval", r.Interval).Msg("recurring dispatch timer started")
	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("recurring dispatch timer stopped")
			return
		case <-ticker.C:
			r.fire(ctx)
		}
	}
}

func (r *Recurring) fire(ctx context.Context) {
	active, err := r.Active(ctx)
	if err != nil {
		r.Log.Error().Err(err).Msg("active job check failed")
		return
	}
	if !active {
		return
	}
	if err := r.Run(ctx); err != nil {
		r.Log.Error().Err(err).Msg("scheduled dispatch failed")
	}
}
