// internal/service/worker.go
package service

import (
    "context"

    "github.com/rs/zerolog"

    "github.com/unclebandit/mailqueue-backend/internal/queue"
)

// TickRunner runs one dispatcher invocation.
type TickRunner interface {
    Tick(ctx context.Context) (*TickResult, error)
}

// TickWorker processes delayed dispatcher ticks
type TickWorker struct {
    Dispatcher TickRunner
    Log        zerolog.Logger
}

func NewTickWorker(d TickRunner, log zerolog.Logger) *TickWorker {
    return &TickWorker{
        Dispatcher: d,
        Log:        log.With().Str("component", "tick-worker").Logger(),
    }
}

// Handle runs one invocation for t. Errors are returned so the transport
// can redeliver.
func (w *TickWorker) Handle(ctx context.Context, t queue.Tick) error {
    res, err := w.Dispatcher.Tick(ctx)
    if err != nil {
        w.Log.Error().Err(err).Str("tag", t.Tag).Msg("tick failed")
        return err
    }
    w.Log.Debug().
        Str("tag", t.Tag).
        Int64("job_id", res.JobID).
        Bool("idle", res.Idle).
        Msg("tick processed")
    return nil
}
