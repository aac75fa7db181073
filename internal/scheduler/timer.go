package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mailqueue-backend/internal/queue"
)

// TimerScheduler arms in-process timers that publish a dispatch tick on the
// queue when they fire.
type TimerScheduler struct {
	q     queue.Queue
	guard Guard
	log   zerolog.Logger

	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewTimerScheduler(q queue.Queue, guard Guard, log zerolog.Logger) *TimerScheduler {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	return &TimerScheduler{
		q:         q,
		guard:     guard,
		log:       log.With().Str("component", "timer-scheduler").Logger(),
		afterFunc: time.AfterFunc,
	}
}

func (s *TimerScheduler) ScheduleOnce(ctx context.Context, delay time.Duration, tag string) error {
	ok, err := s.guard.Claim(ctx, tag, delay)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug().Str("tag", tag).Msg("tick already armed")
		return nil
	}

	armed := time.Now()
	s.afterFunc(delay, func() {
		if err := s.q.Publish(queue.TopicDispatchTick, queue.Tick{Tag: tag, ArmedAt: armed}); err != nil {
			s.log.Error().Err(err).Str("tag", tag).Msg("publish tick failed")
		}
	})
	s.log.Debug().Str("tag", tag).Dur("delay", delay).Msg("tick armed")
	return nil
}
