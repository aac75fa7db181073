package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/mailqueue-backend/internal/queue"
)

// TickQueue is the queue workers consume dispatch ticks from.
const TickQueue = "dispatch_ticks"

// AMQPScheduler delays ticks by parking them in a per-delay queue whose
// messages dead-letter into TickQueue once their TTL expires.
type AMQPScheduler struct {
	ch    *amqp.Channel
	guard Guard
	log   zerolog.Logger

	mu       sync.Mutex
	declared map[time.Duration]string
}

func NewAMQPScheduler(ch *amqp.Channel, guard Guard, log zerolog.Logger) (*AMQPScheduler, error) {
	if _, err := DeclareTickQueue(ch); err != nil {
		return nil, err
	}
	if guard == nil {
		guard = NewMemoryGuard()
	}
	return &AMQPScheduler{
		ch:       ch,
		guard:    guard,
		log:      log.With().Str("component", "amqp-scheduler").Logger(),
		declared: make(map[time.Duration]string),
	}, nil
}

// DeclareTickQueue declares the durable queue ticks are consumed from.
func DeclareTickQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		TickQueue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return q, fmt.Errorf("declare %s: %w", TickQueue, err)
	}
	return q, nil
}

func (s *AMQPScheduler) delayQueue(delay time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name, ok := s.declared[delay]; ok {
		return name, nil
	}
	name := fmt.Sprintf("dispatch_delay_%d", delay.Milliseconds())
	_, err := s.ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": TickQueue,
	})
	if err != nil {
		return "", fmt.Errorf("declare %s: %w", name, err)
	}
	s.declared[delay] = name
	return name, nil
}

func (s *AMQPScheduler) ScheduleOnce(ctx context.Context, delay time.Duration, tag string) error {
	ok, err := s.guard.Claim(ctx, tag, delay)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug().Str("tag", tag).Msg("tick already armed")
		return nil
	}

	name, err := s.delayQueue(delay)
	if err != nil {
		return err
	}
	body, err := json.Marshal(queue.Tick{Tag: tag, ArmedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	err = s.ch.Publish("", name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish tick: %w", err)
	}
	s.log.Debug().Str("tag", tag).Dur("delay", delay).Msg("tick armed")
	return nil
}
