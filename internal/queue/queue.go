package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TopicDispatchTick carries delayed dispatcher invocations.
const TopicDispatchTick = "dispatch.tick"

// Tick asks for one dispatcher invocation. Tag names the job that armed it.
type Tick struct {
	Tag     string    `json:"tag"`
	ArmedAt time.Time `json:"armed_at"`
}

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers payloads to in-process subscribers with retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	backoff    time.Duration
	wg         sync.WaitGroup
	log        zerolog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(maxRetries int, log zerolog.Logger) *InMemoryQueue {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		log:        log.With().Str("component", "queue").Logger(),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.maxRetries,
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.wg.Done()
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		q.log.Warn().Err(err).
			Int("attempt", job.RetryCount).
			Int("max_retries", job.MaxRetries).
			Interface("payload", job.Payload).
			Msg("queued job failed")

		if job.RetryCount > job.MaxRetries {
			q.log.Error().Interface("payload", job.Payload).Msg("queued job permanently failed")
			return
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every in-flight delivery has returned.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// StartTickSubscriber routes dispatch ticks published on q to handle.
func StartTickSubscriber(ctx context.Context, q Queue, handle func(ctx context.Context, t Tick) error, log zerolog.Logger) error {
	return q.Subscribe(TopicDispatchTick, func(payload any) error {
		t, ok := payload.(Tick)
		if !ok {
			log.Warn().Interface("payload", payload).Msg("invalid tick payload, dropping")
			return nil // no retry
		}
		if ctx.Err() != nil {
			return nil
		}
		return handle(ctx, t)
	})
}
