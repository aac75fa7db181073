// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/mailqueue-backend/internal/app"
	"github.com/unclebandit/mailqueue-backend/internal/config"
	"github.com/unclebandit/mailqueue-backend/internal/logger"
	"github.com/unclebandit/mailqueue-backend/internal/queue"
	"github.com/unclebandit/mailqueue-backend/internal/scheduler"
	"github.com/unclebandit/mailqueue-backend/internal/service"
)

type outcome int

const (
	ack outcome = iota
	requeue
	drop
)

// processDelivery runs one tick and decides what happens to the message. A
// failed tick is requeued once; a second failure is dropped because the
// recurring timer keeps dispatching while work remains.
func processDelivery(ctx context.Context, body []byte, redelivered bool, handle func(context.Context, queue.Tick) error) outcome {
	var tick queue.Tick
	if err := json.Unmarshal(body, &tick); err != nil {
		return drop
	}
	if err := handle(ctx, tick); err != nil {
		if redelivered {
			return drop
		}
		return requeue
	}
	return ack
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Parse()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		log.Warn().Msg("⚠️ No .env file found, relying on OS environment variables")
	}
	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required for the worker")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	sched, err := a.AMQPScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}
	a.UseScheduler(sched)

	ch, err := a.AMQP.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open a channel")
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		log.Fatal().Err(err).Msg("Failed to set prefetch")
	}
	q, err := scheduler.DeclareTickQueue(ch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to declare queue")
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register consumer")
	}

	worker := service.NewTickWorker(a.Dispatcher, log)
	log.Info().Str("queue", q.Name).Msg("Worker running, waiting for ticks...")
	consume(ctx, msgs, worker.Handle, logger.Component(log, "consumer"))
	log.Info().Msg("worker stopped")
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, handle func(context.Context, queue.Tick) error, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				return
			}
			switch processDelivery(ctx, d.Body, d.Redelivered, handle) {
			case ack:
				_ = d.Ack(false)
			case requeue:
				_ = d.Nack(false, true)
			case drop:
				log.Warn().Bytes("body", d.Body).Bool("redelivered", d.Redelivered).Msg("dropping tick")
				_ = d.Ack(false)
			}
		}
	}
}
