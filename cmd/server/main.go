// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mailqueue-backend/internal/app"
	"github.com/unclebandit/mailqueue-backend/internal/config"
	"github.com/unclebandit/mailqueue-backend/internal/controller"
	"github.com/unclebandit/mailqueue-backend/internal/handler"
	"github.com/unclebandit/mailqueue-backend/internal/logger"
	"github.com/unclebandit/mailqueue-backend/internal/queue"
	"github.com/unclebandit/mailqueue-backend/internal/scheduler"
	"github.com/unclebandit/mailqueue-backend/internal/service"
)

func main() {
	// Load .env
	envErr := godotenv.Load()

	cfg := config.Parse()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		log.Warn().Msg("⚠️ No .env file found, relying on OS environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	if err := wireScheduler(ctx, a, log); err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}

	if _, err := a.Secrets.Current(ctx); err != nil {
		log.Error().Err(err).Msg("loading trigger secret failed")
	}

	recurring := &scheduler.Recurring{
		Interval: cfg.TickInterval,
		Active:   a.Dispatcher.HasPendingWork,
		Run: func(ctx context.Context) error {
			_, err := a.Dispatcher.Tick(ctx)
			return err
		},
		Log: logger.Component(log, "recurring"),
	}
	go recurring.Start(ctx)

	router := controller.NewRouter(controller.Routes{
		Jobs: &controller.JobController{JobService: a.JobService, Log: logger.Component(log, "jobs-api")},
		Admin: &controller.AdminController{
			Dispatcher: a.Dispatcher,
			Secrets:    a.Secrets,
			Templates:  a.Templates,
			TriggerURL: cfg.TriggerURL,
			Log:        logger.Component(log, "admin-api"),
		},
		Trigger:     handler.NewTriggerHandler(a.Secrets, a.Dispatcher, log),
		Unsubscribe: &handler.UnsubscribeHandler{Subscribers: a.Subscribers, Log: logger.Component(log, "unsubscribe")},
		APIKeys:     cfg.AdminAPIKeys,
	})
	if len(cfg.AdminAPIKeys) == 0 {
		log.Warn().Msg("ADMIN_API_KEYS is empty, the admin API rejects every request")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("server stopped")
}

// wireScheduler attaches the delayed-tick scheduler. With AMQP configured,
// ticks are parked in RabbitMQ and consumed by cmd/worker; otherwise they run
// in-process through the in-memory queue.
func wireScheduler(ctx context.Context, a *app.App, log zerolog.Logger) error {
	amqpSched, err := a.AMQPScheduler()
	if err != nil {
		return err
	}
	if amqpSched != nil {
		a.UseScheduler(amqpSched)
		log.Info().Msg("delayed ticks go through amqp")
		return nil
	}

	q := queue.NewInMemoryQueue(3, log)
	worker := service.NewTickWorker(a.Dispatcher, log)
	if err := queue.StartTickSubscriber(ctx, q, worker.Handle, log); err != nil {
		return err
	}
	a.UseScheduler(scheduler.NewTimerScheduler(q, a.Guard(), log))
	log.Info().Msg("delayed ticks run in-process")
	return nil
}
