// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/mailqueue-backend/internal/bulk"
	"github.com/unclebandit/mailqueue-backend/internal/config"
	"github.com/unclebandit/mailqueue-backend/internal/db"
	"github.com/unclebandit/mailqueue-backend/internal/email"
	"github.com/unclebandit/mailqueue-backend/internal/events"
	"github.com/unclebandit/mailqueue-backend/internal/logger"
	"github.com/unclebandit/mailqueue-backend/internal/options"
	"github.com/unclebandit/mailqueue-backend/internal/recipients"
	"github.com/unclebandit/mailqueue-backend/internal/repository"
	"github.com/unclebandit/mailqueue-backend/internal/scheduler"
	"github.com/unclebandit/mailqueue-backend/internal/secret"
	"github.com/unclebandit/mailqueue-backend/internal/service"
	"github.com/unclebandit/mailqueue-backend/internal/storage/postgres"
)

// App holds the wired components shared by the server, the worker and the CLI.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	SQL   *sql.DB
	PG    *postgres.DB
	Redis *redis.Client
	AMQP  *amqp.Connection

	Jobs        *repository.JobRepository
	Items       *repository.ItemRepository
	Subscribers *repository.SubscriberRepository
	Templates   *repository.TemplateRepository

	Secrets    *secret.Manager
	Dispatcher *service.Dispatcher
	JobService *service.JobService

	closers []func()
}

// New connects every configured backend and wires the services. The
// dispatcher starts without a scheduler; callers attach one with UseScheduler.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Jobs = &repository.JobRepository{DB: a.SQL}
	a.Items = &repository.ItemRepository{DB: a.SQL}
	a.Subscribers = &repository.SubscriberRepository{DB: a.SQL}
	a.Templates = &repository.TemplateRepository{DB: a.SQL}

	var store secret.Store = &repository.OptionRepository{DB: a.SQL}
	if a.Redis != nil {
		store = options.NewRedisStore(a.Redis)
	}
	a.Secrets = secret.NewManager(store, cfg.LegacySecrets, cfg.SecretGrace, log)

	awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	sender, err := a.sender(awsCfg, awsErr)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicJobs)
		a.closers = append(a.closers, func() { _ = kp.Close() })
		publisher = kp
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopicJobs).Msg("job events go to kafka")
	}

	a.Dispatcher = service.NewDispatcher(service.Dispatcher{
		Jobs:        a.Jobs,
		Items:       a.Items,
		Subscribers: a.Subscribers,
		Templates:   a.Templates,
		Personalizer: &service.UnsubscribePersonalizer{
			Tokens:  a.Subscribers,
			BaseURL: cfg.SiteURL,
			Log:     logger.Component(log, "personalizer"),
		},
		Sender: sender,
		Events: publisher,
		Config: service.DispatcherConfig{
			Location:         cfg.Location,
			ContinueDelay:    cfg.ContinueDelay,
			InterleaveDelay:  cfg.InterleaveDelay,
			ExpiredRetention: cfg.ExpiredRetention,
		},
	}, log)

	loader := bulk.NewLoader(a.PG, cfg.FallbackStmtBytes, log)
	a.JobService = &service.JobService{
		Jobs:      a.Jobs,
		Items:     a.Items,
		Templates: a.Templates,
		Resolver:  recipients.NewResolver(a.Subscribers),
		Creator:   postgres.NewJobWriter(a.PG, loader),
		MaxRate:   cfg.MaxRatePerMinute,
	}
	if cfg.S3Bucket != "" {
		if awsErr != nil {
			a.Close()
			return nil, fmt.Errorf("aws config: %w", awsErr)
		}
		a.JobService.Uploads = recipients.NewS3Source(awsCfg, cfg.S3Bucket)
	}

	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	sqlDB, err := db.Open(a.Config.DatabaseURL, a.Log)
	if err != nil {
		return err
	}
	a.SQL = sqlDB
	a.closers = append(a.closers, func() { _ = sqlDB.Close() })

	pg, err := postgres.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return err
	}
	a.PG = pg
	a.closers = append(a.closers, pg.Close)
	if err := pg.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	a.Log.Info().Msg("db: migrations applied")

	if a.Config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.Log.Info().Str("addr", a.Config.RedisAddr).Msg("redis connected")
	}

	if a.Config.AMQPURL != "" {
		conn, err := amqp.Dial(a.Config.AMQPURL)
		if err != nil {
			return fmt.Errorf("amqp dial: %w", err)
		}
		a.AMQP = conn
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.Log.Info().Msg("amqp connected")
	}
	return nil
}

func (a *App) sender(awsCfg aws.Config, awsErr error) (email.Sender, error) {
	if a.Config.SESFromEmail == "" {
		a.Log.Warn().Msg("SES_FROM_EMAIL not set, emails are only logged")
		return email.LogSender{Log: logger.Component(a.Log, "log-sender")}, nil
	}
	if awsErr != nil {
		return nil, fmt.Errorf("aws config: %w", awsErr)
	}
	return email.NewSESSender(awsCfg, a.Config.SESFromEmail)
}

// Guard returns the cross-process guard when Redis is configured, else an
// in-process one.
func (a *App) Guard() scheduler.Guard {
	if a.Redis != nil {
		return scheduler.NewRedisGuard(a.Redis)
	}
	return scheduler.NewMemoryGuard()
}

// AMQPScheduler opens a channel and returns a scheduler that parks ticks in
// RabbitMQ. It returns nil when AMQP is not configured.
func (a *App) AMQPScheduler() (*scheduler.AMQPScheduler, error) {
	if a.AMQP == nil {
		return nil, nil
	}
	ch, err := a.AMQP.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	a.closers = append(a.closers, func() { _ = ch.Close() })
	return scheduler.NewAMQPScheduler(ch, a.Guard(), a.Log)
}

func (a *App) UseScheduler(s service.Scheduler) {
	a.Dispatcher.Scheduler = s
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
