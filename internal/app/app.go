// Package app assembles the birthday service from configuration. Both the
// daemon and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/api"
	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/circuitbreaker"
	"github.com/lalithlochan/birthdays/internal/config"
	"github.com/lalithlochan/birthdays/internal/db"
	"github.com/lalithlochan/birthdays/internal/metrics"
	"github.com/lalithlochan/birthdays/internal/redis"
	"github.com/lalithlochan/birthdays/internal/scheduler"
	"github.com/lalithlochan/birthdays/internal/sns"
	"github.com/lalithlochan/birthdays/internal/sqlitestore"
	"github.com/lalithlochan/birthdays/internal/sqs"
	"github.com/lalithlochan/birthdays/internal/worker"
)

// Store is everything the service needs from persistence. Both the Postgres
// repository and the SQLite store satisfy it.
type Store interface {
	worker.UserDirectory
	worker.NotificationStore
	api.UserRepository
	api.NotificationReader
	Health(ctx context.Context) error
}

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Clock      birthday.Clock
	Store      Store
	Redis      *redis.Client // nil when Redis is disabled or unreachable
	Sender     worker.Sender
	Breakers   []*circuitbreaker.CircuitBreaker
	Discoverer *worker.Discoverer
	Worker     *worker.Worker

	closers []func()
}

// New connects to the configured backends. A nil clock means the system
// clock, or SIMULATED_TIME when set.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, clock birthday.Clock) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Clock: clock}

	if a.Clock == nil {
		c, err := birthday.ClockFor(cfg.SimulatedTime)
		if err != nil {
			return nil, err
		}
		a.Clock = c
	}
	if cfg.SimulatedTime != "" {
		logger.Warn("running with simulated time", zap.Time("now", a.Clock.Now()))
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.connectRedis(ctx)

	if err := a.buildSender(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Discoverer = worker.NewDiscoverer(a.Store, a.Store, a.Clock, logger)
	a.Worker = worker.New(a.Store, a.Store, a.Sender, a.Clock, worker.Config{
		RetryDelay: cfg.RetryDelay,
		MaxRetries: cfg.MaxRetries,
	}, logger)
	if a.Redis != nil {
		a.Worker.WithClaims(redis.NewAttemptClaims(a.Redis, cfg.ClaimTTL, logger))
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, func() { _ = store.Close() })

	default:
		database, err := db.New(ctx, db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Store = db.NewRepository(database, a.Logger)
		a.closers = append(a.closers, database.Close)
	}
	return nil
}

// connectRedis is best effort: without Redis the service runs with no
// attempt claims and no rate limiting.
func (a *App) connectRedis(ctx context.Context) {
	cfg := a.Config
	if !cfg.RedisEnabled {
		return
	}

	client, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, a.Logger)
	if err != nil {
		a.Logger.Warn("redis unavailable, attempt claims and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		return
	}
	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
}

func (a *App) buildSender(ctx context.Context) error {
	cfg := a.Config
	var senders []worker.Sender

	for _, channel := range cfg.DeliveryChannels {
		s, err := a.newChannelSender(ctx, channel)
		if err != nil {
			return fmt.Errorf("failed to create %s sender: %w", channel, err)
		}
		if channel != "log" {
			s = a.protect(s)
		}
		senders = append(senders, s)
	}

	if len(senders) == 1 {
		a.Sender = senders[0]
	} else {
		fallback, err := worker.NewFallbackSender(a.Logger, senders...)
		if err != nil {
			return err
		}
		a.Sender = fallback
	}

	a.Logger.Info("delivery channels configured",
		zap.Strings("channels", cfg.DeliveryChannels),
		zap.String("sender", a.Sender.Name()),
	)
	return nil
}

func (a *App) newChannelSender(ctx context.Context, channel string) (worker.Sender, error) {
	cfg := a.Config

	switch channel {
	case "log":
		return worker.NewLogSender(a.Logger), nil
	case "ses":
		return worker.NewSESSender(ctx, worker.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			Endpoint:  cfg.AWSEndpoint,
		}, a.Logger)
	case "sns":
		return sns.NewPublisher(ctx, sns.Config{
			Region:   cfg.AWSRegion,
			TopicARN: cfg.SNSTopicARN,
			Endpoint: cfg.AWSEndpoint,
			Clock:    a.Clock,
		}, a.Logger)
	case "sqs":
		return sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.SQSQueueURL,
			Endpoint: cfg.AWSEndpoint,
			Clock:    a.Clock,
		}, a.Logger)
	case "webhook":
		return worker.NewWebhookSender(a.Logger, worker.WebhookConfig{
			URL:     cfg.WebhookURL,
			Timeout: cfg.WebhookTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown delivery channel %q", channel)
	}
}

func (a *App) protect(s worker.Sender) worker.Sender {
	breakerCfg := circuitbreaker.DefaultConfig(s.Name())
	breakerCfg.OnStateChange = func(name string, _, to circuitbreaker.State) {
		metrics.SetCircuitState(name, int(to))
	}
	breaker := circuitbreaker.New(breakerCfg, a.Logger)
	a.Breakers = append(a.Breakers, breaker)
	return circuitbreaker.NewProtectedSender(s, breaker, a.Logger)
}

// Router builds the HTTP surface
func (a *App) Router() http.Handler {
	opts := api.RouterOptions{
		HealthChecks: map[string]api.HealthCheck{"store": a.Store.Health},
		Breakers:     a.Breakers,
	}
	if a.Redis != nil {
		opts.HealthChecks["redis"] = a.Redis.Health
		opts.Limiter = redis.NewRateLimiter(a.Redis, a.Logger, redis.RateLimitConfig{
			Limit:  a.Config.APIRateLimit,
			Window: time.Minute,
		})
	}

	handler := api.NewHandler(a.Logger, a.Store, a.Store)
	return api.NewRouter(handler, a.Logger, opts)
}

// Scheduler builds the cron scheduler for both passes
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		DiscoverySpec: a.Config.DiscoveryCron,
		DeliverySpec:  a.Config.DeliveryCron,
	}, a.Discover, a.Deliver, a.Logger)
}

// Discover runs one discovery pass
func (a *App) Discover(ctx context.Context) error {
	_, err := a.Discoverer.Run(ctx)
	return err
}

// Deliver runs one delivery pass
func (a *App) Deliver(ctx context.Context) error {
	_, err := a.Worker.RunOnce(ctx)
	if errors.Is(err, context.Canceled) {
		a.Logger.Info("delivery pass stopped by shutdown")
		return nil
	}
	return err
}

// Close releases backends in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
