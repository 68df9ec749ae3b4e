// Package scheduler triggers the discovery and delivery passes on cron
// schedules evaluated in UTC.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc runs one pass. Its error is logged; it never stops the schedule.
type JobFunc func(ctx context.Context) error

type Config struct {
	DiscoverySpec    string        // default "0 0 * * *"
	DeliverySpec     string        // default "* * * * *"
	DiscoveryTimeout time.Duration // default 5m
	DeliveryTimeout  time.Duration // default 1m
}

type Scheduler struct {
	cron     *cron.Cron
	config   Config
	discover JobFunc
	deliver  JobFunc
	logger   *zap.Logger

	discoveryID cron.EntryID
	deliveryID  cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, discover, deliver JobFunc, logger *zap.Logger) *Scheduler {
	if cfg.DiscoverySpec == "" {
		cfg.DiscoverySpec = "0 0 * * *"
	}
	if cfg.DeliverySpec == "" {
		cfg.DeliverySpec = "* * * * *"
	}
	if cfg.DiscoveryTimeout == 0 {
		cfg.DiscoveryTimeout = 5 * time.Minute
	}
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = time.Minute
	}

	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		config:   cfg,
		discover: discover,
		deliver:  deliver,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers both passes and starts the cron engine.
func (s *Scheduler) Start() error {
	var err error
	s.discoveryID, err = s.cron.AddJob(s.config.DiscoverySpec, s.job("discovery", s.discover, s.config.DiscoveryTimeout))
	if err != nil {
		return fmt.Errorf("invalid discovery schedule %q: %w", s.config.DiscoverySpec, err)
	}

	// A slow tick must not overlap the next one.
	delivery := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()})).
		Then(s.job("delivery", s.deliver, s.config.DeliveryTimeout))
	s.deliveryID, err = s.cron.AddJob(s.config.DeliverySpec, delivery)
	if err != nil {
		return fmt.Errorf("invalid delivery schedule %q: %w", s.config.DeliverySpec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("discovery", s.config.DiscoverySpec),
		zap.String("delivery", s.config.DeliverySpec),
	)
	return nil
}

// Stop ends the schedule and lets running passes finish. If ctx ends first,
// running passes are cancelled and stop before their next record.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("scheduler stop timed out, cancelling running passes")
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) job(name string, fn JobFunc, timeout time.Duration) cron.Job {
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Error("scheduled pass failed",
				zap.String("pass", name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			return
		}
		s.logger.Debug("scheduled pass finished",
			zap.String("pass", name),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// cronLogger routes cron's own logging into zap. Its per-tick info lines go to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
