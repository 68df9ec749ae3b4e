package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
	"github.com/lalithlochan/birthdays/internal/metrics"
)

// UserDirectory resolves the people being greeted
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]*db.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// NotificationStore persists one record per user per year
type NotificationStore interface {
	CreateIfAbsent(ctx context.Context, userID uuid.UUID, year int) (bool, error)
	FindDue(ctx context.Context, now time.Time, retryDelay time.Duration) ([]*db.BirthdayNotification, error)
	ApplyMutation(ctx context.Context, id uuid.UUID, m db.Mutation) error
}

// Claimer reserves a single attempt so overlapping passes don't both send.
// ok is false when another pass already holds the attempt.
type Claimer interface {
	Claim(ctx context.Context, notificationID uuid.UUID, retryCount int) (ok bool, err error)
}

// Worker runs the delivery pass
type Worker struct {
	users  UserDirectory
	store  NotificationStore
	sender Sender
	clock  birthday.Clock
	claims Claimer
	config Config
	logger *zap.Logger
}

type Config struct {
	RetryDelay time.Duration
	MaxRetries int
	// SendTimeout and WriteTimeout bound an attempt once it has started.
	// Neither is cut short by shutdown.
	SendTimeout  time.Duration
	WriteTimeout time.Duration
}

// DeliveryResult summarises one delivery pass
type DeliveryResult struct {
	Due      int
	Sent     int
	Retrying int
	Failed   int
	Skipped  int
	Errors   int
}

func New(users UserDirectory, store NotificationStore, sender Sender, clock birthday.Clock, cfg Config, logger *zap.Logger) *Worker {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 30 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Worker{
		users:  users,
		store:  store,
		sender: sender,
		clock:  clock,
		config: cfg,
		logger: logger,
	}
}

// WithClaims enables per-attempt claims
func (w *Worker) WithClaims(c Claimer) *Worker {
	w.claims = c
	return w
}

// RunOnce performs one delivery pass. An error means the due records could
// not be loaded (or ctx ended); failures of individual records only show up
// in the result.
func (w *Worker) RunOnce(ctx context.Context) (DeliveryResult, error) {
	var res DeliveryResult
	start := time.Now()
	defer func() { metrics.ObservePass(metrics.PassDelivery, time.Since(start)) }()

	now := w.clock.Now()

	due, err := w.store.FindDue(ctx, now, w.config.RetryDelay)
	if err != nil {
		w.logger.Error("failed to load due notifications", zap.Error(err))
		metrics.RecordPassFailure(metrics.PassDelivery)
		return res, fmt.Errorf("%w: find due notifications: %w", birthday.ErrStoreUnavailable, err)
	}
	res.Due = len(due)
	metrics.SetDueRecords(len(due))

	for _, notif := range due {
		if err := ctx.Err(); err != nil {
			w.logger.Warn("delivery pass interrupted", zap.Int("remaining", res.Due-res.total()))
			return res, err
		}

		outcome := w.processNotification(ctx, notif, now)
		res.add(outcome)
		metrics.RecordDelivery(outcome)
	}

	if res.Due > 0 {
		w.logger.Info("delivery pass complete",
			zap.Int("due", res.Due),
			zap.Int("sent", res.Sent),
			zap.Int("retrying", res.Retrying),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Int("errors", res.Errors),
		)
	}
	return res, nil
}

func (w *Worker) processNotification(ctx context.Context, notif *db.BirthdayNotification, now time.Time) string {
	log := w.logger.With(
		zap.String("notification_id", notif.ID.String()),
		zap.String("user_id", notif.UserID.String()),
		zap.Int("year", notif.Year),
	)

	if !birthday.CanTransition(notif.Status, db.StatusSent) {
		log.Warn("notification is no longer pending", zap.String("status", notif.Status))
		return metrics.OutcomeSkipped
	}

	user, err := w.users.GetUser(ctx, notif.UserID)
	if errors.Is(err, db.ErrUserNotFound) {
		log.Warn("user not found, leaving notification pending")
		return metrics.OutcomeSkipped
	}
	if err != nil {
		log.Error("failed to load user", zap.Error(err))
		return metrics.OutcomeError
	}

	local, sendErr := birthday.LocalTime(now, user.Timezone)
	if sendErr == nil && !birthday.IsDeliveryTime(local) {
		return metrics.OutcomeSkipped
	}

	if sendErr == nil && w.claims != nil {
		ok, err := w.claims.Claim(ctx, notif.ID, notif.RetryCount)
		switch {
		case err != nil:
			log.Warn("attempt claim unavailable, sending anyway", zap.Error(err))
		case !ok:
			log.Debug("attempt already claimed by another pass")
			metrics.RecordClaimRejected()
			return metrics.OutcomeSkipped
		}
	}

	// From here the attempt runs to completion even if shutdown has begun,
	// so every send gets a recorded outcome.
	if sendErr == nil {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.SendTimeout)
		sendErr = w.sender.Send(sendCtx, user)
		cancel()
	}

	m := birthday.NextState(notif, now, sendErr, w.config.MaxRetries)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.WriteTimeout)
	defer cancel()

	if err := w.store.ApplyMutation(writeCtx, notif.ID, m); err != nil {
		if errors.Is(err, db.ErrStaleRecord) {
			log.Warn("notification updated by another pass, outcome dropped", zap.String("status", m.Status))
			return metrics.OutcomeSkipped
		}
		log.Error("failed to record delivery outcome", zap.Error(err), zap.String("status", m.Status))
		return metrics.OutcomeError
	}

	if sendErr == nil {
		log.Info("birthday greeting sent", zap.String("sender", w.sender.Name()))
		return metrics.OutcomeSent
	}

	deliveryErr := &birthday.DeliveryError{NotificationID: notif.ID, Attempt: m.RetryCount, Err: sendErr}
	if m.Status == db.StatusFailed {
		log.Error("birthday greeting failed permanently",
			zap.Error(fmt.Errorf("%w: %w", birthday.ErrRetryExhausted, deliveryErr)),
			zap.Int("retry_count", m.RetryCount),
		)
		return metrics.OutcomeFailed
	}

	log.Warn("birthday greeting failed, will retry",
		zap.Error(deliveryErr),
		zap.Int("retry_count", m.RetryCount),
		zap.Duration("retry_after", w.config.RetryDelay),
	)
	return metrics.OutcomeRetrying
}

func (r *DeliveryResult) add(outcome string) {
	switch outcome {
	case metrics.OutcomeSent:
		r.Sent++
	case metrics.OutcomeRetrying:
		r.Retrying++
	case metrics.OutcomeFailed:
		r.Failed++
	case metrics.OutcomeSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

func (r DeliveryResult) total() int {
	return r.Sent + r.Retrying + r.Failed + r.Skipped + r.Errors
}
