package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/metrics"
)

// Discoverer runs the daily discovery pass: it creates the year's PENDING
// record for every user whose birthday is today in UTC.
type Discoverer struct {
	users  UserDirectory
	store  NotificationStore
	clock  birthday.Clock
	logger *zap.Logger
}

// DiscoveryResult summarises one discovery pass
type DiscoveryResult struct {
	Scanned  int
	Matched  int
	Created  int
	Existing int
	Failed   int
}

func NewDiscoverer(users UserDirectory, store NotificationStore, clock birthday.Clock, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		users:  users,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Run performs one discovery pass. Running it again on the same day is a no-op.
func (d *Discoverer) Run(ctx context.Context) (DiscoveryResult, error) {
	var res DiscoveryResult
	start := time.Now()
	defer func() { metrics.ObservePass(metrics.PassDiscovery, time.Since(start)) }()

	today := d.clock.Now().UTC()
	year := today.Year()

	users, err := d.users.ListUsers(ctx)
	if err != nil {
		d.logger.Error("failed to list users", zap.Error(err))
		metrics.RecordPassFailure(metrics.PassDiscovery)
		return res, fmt.Errorf("%w: list users: %w", birthday.ErrStoreUnavailable, err)
	}
	res.Scanned = len(users)

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !birthday.IsBirthday(user.Birthday, today) {
			continue
		}
		res.Matched++

		created, err := d.store.CreateIfAbsent(ctx, user.ID, year)
		switch {
		case err != nil:
			res.Failed++
			metrics.RecordDiscovery(metrics.DiscoveryError)
			d.logger.Error("failed to create birthday notification",
				zap.Error(err),
				zap.String("user_id", user.ID.String()),
				zap.Int("year", year),
			)
		case created:
			res.Created++
			metrics.RecordDiscovery(metrics.DiscoveryCreated)
			d.logger.Info("birthday notification scheduled",
				zap.String("user_id", user.ID.String()),
				zap.Int("year", year),
				zap.String("timezone", user.Timezone),
			)
		default:
			res.Existing++
			metrics.RecordDiscovery(metrics.DiscoveryExisting)
		}
	}

	d.logger.Info("discovery pass complete",
		zap.String("date", today.Format(time.DateOnly)),
		zap.Int("scanned", res.Scanned),
		zap.Int("matched", res.Matched),
		zap.Int("created", res.Created),
		zap.Int("existing", res.Existing),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
