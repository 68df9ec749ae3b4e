package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultClaimTTL outlives a delivery tick and stays well under the retry delay,
// so a claim never blocks the next legitimate attempt.
const DefaultClaimTTL = 10 * time.Minute

// AttemptClaims hands out one claim per (notification, attempt). A pass that
// loses the claim skips the record for that tick.
type AttemptClaims struct {
	client *Client
	ttl    time.Duration
	owner  string
	logger *zap.Logger
}

func NewAttemptClaims(client *Client, ttl time.Duration, logger *zap.Logger) *AttemptClaims {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	host, _ := os.Hostname()

	return &AttemptClaims{
		client: client,
		ttl:    ttl,
		owner:  fmt.Sprintf("%s:%d", host, os.Getpid()),
		logger: logger,
	}
}

func claimKey(notificationID uuid.UUID, retryCount int) string {
	return fmt.Sprintf("birthday:attempt:%s:%d", notificationID, retryCount)
}

// Claim reserves the attempt identified by the record's current retry count.
func (a *AttemptClaims) Claim(ctx context.Context, notificationID uuid.UUID, retryCount int) (bool, error) {
	key := claimKey(notificationID, retryCount)

	ok, err := a.client.rdb.SetNX(ctx, key, a.owner, a.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		a.logger.Debug("attempt already claimed", zap.String("key", key))
	}
	return ok, nil
}

// Holder returns who owns the claim, or "" when nobody does.
func (a *AttemptClaims) Holder(ctx context.Context, notificationID uuid.UUID, retryCount int) (string, error) {
	val, err := a.client.rdb.Get(ctx, claimKey(notificationID, retryCount)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return val, nil
}
