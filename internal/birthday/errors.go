package birthday

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrStoreUnavailable marks a failure to enumerate users or due records;
	// the current pass is abandoned.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRetryExhausted is reported when a record moves to FAILED
	ErrRetryExhausted = errors.New("retries exhausted")

	ErrInvalidTimezone = errors.New("invalid timezone")
)

// DeliveryError wraps a failed send for one record
type DeliveryError struct {
	NotificationID uuid.UUID
	Attempt        int
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver notification %s (attempt %d): %v", e.NotificationID, e.Attempt, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
