package birthday

import (
	"time"

	"github.com/lalithlochan/birthdays/internal/db"
)

// CanTransition reports whether a record may move from one status to another.
// SENT and FAILED are terminal; PENDING may stay PENDING after a failed attempt.
func CanTransition(from, to string) bool {
	if from != db.StatusPending {
		return false
	}
	switch to {
	case db.StatusPending, db.StatusSent, db.StatusFailed:
		return true
	}
	return false
}

// NextState builds the mutation recording one attempt on n made at now.
// sendErr nil means the greeting was delivered.
func NextState(n *db.BirthdayNotification, now time.Time, sendErr error, maxRetries int) db.Mutation {
	m := db.Mutation{
		Status:             db.StatusSent,
		RetryCount:         n.RetryCount,
		LastAttemptAt:      now,
		LastError:          n.LastError,
		ExpectedRetryCount: n.RetryCount,
	}
	if sendErr == nil {
		return m
	}

	msg := sendErr.Error()
	m.RetryCount = n.RetryCount + 1
	m.LastError = &msg
	m.Status = db.StatusPending
	if m.RetryCount >= maxRetries {
		m.Status = db.StatusFailed
	}
	return m
}
