package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User is a person who receives a birthday greeting.
// Birthday is stored at 00:00:00 UTC; only month and day are meaningful.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Birthday  time.Time `json:"birthday"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BirthdayNotification tracks delivery of one user's greeting for one year
type BirthdayNotification struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Year          int        `json:"year"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Status constants
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// Mutation is the outcome of one delivery attempt, applied atomically.
// It only applies while the record is still PENDING with RetryCount equal
// to ExpectedRetryCount.
type Mutation struct {
	Status             string
	RetryCount         int
	LastAttemptAt      time.Time
	LastError          *string
	ExpectedRetryCount int
}

// UserUpdate carries the fields of a partial user update; nil means unchanged
type UserUpdate struct {
	Name     *string
	Email    *string
	Birthday *time.Time
	Timezone *string
}

// NotificationFilter narrows ListNotifications
type NotificationFilter struct {
	Status string
	Year   int
	Limit  int
	Offset int
}

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrEmailTaken           = errors.New("email already exists")
	ErrStaleRecord          = errors.New("notification changed concurrently")
)
