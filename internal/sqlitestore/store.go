// Package sqlitestore keeps users and birthday notifications in an embedded
// SQLite database. It mirrors db.Repository for single-node deployments, the
// operator CLI and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lalithlochan/birthdays/internal/db"
)

// Timestamps are stored as fixed-width UTC text so string comparison orders them.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	email       TEXT NOT NULL UNIQUE,
	birthday    TEXT NOT NULL,
	timezone    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS birthday_notifications (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	year             INTEGER NOT NULL,
	status           TEXT NOT NULL DEFAULT 'PENDING',
	retry_count      INTEGER NOT NULL DEFAULT 0,
	last_attempt_at  TEXT,
	last_error       TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (user_id, year)
);

CREATE INDEX IF NOT EXISTS idx_birthday_notifications_status
	ON birthday_notifications (status, last_attempt_at);
`

// Store implements the user directory and notification store on SQLite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: keeps :memory: databases shared and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := initSchema(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))

	return &Store{db: sqlDB, logger: logger, now: time.Now}, nil
}

func initSchema(ctx context.Context, sqlDB *sql.DB) error {
	_, err := sqlDB.ExecContext(ctx, schema)
	return err
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Health checks the database handle
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func isUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	return errors.As(err, &sqlErr) &&
		(sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*db.User, error) {
	var (
		u                              db.User
		id, birthday, created, updated string
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &birthday, &u.Timezone, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if u.Birthday, err = parseTime(birthday); err != nil {
		return nil, fmt.Errorf("parse birthday: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

func scanNotification(row scanner) (*db.BirthdayNotification, error) {
	var (
		n                    db.BirthdayNotification
		id, userID           string
		created, updated     string
		lastAttempt, lastErr sql.NullString
	)
	err := row.Scan(&id, &userID, &n.Year, &n.Status, &n.RetryCount, &lastAttempt, &lastErr, &created, &updated)
	if err != nil {
		return nil, err
	}

	if n.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse notification id: %w", err)
	}
	if n.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if lastAttempt.Valid {
		t, err := parseTime(lastAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_attempt_at: %w", err)
		}
		n.LastAttemptAt = &t
	}
	if lastErr.Valid {
		msg := lastErr.String
		n.LastError = &msg
	}
	if n.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &n, nil
}
