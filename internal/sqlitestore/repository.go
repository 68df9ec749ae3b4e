package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/db"
)

const userColumns = `id, name, email, birthday, timezone, created_at, updated_at`

const notificationColumns = `id, user_id, year, status, retry_count, last_attempt_at, last_error, created_at, updated_at`

// CreateUser inserts a user; ID is assigned when empty
func (s *Store) CreateUser(ctx context.Context, user *db.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Name,
		user.Email,
		formatTime(user.Birthday),
		user.Timezone,
		formatTime(now),
		formatTime(now),
	)
	if isUniqueViolation(err) {
		return db.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	user.Birthday = user.Birthday.UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("timezone", user.Timezone),
	)
	return nil
}

// GetUser returns db.ErrUserNotFound when no user has the given id
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by creation time
func (s *Store) ListUsers(ctx context.Context) ([]*db.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*db.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateUser applies the non-nil fields of upd and returns the stored user
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd db.UserUpdate) (*db.User, error) {
	var birthday *string
	if upd.Birthday != nil {
		b := formatTime(*upd.Birthday)
		birthday = &b
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			name = COALESCE(?, name),
			email = COALESCE(?, email),
			birthday = COALESCE(?, birthday),
			timezone = COALESCE(?, timezone),
			updated_at = ?
		WHERE id = ?`,
		upd.Name, upd.Email, birthday, upd.Timezone, formatTime(s.now()), id.String(),
	)
	if isUniqueViolation(err) {
		return nil, db.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, db.ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user. Its notification records stay as the audit trail.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return db.ErrUserNotFound
	}

	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

// CreateIfAbsent inserts a PENDING record for (userID, year).
// created is false when the pair already has a record.
func (s *Store) CreateIfAbsent(ctx context.Context, userID uuid.UUID, year int) (bool, error) {
	now := formatTime(s.now())

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO birthday_notifications (id, user_id, year, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id, year) DO NOTHING`,
		uuid.New().String(), userID.String(), year, db.StatusPending, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert birthday notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// FindDue returns PENDING records never attempted or last attempted at
// least retryDelay before now.
func (s *Store) FindDue(ctx context.Context, now time.Time, retryDelay time.Duration) ([]*db.BirthdayNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM birthday_notifications
		WHERE status = ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?)
		ORDER BY created_at ASC, id ASC`,
		db.StatusPending, formatTime(now.Add(-retryDelay)),
	)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectNotifications(rows)
}

// ApplyMutation writes the outcome of one attempt. It returns db.ErrStaleRecord
// if the record is no longer PENDING at the expected retry count.
func (s *Store) ApplyMutation(ctx context.Context, id uuid.UUID, m db.Mutation) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE birthday_notifications
		SET status = ?, retry_count = ?, last_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ? AND retry_count = ?`,
		m.Status,
		m.RetryCount,
		formatTime(m.LastAttemptAt),
		m.LastError,
		formatTime(s.now()),
		id.String(),
		db.StatusPending,
		m.ExpectedRetryCount,
	)
	if err != nil {
		return fmt.Errorf("update birthday notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", db.ErrStaleRecord, id)
	}
	return nil
}

// GetNotification retrieves a birthday notification by ID
func (s *Store) GetNotification(ctx context.Context, id uuid.UUID) (*db.BirthdayNotification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM birthday_notifications WHERE id = ?`, id.String())

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query birthday notification: %w", err)
	}
	return n, nil
}

// ListNotifications pages through records, newest first
func (s *Store) ListNotifications(ctx context.Context, f db.NotificationFilter) ([]*db.BirthdayNotification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM birthday_notifications
		WHERE (? = '' OR status = ?) AND (? = 0 OR year = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		f.Status, f.Status, f.Year, f.Year, limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query birthday notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]*db.BirthdayNotification, error) {
	var out []*db.BirthdayNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan birthday notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
