package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// Repository handles database operations for users and birthday notifications
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Health pings the underlying pool
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

const userColumns = `id, name, email, birthday, timezone, created_at, updated_at`

const notificationColumns = `
	id, user_id, year, status, retry_count,
	last_attempt_at, last_error, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Birthday, &u.Timezone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Birthday = u.Birthday.UTC()
	return &u, nil
}

func scanNotification(row pgx.Row) (*BirthdayNotification, error) {
	var n BirthdayNotification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Year,
		&n.Status,
		&n.RetryCount,
		&n.LastAttemptAt,
		&n.LastError,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateUser inserts a user; ID is assigned when empty
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, name, email, birthday, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Birthday.UTC(),
		user.Timezone,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		r.logger.Error("failed to create user", zap.Error(err), zap.String("user_id", user.ID.String()))
		return fmt.Errorf("insert user: %w", err)
	}

	r.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("timezone", user.Timezone),
	)
	return nil
}

// GetUser returns ErrUserNotFound when no user has the given id
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by creation time
func (r *Repository) ListUsers(ctx context.Context) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*User
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
func (r *Repository) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error) {
	var birthday *time.Time
	if upd.Birthday != nil {
		b := upd.Birthday.UTC()
		birthday = &b
	}

	query := `
		UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			birthday = COALESCE($4, birthday),
			timezone = COALESCE($5, timezone),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, id, upd.Name, upd.Email, birthday, upd.Timezone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes a user. Its notification records stay as the audit trail.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	r.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

// CreateIfAbsent inserts a PENDING record for (userID, year).
// created is false when the pair already has a record.
func (r *Repository) CreateIfAbsent(ctx context.Context, userID uuid.UUID, year int) (bool, error) {
	query := `
		INSERT INTO birthday_notifications (id, user_id, year, status, retry_count)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (user_id, year) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query, uuid.New(), userID, year, StatusPending)
	if err != nil {
		return false, fmt.Errorf("insert birthday notification: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// FindDue returns PENDING records never attempted or last attempted at
// least retryDelay before now.
func (r *Repository) FindDue(ctx context.Context, now time.Time, retryDelay time.Duration) ([]*BirthdayNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM birthday_notifications
		WHERE status = $1 AND (last_attempt_at IS NULL OR last_attempt_at <= $2)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, StatusPending, now.Add(-retryDelay))
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// ApplyMutation writes the outcome of one attempt. It returns ErrStaleRecord
// if the record is no longer PENDING at the expected retry count.
func (r *Repository) ApplyMutation(ctx context.Context, id uuid.UUID, m Mutation) error {
	query := `
		UPDATE birthday_notifications
		SET status = $2, retry_count = $3, last_attempt_at = $4, last_error = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6 AND retry_count = $7
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id,
		m.Status,
		m.RetryCount,
		m.LastAttemptAt.UTC(),
		m.LastError,
		StatusPending,
		m.ExpectedRetryCount,
	)
	if err != nil {
		r.logger.Error("failed to update birthday notification",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("update birthday notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrStaleRecord, id)
	}
	return nil
}

// GetNotification retrieves a birthday notification by ID
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID) (*BirthdayNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM birthday_notifications WHERE id = $1`

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query birthday notification: %w", err)
	}
	return n, nil
}

// ListNotifications pages through records, newest first
func (r *Repository) ListNotifications(ctx context.Context, f NotificationFilter) ([]*BirthdayNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM birthday_notifications
		WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR year = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}

	rows, err := r.db.Pool().Query(ctx, query, f.Status, f.Year, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query birthday notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func collectNotifications(rows pgx.Rows) ([]*BirthdayNotification, error) {
	var out []*BirthdayNotification
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
