// Package api exposes user management and the birthday notification audit
// trail over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/db"
)

// UserRepository is the user side of the store
type UserRepository interface {
	CreateUser(ctx context.Context, user *db.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	ListUsers(ctx context.Context) ([]*db.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd db.UserUpdate) (*db.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// NotificationReader gives read-only access to birthday notification records
type NotificationReader interface {
	GetNotification(ctx context.Context, id uuid.UUID) (*db.BirthdayNotification, error)
	ListNotifications(ctx context.Context, f db.NotificationFilter) ([]*db.BirthdayNotification, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string   `json:"type"`
	Title  string   `json:"title"`
	Status int      `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger        *zap.Logger
	users         UserRepository
	notifications NotificationReader
}

func NewHandler(logger *zap.Logger, users UserRepository, notifications NotificationReader) *Handler {
	return &Handler{
		logger:        logger,
		users:         users,
		notifications: notifications,
	}
}

// CreateUser handles POST /v1/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	user, errs := validateCreate(req)
	if len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}

	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrEmailTaken) {
			h.writeError(w, http.StatusBadRequest, "duplicate_email", "Email already exists", "")
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create user", "")
		return
	}

	h.logger.Info("user created",
		zap.String("id", user.ID.String()),
		zap.String("timezone", user.Timezone),
	)

	writeJSON(w, http.StatusCreated, user)
}

// ListUsers handles GET /v1/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list users", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  users,
		"count": len(users),
	})
}

// GetUser handles GET /v1/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "user")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "user", id)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateUser handles PUT /v1/users/{id}; only the fields present change.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "user")
	if !ok {
		return
	}

	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	upd, errs := validateUpdate(req)
	if len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, db.ErrEmailTaken) {
			h.writeError(w, http.StatusBadRequest, "duplicate_email", "Email already exists", "")
			return
		}
		h.writeLookupError(w, err, "user", id)
		return
	}

	h.logger.Info("user updated", zap.String("id", id.String()))
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /v1/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "user")
	if !ok {
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		h.writeLookupError(w, err, "user", id)
		return
	}

	h.logger.Info("user deleted", zap.String("id", id.String()))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "User deleted successfully",
	})
}

// ListNotifications handles GET /v1/birthday-notifications?status=&year=&limit=&offset=
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.NotificationFilter{Limit: 20}

	if status := q.Get("status"); status != "" {
		if status != db.StatusPending && status != db.StatusSent && status != db.StatusFailed {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid status",
				"status must be one of: PENDING, SENT, FAILED")
			return
		}
		filter.Status = status
	}

	if yearStr := q.Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil || year <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid year", "year must be a positive integer")
			return
		}
		filter.Year = year
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			filter.Limit = l
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	records, err := h.notifications.ListNotifications(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list birthday notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   records,
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"count":  len(records),
	})
}

// GetNotification handles GET /v1/birthday-notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "notification")
	if !ok {
		return
	}

	record, err := h.notifications.GetNotification(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "notification", id)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, kind string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid "+kind+" ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, kind string, id uuid.UUID) {
	switch {
	case errors.Is(err, db.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "User not found", "")
		return
	case errors.Is(err, db.ErrNotificationNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	h.logger.Error("failed to load "+kind, zap.Error(err), zap.String("id", id.String()))
	h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load "+kind, "")
}

func (h *Handler) writeValidation(w http.ResponseWriter, errs []string) {
	writeProblem(w, ErrorResponse{
		Type:   "validation_error",
		Title:  "Invalid user data",
		Status: http.StatusBadRequest,
		Errors: errs,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeProblem(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
