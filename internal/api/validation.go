package api

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserRequest is the body of POST and PUT /v1/users. Absent fields are nil,
// which matters for partial updates.
type UserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Birthday *string `json:"birthday"`
	Timezone *string `json:"timezone"`
}

// parseBirthday accepts RFC3339 or YYYY-MM-DD and keeps the UTC calendar date.
func parseBirthday(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.DateOnly, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse birthday %q: %w", s, err)
		}
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// validateCreate checks a full user and returns it ready to insert.
func validateCreate(req UserRequest) (*db.User, []string) {
	var errs []string
	user := &db.User{}

	if blank(req.Name) {
		errs = append(errs, "Name is required")
	} else {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if blank(req.Email) {
		errs = append(errs, "Email is required")
	} else if email := normalizeEmail(*req.Email); !emailPattern.MatchString(email) {
		errs = append(errs, "Please enter a valid email address")
	} else {
		user.Email = email
	}

	if blank(req.Birthday) {
		errs = append(errs, "Birthday is required")
	} else if b, err := parseBirthday(*req.Birthday); err != nil {
		errs = append(errs, "Birthday must be a valid date")
	} else {
		user.Birthday = b
	}

	if blank(req.Timezone) {
		errs = append(errs, "Timezone is required")
	} else if !birthday.ValidTimezone(*req.Timezone) {
		errs = append(errs, "Invalid timezone")
	} else {
		user.Timezone = *req.Timezone
	}

	return user, errs
}

// validateUpdate checks the fields present in a partial update.
func validateUpdate(req UserRequest) (db.UserUpdate, []string) {
	var upd db.UserUpdate

	if req.Name == nil && req.Email == nil && req.Birthday == nil && req.Timezone == nil {
		return upd, []string{"At least one field must be provided for update"}
	}

	var errs []string

	if req.Name != nil {
		if blank(req.Name) {
			errs = append(errs, "Name cannot be empty")
		} else {
			name := strings.TrimSpace(*req.Name)
			upd.Name = &name
		}
	}

	if req.Email != nil {
		switch {
		case blank(req.Email):
			errs = append(errs, "Email cannot be empty")
		case !emailPattern.MatchString(normalizeEmail(*req.Email)):
			errs = append(errs, "Please enter a valid email address")
		default:
			email := normalizeEmail(*req.Email)
			upd.Email = &email
		}
	}

	if req.Birthday != nil {
		b, err := parseBirthday(*req.Birthday)
		if err != nil {
			errs = append(errs, "Birthday must be a valid date")
		} else {
			upd.Birthday = &b
		}
	}

	if req.Timezone != nil {
		switch {
		case blank(req.Timezone):
			errs = append(errs, "Timezone cannot be empty")
		case !birthday.ValidTimezone(*req.Timezone):
			errs = append(errs, "Invalid timezone")
		default:
			upd.Timezone = req.Timezone
		}
	}

	return upd, errs
}

// normalizeEmail makes email uniqueness case-insensitive
func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
