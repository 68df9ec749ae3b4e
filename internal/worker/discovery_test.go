package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

func newUser(month time.Month, day int, tz string) *db.User {
	return &db.User{
		ID:       uuid.New(),
		Name:     "User",
		Email:    uuid.NewString() + "@example.com",
		Birthday: time.Date(1990, month, day, 0, 0, 0, 0, time.UTC),
		Timezone: tz,
	}
}

func TestDiscoverer_Run(t *testing.T) {
	today := newUser(time.May, 30, "Asia/Jakarta")
	alsoToday := newUser(time.May, 30, "America/New_York")
	tomorrow := newUser(time.May, 31, "UTC")

	dir := &MockDirectory{users: map[uuid.UUID]*db.User{
		today.ID:     today,
		alsoToday.ID: alsoToday,
		tomorrow.ID:  tomorrow,
	}}
	store := &MockStore{}
	clock := birthday.NewFixedClock(time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))

	d := NewDiscoverer(dir, store, clock, zap.NewNop())

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Scanned != 3 || res.Matched != 2 || res.Created != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if !store.created[today.ID] || !store.created[alsoToday.ID] {
		t.Error("expected records for both birthday users")
	}
	if store.created[tomorrow.ID] {
		t.Error("no record expected for tomorrow's birthday")
	}

	res, err = d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res.Created != 0 || res.Existing != 2 {
		t.Errorf("second run must only find existing records: %+v", res)
	}
}

func TestDiscoverer_Run_UsesUTCDate(t *testing.T) {
	// 2024-05-30T22:00Z is already May 31 in Jakarta; discovery still uses the UTC date.
	user := newUser(time.May, 31, "Asia/Jakarta")
	dir := &MockDirectory{users: map[uuid.UUID]*db.User{user.ID: user}}
	store := &MockStore{}
	clock := birthday.NewFixedClock(time.Date(2024, 5, 30, 22, 0, 0, 0, time.UTC))

	res, err := NewDiscoverer(dir, store, clock, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Matched != 0 {
		t.Errorf("expected no match on UTC May 30, got %+v", res)
	}
}

func TestDiscoverer_Run_ListFails(t *testing.T) {
	dir := &MockDirectory{listErr: errors.New("connection reset")}
	clock := birthday.NewFixedClock(time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))

	_, err := NewDiscoverer(dir, &MockStore{}, clock, zap.NewNop()).Run(context.Background())
	if !errors.Is(err, birthday.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestDiscoverer_Run_CreateFailsPerUser(t *testing.T) {
	user := newUser(time.May, 30, "UTC")
	dir := &MockDirectory{users: map[uuid.UUID]*db.User{user.ID: user}}
	store := &MockStore{createErr: errors.New("deadlock detected")}
	clock := birthday.NewFixedClock(time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))

	res, err := NewDiscoverer(dir, store, clock, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("per-user failures must not fail the pass: %v", err)
	}
	if res.Failed != 1 || res.Created != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}
