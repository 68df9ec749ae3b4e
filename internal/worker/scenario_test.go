package worker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
	"github.com/lalithlochan/birthdays/internal/redis"
	"github.com/lalithlochan/birthdays/internal/sqlitestore"
)

type scenario struct {
	store  *sqlitestore.Store
	clock  *birthday.FixedClock
	sender *MockSender
	disc   *Discoverer
	worker *Worker
	user   *db.User
}

// newScenario seeds a Jakarta user born on May 30 into an in-memory store
func newScenario(t *testing.T, at time.Time) *scenario {
	t.Helper()
	ctx := context.Background()

	store, err := sqlitestore.Open(ctx, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	user := &db.User{
		Name:     "Sari",
		Email:    "sari@example.com",
		Birthday: time.Date(1990, 5, 30, 0, 0, 0, 0, time.UTC),
		Timezone: "Asia/Jakarta",
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	clock := birthday.NewFixedClock(at)
	sender := &MockSender{}
	cfg := Config{RetryDelay: 30 * time.Minute, MaxRetries: 3}

	return &scenario{
		store:  store,
		clock:  clock,
		sender: sender,
		disc:   NewDiscoverer(store, store, clock, zap.NewNop()),
		worker: New(store, store, sender, clock, cfg, zap.NewNop()),
		user:   user,
	}
}

func (s *scenario) records(t *testing.T) []*db.BirthdayNotification {
	t.Helper()
	records, err := s.store.ListNotifications(context.Background(), db.NotificationFilter{})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	return records
}

func (s *scenario) discover(t *testing.T, at time.Time) {
	t.Helper()
	s.clock.Set(at)
	if _, err := s.disc.Run(context.Background()); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
}

func (s *scenario) deliver(t *testing.T, at time.Time) DeliveryResult {
	t.Helper()
	s.clock.Set(at)
	res, err := s.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	return res
}

var (
	jakarta, _     = time.LoadLocation("Asia/Jakarta")
	midnightUTC    = time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	nineJakarta    = time.Date(2024, 5, 30, 9, 0, 0, 0, jakarta)
	eightFiftyNine = time.Date(2024, 5, 30, 8, 59, 0, 0, jakarta)
)

func TestScenario_SendsAtNineLocal(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)

	res := s.deliver(t, nineJakarta)

	if s.sender.sendCalls != 1 {
		t.Fatalf("expected 1 send, got %d", s.sender.sendCalls)
	}
	if res.Sent != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	records := s.records(t)
	if len(records) != 1 || records[0].Status != db.StatusSent {
		t.Fatalf("expected one SENT record, got %+v", records)
	}
	if records[0].Year != 2024 || records[0].UserID != s.user.ID {
		t.Errorf("record for wrong user/year: %+v", records[0])
	}

	// Later ticks inside the same minute and beyond never resend.
	s.deliver(t, nineJakarta.Add(30*time.Second))
	s.deliver(t, nineJakarta.Add(24*time.Hour))
	if s.sender.sendCalls != 1 {
		t.Errorf("SENT record was attempted again: %d sends", s.sender.sendCalls)
	}
}

func TestScenario_NoSendBeforeNine(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)

	res := s.deliver(t, eightFiftyNine)

	if s.sender.sendCalls != 0 {
		t.Fatalf("expected no sends at 08:59, got %d", s.sender.sendCalls)
	}
	if res.Due != 1 || res.Skipped != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	records := s.records(t)
	if records[0].Status != db.StatusPending || records[0].RetryCount != 0 || records[0].LastAttemptAt != nil {
		t.Errorf("record must be untouched: %+v", records[0])
	}
}

func TestScenario_FailsAfterThreeAttempts(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)
	s.sender.shouldFail = true

	// Each eligible attempt is a 09:00 Jakarta tick, a day apart.
	attempts := []time.Time{nineJakarta, nineJakarta.AddDate(0, 0, 1), nineJakarta.AddDate(0, 0, 2)}
	wantStatus := []string{db.StatusPending, db.StatusPending, db.StatusFailed}

	for i, at := range attempts {
		s.deliver(t, at)

		rec := s.records(t)[0]
		if rec.RetryCount != i+1 || rec.Status != wantStatus[i] {
			t.Fatalf("after attempt %d: status=%s retry_count=%d", i+1, rec.Status, rec.RetryCount)
		}
		if rec.LastError == nil || *rec.LastError != "send failed" {
			t.Fatalf("after attempt %d: last_error not recorded", i+1)
		}
		if rec.LastAttemptAt == nil || !rec.LastAttemptAt.Equal(at) {
			t.Fatalf("after attempt %d: last_attempt_at = %v, want %v", i+1, rec.LastAttemptAt, at)
		}
	}

	s.deliver(t, nineJakarta.AddDate(0, 0, 3))
	if s.sender.sendCalls != 3 {
		t.Errorf("FAILED record was attempted again: %d sends", s.sender.sendCalls)
	}
}

func TestScenario_RetryDelayHonoured(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)
	s.sender.shouldFail = true

	s.deliver(t, nineJakarta)

	due, err := s.store.FindDue(context.Background(), nineJakarta.Add(10*time.Minute), 30*time.Minute)
	if err != nil {
		t.Fatalf("FindDue failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("record reconsidered before retry delay: %d due", len(due))
	}

	// A second tick in the same minute is also blocked by the delay.
	s.deliver(t, nineJakarta.Add(30*time.Second))
	if s.sender.sendCalls != 1 {
		t.Errorf("expected a single attempt, got %d", s.sender.sendCalls)
	}
}

func TestScenario_DiscoveryIsIdempotent(t *testing.T) {
	s := newScenario(t, midnightUTC)

	s.discover(t, midnightUTC)
	s.discover(t, midnightUTC.Add(3*time.Hour))

	records := s.records(t)
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	if records[0].Status != db.StatusPending || records[0].RetryCount != 0 {
		t.Errorf("record should be fresh PENDING: %+v", records[0])
	}
}

func TestScenario_DeletedUserLeavesRecordPending(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)

	if err := s.store.DeleteUser(context.Background(), s.user.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	res := s.deliver(t, nineJakarta)

	if s.sender.sendCalls != 0 {
		t.Errorf("no greeting for a deleted user, got %d sends", s.sender.sendCalls)
	}
	if res.Due != 1 || res.Skipped != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	records := s.records(t)
	if len(records) != 1 {
		t.Fatalf("record must be kept, got %d", len(records))
	}
	if records[0].Status != db.StatusPending || records[0].RetryCount != 0 || records[0].LastAttemptAt != nil {
		t.Errorf("record must be untouched: %+v", records[0])
	}
}

func TestScenario_StaleSnapshotCannotOverwrite(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)
	s.clock.Set(nineJakarta)

	// Two passes share a snapshot of the due record. Without claims both
	// send, but the second write loses the conditional update.
	due, err := s.store.FindDue(context.Background(), nineJakarta, 30*time.Minute)
	if err != nil || len(due) != 1 {
		t.Fatalf("FindDue = %d, %v", len(due), err)
	}

	first := s.worker.processNotification(context.Background(), due[0], nineJakarta)
	second := s.worker.processNotification(context.Background(), due[0], nineJakarta)

	if first != "sent" || second != "skipped" {
		t.Errorf("outcomes = %s, %s; want sent, skipped", first, second)
	}
	if rec := s.records(t)[0]; rec.Status != db.StatusSent || rec.RetryCount != 0 {
		t.Errorf("unexpected final record: %+v", rec)
	}
}

func TestScenario_OverlappingPassesSendOnce(t *testing.T) {
	s := newScenario(t, midnightUTC)
	s.discover(t, midnightUTC)
	s.clock.Set(nineJakarta)

	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	client, err := redis.New(context.Background(), redis.Config{Host: mr.Host(), Port: port}, zap.NewNop())
	if err != nil {
		t.Fatalf("redis connect failed: %v", err)
	}
	defer client.Close()
	s.worker.WithClaims(redis.NewAttemptClaims(client, redis.DefaultClaimTTL, zap.NewNop()))

	due, err := s.store.FindDue(context.Background(), nineJakarta, 30*time.Minute)
	if err != nil || len(due) != 1 {
		t.Fatalf("FindDue = %d, %v", len(due), err)
	}

	first := s.worker.processNotification(context.Background(), due[0], nineJakarta)
	second := s.worker.processNotification(context.Background(), due[0], nineJakarta)

	if first != "sent" || second != "skipped" {
		t.Errorf("outcomes = %s, %s; want sent, skipped", first, second)
	}
	if s.sender.sendCalls != 1 {
		t.Errorf("expected exactly one send, got %d", s.sender.sendCalls)
	}
}
