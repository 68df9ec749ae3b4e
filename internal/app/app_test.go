package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/config"
	"github.com/lalithlochan/birthdays/internal/db"
)

func sqliteConfig() *config.Config {
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = ":memory:"
	return cfg
}

func TestApp_EndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := birthday.NewFixedClock(time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))

	a, err := New(ctx, sqliteConfig(), zap.NewNop(), clock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	user := &db.User{
		Name:     "Sari",
		Email:    "sari@example.com",
		Birthday: time.Date(1990, 5, 30, 0, 0, 0, 0, time.UTC),
		Timezone: "Asia/Jakarta",
	}
	if err := a.Store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := a.Discover(ctx); err != nil {
		t.Fatalf("discover: %v", err)
	}

	clock.Set(time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC)) // 09:00 in Jakarta
	if err := a.Deliver(ctx); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	records, err := a.Store.ListNotifications(ctx, db.NotificationFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Status != db.StatusSent {
		t.Fatalf("expected one SENT record, got %+v", records)
	}
	if a.Sender.Name() != "log" {
		t.Errorf("sender = %s, want log", a.Sender.Name())
	}
}

func TestApp_SimulatedTime(t *testing.T) {
	cfg := sqliteConfig()
	cfg.SimulatedTime = "2024-05-30T09:00:00+07:00"

	a, err := New(context.Background(), cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	want := time.Date(2024, 5, 30, 2, 0, 0, 0, time.UTC)
	if !a.Clock.Now().Equal(want) {
		t.Errorf("clock = %v, want %v", a.Clock.Now(), want)
	}
}

func TestApp_FallbackChain(t *testing.T) {
	cfg := sqliteConfig()
	cfg.DeliveryChannels = []string{"webhook", "log"}
	cfg.WebhookURL = "http://127.0.0.1:1/birthday"

	a, err := New(context.Background(), cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if len(a.Breakers) != 1 {
		t.Errorf("expected a breaker for the webhook channel, got %d", len(a.Breakers))
	}
	if err := a.Sender.Send(context.Background(), &db.User{Name: "Sari"}); err != nil {
		t.Errorf("log fallback should succeed: %v", err)
	}
}

func TestApp_SenderConfigError(t *testing.T) {
	cfg := sqliteConfig()
	cfg.DeliveryChannels = []string{"ses"}

	if _, err := New(context.Background(), cfg, zap.NewNop(), nil); err == nil {
		t.Fatal("expected error for ses without a from address")
	}
}

func TestApp_RedisWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())

	cfg := sqliteConfig()
	cfg.RedisEnabled = true
	cfg.RedisHost = mr.Host()
	cfg.RedisPort = port

	a, err := New(context.Background(), cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Redis == nil {
		t.Fatal("redis client should be connected")
	}

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	var health struct {
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Checks["redis"] != "ok" || health.Checks["store"] != "ok" {
		t.Errorf("unexpected checks: %v", health.Checks)
	}
}

func TestApp_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	mr.Close()

	cfg := sqliteConfig()
	cfg.RedisEnabled = true
	cfg.RedisHost = mr.Host()
	cfg.RedisPort = port

	a, err := New(context.Background(), cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("unreachable redis should not be fatal: %v", err)
	}
	defer a.Close()

	if a.Redis != nil {
		t.Error("redis client should be nil")
	}
}

func TestApp_Scheduler(t *testing.T) {
	a, err := New(context.Background(), sqliteConfig(), zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	s := a.Scheduler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
