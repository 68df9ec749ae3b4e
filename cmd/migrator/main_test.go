package main

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/lalithlochan/birthdays/migrations"
)

func TestUpMigrations_OrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2;")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"000001_a.down.sql": {Data: []byte("SELECT 0;")},
		"README.md":         {Data: []byte("notes")},
		"old/000000.up.sql": {Data: []byte("SELECT 0;")},
	}

	names, err := upMigrations(fsys)
	if err != nil {
		t.Fatalf("upMigrations failed: %v", err)
	}
	if len(names) != 2 || names[0] != "000001_a.up.sql" || names[1] != "000002_b.up.sql" {
		t.Errorf("unexpected migrations: %v", names)
	}
}

func TestUpMigrations_Embedded(t *testing.T) {
	names, err := upMigrations(migrations.FS)
	if err != nil {
		t.Fatalf("upMigrations failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %v", names)
	}
	if names[0] != "000001_create_users.up.sql" {
		t.Errorf("users table must be created first, got %s", names[0])
	}
}

func TestDatabaseURL_PrefersEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/birthdays")

	url, err := databaseURL()
	if err != nil {
		t.Fatalf("databaseURL failed: %v", err)
	}
	if url != "postgres://u:p@db:5432/birthdays" {
		t.Errorf("url = %s", url)
	}
}

func TestEmbeddedSchema_KeepsRecordsAndDropsUnusedIndex(t *testing.T) {
	notifications, err := fs.ReadFile(migrations.FS, "000002_create_birthday_notifications.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if strings.Contains(strings.ToUpper(string(notifications)), "ON DELETE CASCADE") {
		t.Error("deleting a user must not delete its notification records")
	}

	users, err := fs.ReadFile(migrations.FS, "000001_create_users.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if strings.Contains(string(users), "idx_users_birthday_month_day") {
		t.Error("discovery matches birthdays in Go; the month/day index is unused")
	}
}
