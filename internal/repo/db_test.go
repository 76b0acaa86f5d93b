package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/astro-chat-relay/internal/domain"
)

func TestOpen_Errors(t *testing.T) {
	missingDir := filepath.Join(t.TempDir(), "does-not-exist", "relay.db")
	cases := []struct {
		name, driver, dsn string
		check             func(error) bool
	}{
		{"unknown driver", "oracle", "x", func(err error) bool {
			return strings.Contains(err.Error(), "unsupported driver")
		}},
		{"blank postgres dsn", "postgres", "  ", func(err error) bool {
			return strings.Contains(err.Error(), "dsn is empty")
		}},
		{"sqlite parent missing", "sqlite", missingDir, os.IsNotExist},
	}
	for _, tc := range cases {
		db, err := Open(tc.driver, tc.dsn)
		if err == nil || db != nil {
			t.Fatalf("%s: expected error, got db=%v", tc.name, db)
		}
		if !tc.check(err) {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestOpen_SQLite(t *testing.T) {
	for _, driver := range []string{"sqlite", "", " SQLite "} {
		db, err := Open(driver, filepath.Join(t.TempDir(), "relay.db"))
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	}
}

func TestOpenSQLite_PragmasPoolAndSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journal string
	if err := db.Raw("PRAGMA journal_mode").Row().Scan(&journal); err != nil || strings.ToLower(journal) != "wal" {
		t.Fatalf("journal_mode=%q err=%v", journal, err)
	}
	for pragma, want := range map[string]int{"foreign_keys": 1, "busy_timeout": 5000} {
		var got int
		if err := db.Raw("PRAGMA " + pragma).Row().Scan(&got); err != nil || got != want {
			t.Fatalf("%s=%d err=%v", pragma, got, err)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections=%d", n)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Migrating twice is a no-op.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, m := range models() {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("missing table for %T", m)
		}
	}

	now := time.Now().UTC()
	s := &domain.ChatSession{ID: "s1", ProfileKey: "p", Snapshot: datatypes.JSON(`{}`), CreatedAt: now, ExpiresAt: now.Add(time.Hour), LastUpdated: now}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}
	var got domain.ChatSession
	if err := db.First(&got, "id = ?", "s1").Error; err != nil || got.ProfileKey != "p" {
		t.Fatalf("readback: err=%v got=%+v", err, got)
	}
}
