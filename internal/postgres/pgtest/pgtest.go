// Package pgtest opens a migrated PostgreSQL database for store tests.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"casanexus/internal/postgres"
)

const testLockKey = 7_240_301

// Open connects using the PG* environment variables, applies migrations and
// truncates every table. The test is skipped when no server is reachable.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env("PGHOST", "localhost"),
		env("PGPORT", "5432"),
		env("PGUSER", "casanexus"),
		env("PGPASSWORD", "dev_password_change_in_prod"),
		env("PGDATABASE", "casanexus_test"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("skipping postgres tests: could not connect to postgres: %v", err)
	}

	// packages run in parallel against one database; hold a session lock
	// until cleanup so truncation in one package cannot hit another
	lock, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("failed to reserve connection: %v", err)
	}
	if _, err := lock.ExecContext(context.Background(), `SELECT pg_advisory_lock($1)`, testLockKey); err != nil {
		t.Fatalf("failed to take test lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = lock.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, testLockKey)
		_ = lock.Close()
		_ = db.Close()
	})

	if err := postgres.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE TABLE reservations, listings, events, event_relay_offsets`); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}

	return db
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
