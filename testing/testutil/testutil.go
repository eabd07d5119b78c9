package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/adapters/postgres"
)

// PostgresURLEnv names the variable holding the integration database URL.
// Postgres-backed tests are skipped when it is unset.
const PostgresURLEnv = "TEST_DATABASE_URL"

// PostgresURL returns the integration database URL, or "" when none is set.
func PostgresURL() string {
	return strings.TrimSpace(os.Getenv(PostgresURLEnv))
}

// WaitForPostgres opens connStr and pings it until it answers or ctx ends.
func WaitForPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open(postgres.DriverPgx, connStr)
	if err != nil {
		return nil, fmt.Errorf("testutil: open postgres: %w", err)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}

		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("testutil: postgres not ready: %w", err)
		case <-ticker.C:
		}
	}
}

// UniqueSchema returns a schema name that no other test run uses.
// The result is a plain identifier accepted by the postgres adapter.
func UniqueSchema(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// DropSchema removes schema and everything in it.
func DropSchema(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdentifier(schema)+" CASCADE")
	return err
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// PostgresEventStore returns an EventStore over a migrated throwaway schema
// with the Account events registered. The schema is dropped when t ends.
// t is skipped when PostgresURLEnv is unset or in -short mode.
func PostgresEventStore(t testing.TB, opts ...kestrel.Option) *kestrel.EventStore {
	t.Helper()

	connStr := PostgresURL()
	if connStr == "" || testing.Short() {
		t.Skipf("%s not set, skipping postgres integration test", PostgresURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := WaitForPostgres(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	schema := UniqueSchema("kestrel_test")
	t.Cleanup(func() {
		_ = DropSchema(context.Background(), db, schema)
		_ = db.Close()
	})

	adapter, err := postgres.NewAdapterWithDB(db, postgres.WithSchema(schema))
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}

	store := kestrel.New(adapter, opts...)
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}
	RegisterTestEvents(store)
	return store
}
