package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// TestAuditLogImmutabilityBlocksUpdate verifies that UPDATE operations on
// audit_log are rejected by the database trigger.
func TestAuditLogImmutabilityBlocksUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	insertTestAuditEntry(ctx, t, db, "audit_it_update")

	_, err = db.ExecContext(ctx, `
		UPDATE audit_log SET details = 'rewritten' WHERE id = 'audit_it_update'
	`)
	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}

	cleanupAuditLog(ctx, db)
}

// TestAuditLogImmutabilityBlocksBareDelete verifies that DELETE without
// the reset opt-in is rejected.
func TestAuditLogImmutabilityBlocksBareDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	insertTestAuditEntry(ctx, t, db, "audit_it_delete")

	_, err = db.ExecContext(ctx, `DELETE FROM audit_log WHERE id = 'audit_it_delete'`)
	if err == nil {
		t.Fatal("expected DELETE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}

	cleanupAuditLog(ctx, db)
}

// TestAuditLogResetOptInAllowsDelete verifies that ResetAuditEntries can
// wipe the log through the transaction-scoped opt-in.
func TestAuditLogResetOptInAllowsDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	insertTestAuditEntry(ctx, t, db, "audit_it_reset")

	store := NewPostgresStore(db)
	if err := store.ResetAuditEntries(ctx); err != nil {
		t.Fatalf("ResetAuditEntries: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count); err != nil {
		t.Fatalf("count audit entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty audit log after reset, got %d rows", count)
	}
}

func insertTestAuditEntry(ctx context.Context, t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (id, recorded_at, actor, action, details, related_ids, hash, previous_hash)
		VALUES ($1, '2025-03-14T09:26:53Z', 'ops.chan', 'Document Upload', 'integration test entry', '[]'::jsonb, 'abcdef0123456789', '0000000000000000')
	`, id)
	if err != nil {
		t.Fatalf("insert test audit entry: %v", err)
	}
}

func cleanupAuditLog(ctx context.Context, db *sql.DB) {
	store := NewPostgresStore(db)
	_ = store.ResetAuditEntries(ctx)
}

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "cargoops")
	pass := envOr("POSTGRES_PASSWORD", "cargoops")
	dbname := envOr("POSTGRES_DB", "cargoops_test")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
