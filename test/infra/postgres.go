package infra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the lifecycle of the test database and pgx pool.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	cleanup   func(context.Context) error
}

// NewHarness connects to DATABASE_URL, or boots a Postgres container when
// SIGNUPFLOW_CONTAINER_TESTS=1, and applies migrations into an isolated
// schema. The test is skipped when neither is available.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" && os.Getenv("SIGNUPFLOW_CONTAINER_TESTS") != "1" {
		t.Skip("DATABASE_URL is empty and SIGNUPFLOW_CONTAINER_TESTS is not set; skipping integration test")
	}
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, dsn, err := StartPostgres16(ctx, dsn)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	pool, cleanup, err := ApplyMigrations(ctx, dsn, true)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("apply migrations: %v", err)
	}

	h := &Harness{container: container, pool: pool, cleanup: cleanup}
	t.Cleanup(h.Close)
	return h
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Close tears down resources.
func (h *Harness) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if h.pool != nil {
		h.pool.Close()
	}
	if h.cleanup != nil {
		_ = h.cleanup(ctx)
	}
	_ = h.container.Terminate(ctx)
}
