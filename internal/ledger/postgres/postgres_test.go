package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/lokasan/atom-robots/internal/ledger"
)

// startPostgres runs a throwaway PostgreSQL container and returns its DSN.
// The test is skipped when Docker is unavailable.
func startPostgres(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("robots"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("postgres container unavailable: %v", err)
		return ""
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
		cancel()
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Skipf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Skipf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/robots?sslmode=disable", host, port.Port())
	waitForPostgres(t, dsn)
	return dsn
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
		}
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	dsn := startPostgres(t)
	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema twice: %v", err)
	}

	created := time.Now().Add(-3 * time.Second)
	id, err := db.RecordStart(ctx, ledger.Run{PID: 777, StartDate: created, StartNumber: 3})
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	run, err := db.FindActive(ctx, 777, created)
	if err != nil || run == nil {
		t.Fatalf("find active: run=%v err=%v", run, err)
	}
	if run.ID != id || run.StartNumber != 3 {
		t.Fatalf("unexpected run: %+v", run)
	}

	ok, err := db.RecordStop(ctx, id, 3)
	if err != nil || !ok {
		t.Fatalf("record stop: ok=%v err=%v", ok, err)
	}
	ok, err = db.RecordStop(ctx, id, 10)
	if err != nil || ok {
		t.Fatalf("second record stop: ok=%v err=%v", ok, err)
	}

	active, err := db.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active runs, got %+v", active)
	}

	for i := 0; i < 4; i++ {
		if _, err := db.RecordStart(ctx, ledger.Run{PID: 800 + i, StartDate: created.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("record start %d: %v", i, err)
		}
	}
	page, err := db.ListStats(ctx, ledger.StatsQuery{Offset: 1, Limit: 2, OrderBy: ledger.OrderDesc})
	if err != nil {
		t.Fatalf("list stats: %v", err)
	}
	if len(page) != 2 || page[0].PID != 802 || page[1].PID != 801 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestPostgresLargeStartNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	dsn := startPostgres(t)
	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	created := time.Now()
	const n = 3_000_000_000
	if _, err := db.RecordStart(ctx, ledger.Run{PID: 900, StartDate: created, StartNumber: n}); err != nil {
		t.Fatalf("record start: %v", err)
	}
	run, err := db.FindActive(ctx, 900, created)
	if err != nil || run == nil {
		t.Fatalf("find active: run=%v err=%v", run, err)
	}
	if run.StartNumber != n {
		t.Fatalf("start number truncated: %d", run.StartNumber)
	}
}
