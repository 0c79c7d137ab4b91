package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lokasan/atom-robots/internal/history"
	"github.com/lokasan/atom-robots/internal/ledger"
)

// startClickHouse runs a ClickHouse container and returns its native address.
// The test is skipped when Docker is unavailable.
func startClickHouse(ctx context.Context, t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	c, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword(""),
		tcclickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("clickhouse container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Skipf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "9000")
	if err != nil {
		t.Skipf("container port: %v", err)
	}
	return host + ":" + port.Port()
}

func TestNewRejectsBadTable(t *testing.T) {
	_, err := New(context.Background(), Options{Addr: "127.0.0.1:1", Table: "events; DROP TABLE x"})
	if err == nil {
		t.Fatalf("expected invalid table error")
	}
}

func TestSinkSendAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	addr := startClickHouse(ctx, t)

	s, err := New(ctx, Options{Addr: addr, Table: "robot_events_test"})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = s.Close() }()

	run := ledger.Run{ID: 7, PID: 4321, StartDate: time.Now().Add(-10 * time.Second), StartNumber: 3_000_000_000}
	if err := s.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Run: run}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	d := int64(10)
	run.Duration = &d
	if err := s.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: time.Now(), Run: run}); err != nil {
		t.Fatalf("send stop: %v", err)
	}
	for _, typ := range []history.EventType{history.EventStart, history.EventStop} {
		n, err := s.Count(ctx, typ)
		if err != nil {
			t.Fatalf("count %s: %v", typ, err)
		}
		if n != 1 {
			t.Fatalf("expected 1 %s event, got %d", typ, n)
		}
	}
	var maxStart int64
	if err := s.conn.QueryRow(ctx, `SELECT max(start_number) FROM robot_events_test`).Scan(&maxStart); err != nil {
		t.Fatalf("read start number: %v", err)
	}
	if maxStart != 3_000_000_000 {
		t.Fatalf("start number truncated: %d", maxStart)
	}
}
