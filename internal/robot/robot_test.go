package robot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lokasan/atom-robots/internal/ledger"
	"github.com/lokasan/atom-robots/internal/ledger/sqlite"
	"github.com/lokasan/atom-robots/internal/procinfo"
)

// syncBuffer guards a bytes.Buffer written by Run and read by the test.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseCount(t *testing.T) {
	if n, err := ParseCount(" 42 "); err != nil || n != 42 {
		t.Fatalf("ParseCount: %d %v", n, err)
	}
	if n, err := ParseCount("-3"); err != nil || n != -3 {
		t.Fatalf("negative count: %d %v", n, err)
	}
	if _, err := ParseCount("five"); err == nil {
		t.Fatalf("expected error for non-numeric count")
	}
}

func TestRunCountsUntilCancelled(t *testing.T) {
	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Count: 5, Interval: 10 * time.Millisecond, Out: &out, Log: quiet()})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for strings.Count(out.String(), "\n") < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("robot did not count: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "5" || lines[1] != "6" || lines[2] != "7" {
		t.Fatalf("unexpected sequence: %v", lines)
	}
}

// The test process plays the robot: its run is recorded with its real
// creation time and must be finished by the shutdown write.
func TestRunRecordsOwnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robots.db")
	db, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	pid, created, err := procinfo.Self(procinfo.System{})
	if err != nil {
		t.Fatalf("own creation time: %v", err)
	}
	id, err := db.RecordStart(ctx, ledger.Run{PID: pid, StartDate: created})
	if err != nil {
		t.Fatalf("record start: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := Run(rctx, Config{Count: 1, Interval: 10 * time.Millisecond, DSN: "sqlite://" + path, Out: io.Discard, Log: quiet()}); err != nil {
		t.Fatalf("run: %v", err)
	}

	runs, err := db.ListStats(ctx, ledger.StatsQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].Active() {
		t.Fatalf("own run not finished: %+v", runs)
	}
	if *runs[0].Duration < 0 {
		t.Fatalf("negative duration: %d", *runs[0].Duration)
	}
}

func TestRunWithoutLedgerRunIsHarmless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	_ = db.Close()

	var logs syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Run(ctx, Config{DSN: "sqlite://" + path, Out: io.Discard, Log: slog.New(slog.NewTextHandler(&logs, nil))})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), "run already finished") {
		t.Fatalf("expected run-not-found to be logged, got %q", logs.String())
	}
}

// missingTable reports every process as gone.
type missingTable struct{}

func (missingTable) CreateTime(int) (time.Time, error) { return time.Time{}, procinfo.ErrNoProcess }

func (missingTable) Terminate(int) error { return procinfo.ErrNoProcess }

func TestRunLogsIdentity(t *testing.T) {
	var logs syncBuffer
	lg := slog.New(slog.NewTextHandler(&logs, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := Run(ctx, Config{Count: 1, Interval: 10 * time.Millisecond, Out: io.Discard, Log: lg}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), "robot running") {
		t.Fatalf("expected identity line, got %q", logs.String())
	}

	// an unreadable own creation time is logged, counting still happens
	var out, warns syncBuffer
	lg = slog.New(slog.NewTextHandler(&warns, nil))
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	if err := Run(ctx2, Config{Count: 9, Interval: 10 * time.Millisecond, Out: &out, Log: lg, Table: missingTable{}}); err != nil {
		t.Fatalf("run with missing table: %v", err)
	}
	if !strings.HasPrefix(out.String(), "9\n") {
		t.Fatalf("robot did not count: %q", out.String())
	}
	if !strings.Contains(warns.String(), "read own creation time") {
		t.Fatalf("expected warning, got %q", warns.String())
	}
}
