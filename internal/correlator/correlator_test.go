package correlator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lokasan/atom-robots/internal/ledger"
	"github.com/lokasan/atom-robots/internal/ledger/sqlite"
	"github.com/lokasan/atom-robots/internal/procinfo"
)

// fakeTable is a controllable process table.
type fakeTable map[int]time.Time

func (f fakeTable) CreateTime(pid int) (time.Time, error) {
	ct, ok := f[pid]
	if !ok {
		return time.Time{}, procinfo.ErrNoProcess
	}
	return ct, nil
}

func (f fakeTable) Terminate(pid int) error {
	if _, ok := f[pid]; !ok {
		return procinfo.ErrNoProcess
	}
	delete(f, pid)
	return nil
}

func newLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "robots.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func TestResolveMatch(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	created := time.Date(2024, 2, 2, 8, 0, 0, 500_000_000, time.UTC)
	id, err := l.RecordStart(ctx, ledger.Run{PID: 321, StartDate: created, StartNumber: 9})
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	c := New(l, fakeTable{321: created})
	m, err := c.Resolve(ctx, 321)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Run.ID != id || !m.CreatedAt.Equal(created) {
		t.Fatalf("unexpected match: %+v", m)
	}
}

func TestResolveProcessNotFound(t *testing.T) {
	c := New(newLedger(t), fakeTable{})
	for _, pid := range []int{-1, 999999} {
		if _, err := c.Resolve(context.Background(), pid); !errors.Is(err, ErrProcessNotFound) {
			t.Fatalf("pid %d: expected ErrProcessNotFound, got %v", pid, err)
		}
	}
}

func TestResolveRunNotFound(t *testing.T) {
	c := New(newLedger(t), fakeTable{55: time.Now()})
	_, err := c.Resolve(context.Background(), 55)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("run-not-found must be distinct from process-not-found")
	}
}

// A pid whose old run finished and whose slot now holds an unrelated process
// never resolves to the old run.
func TestResolvePIDReuse(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	oldCreated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := l.RecordStart(ctx, ledger.Run{PID: 4000, StartDate: oldCreated})
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	if _, err := l.RecordStop(ctx, id, 10); err != nil {
		t.Fatalf("record stop: %v", err)
	}

	tbl := fakeTable{4000: oldCreated.Add(time.Hour)}
	c := New(l, tbl)
	if _, err := c.Resolve(ctx, 4000); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("recycled pid: expected ErrRunNotFound, got %v", err)
	}

	// even an active old run must not match a process with another creation time
	if _, err := l.RecordStart(ctx, ledger.Run{PID: 4001, StartDate: oldCreated}); err != nil {
		t.Fatalf("record start: %v", err)
	}
	tbl[4001] = oldCreated.Add(2 * time.Second)
	if _, err := c.Resolve(ctx, 4001); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("different creation time: expected ErrRunNotFound, got %v", err)
	}
}

func TestSelfRecordsOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	created := time.Now().Add(-5 * time.Second)
	id, err := l.RecordStart(ctx, ledger.Run{PID: 77, StartDate: created})
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	c := New(l, fakeTable{77: ledger.NormalizeTime(created)})
	ok, err := c.Self(ctx, 77, time.Now())
	if err != nil || !ok {
		t.Fatalf("self: ok=%v err=%v", ok, err)
	}
	// the run is finished now, so a second shutdown write does not resolve
	if _, err := c.Self(ctx, 77, time.Now()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on second self stop, got %v", err)
	}
	runs, _ := l.ListStats(ctx, ledger.StatsQuery{})
	if len(runs) != 1 || runs[0].ID != id || runs[0].Duration == nil || *runs[0].Duration < 4 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestDuration(t *testing.T) {
	base := time.Now()
	cases := []struct {
		now  time.Time
		want int64
	}{
		{base.Add(2500 * time.Millisecond), 2},
		{base, 0},
		{base.Add(-time.Minute), 0},
	}
	for _, c := range cases {
		if got := Duration(base, c.now); got != c.want {
			t.Errorf("Duration = %d, want %d", got, c.want)
		}
	}
}
