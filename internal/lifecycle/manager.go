// Package lifecycle starts and stops robot processes and keeps the ledger in
// step with them. Every mutating operation runs under one exclusive lock.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lokasan/atom-robots/internal/correlator"
	"github.com/lokasan/atom-robots/internal/history"
	"github.com/lokasan/atom-robots/internal/ledger"
	"github.com/lokasan/atom-robots/internal/metrics"
	"github.com/lokasan/atom-robots/internal/procinfo"
)

// DefaultStopDelay separates successive terminations in a sweep.
const DefaultStopDelay = 30 * time.Millisecond

const historyTimeout = 5 * time.Second

// Skip reasons reported by the sweep.
const (
	skipGone     = "gone"
	skipRecycled = "recycled"
	skipSignal   = "signal"
)

type Manager struct {
	ledger  ledger.Ledger
	table   procinfo.Table
	corr    *correlator.Correlator
	program Program
	sink    history.Sink
	log     *slog.Logger
	delay   time.Duration
	now     func() time.Time
	sleep   func(time.Duration)

	// sem is the exclusive lock; Acquire honours the caller's context.
	sem *semaphore.Weighted
}

type Option func(*Manager)

func WithProgram(p Program) Option { return func(m *Manager) { m.program = p } }

func WithTable(t procinfo.Table) Option { return func(m *Manager) { m.table = t } }

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

func WithHistory(s history.Sink) Option { return func(m *Manager) { m.sink = s } }

// WithStopDelay sets the pause between sweep terminations; negative means none.
func WithStopDelay(d time.Duration) Option { return func(m *Manager) { m.delay = d } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func New(l ledger.Ledger, opts ...Option) *Manager {
	m := &Manager{
		ledger: l,
		table:  procinfo.System{},
		log:    slog.Default(),
		delay:  DefaultStopDelay,
		now:    time.Now,
		sleep:  time.Sleep,
		sem:    semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(m)
	}
	m.corr = correlator.New(m.ledger, m.table)
	return m
}

func (m *Manager) lock(ctx context.Context) error {
	start := time.Now()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.ObserveLockWait(time.Since(start))
	return nil
}

func (m *Manager) unlock() { m.sem.Release(1) }

// Start launches a robot counting from startNumber and records it as an
// active run. It returns once the run is recorded; the robot keeps running.
func (m *Manager) Start(ctx context.Context, startNumber int) (int, error) {
	if err := m.lock(ctx); err != nil {
		return 0, err
	}
	defer m.unlock()
	// once admitted the operation runs to completion
	ctx = context.WithoutCancel(ctx)

	cmd, err := m.program.Command(startNumber)
	if err != nil {
		return 0, err
	}
	outW, errW, err := m.program.Output.Writers(fmt.Sprintf("robot-%s", m.now().UTC().Format("20060102T150405.000")))
	if err != nil {
		return 0, err
	}
	closers := attachOutput(cmd, outW, errW)

	if err := cmd.Start(); err != nil {
		closeAll(closers)
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return 0, fmt.Errorf("%w: %v", ErrProgramNotFound, err)
		}
		return 0, fmt.Errorf("start robot: %w", err)
	}
	pid := cmd.Process.Pid

	// read before reaping: an exited child stays a zombie until Wait
	created, ctErr := m.table.CreateTime(pid)
	go func() {
		err := cmd.Wait()
		closeAll(closers)
		m.log.Debug("robot exited", "pid", pid, "err", err)
	}()
	if ctErr != nil {
		_ = m.table.Terminate(pid)
		if errors.Is(ctErr, procinfo.ErrNoProcess) {
			return 0, fmt.Errorf("%w: pid %d", ErrExitedEarly, pid)
		}
		return 0, fmt.Errorf("read creation time of %d: %w", pid, ctErr)
	}

	run := ledger.Run{StartDate: ledger.NormalizeTime(created), PID: pid, StartNumber: startNumber}
	id, err := m.ledger.RecordStart(ctx, run)
	if err != nil {
		// an unrecorded robot could never be stopped through the API
		if tErr := m.table.Terminate(pid); tErr != nil {
			m.log.Warn("terminate unrecorded robot", "pid", pid, "err", tErr)
		}
		m.log.Error("record start", "pid", pid, "err", err)
		return 0, err
	}
	run.ID = id
	run.UpdatedAt = m.now().UTC()

	metrics.IncStart()
	m.emit(ctx, history.EventStart, run)
	m.log.Info("robot started", "pid", pid, "run_id", id, "start_number", startNumber)
	return pid, nil
}

// Stop terminates one robot by pid, or every active robot when pid is 0.
func (m *Manager) Stop(ctx context.Context, pid int) (string, error) {
	if err := m.lock(ctx); err != nil {
		return "", err
	}
	defer m.unlock()
	ctx = context.WithoutCancel(ctx)

	if pid == 0 {
		return m.stopAll(ctx)
	}
	return m.stopOne(ctx, pid)
}

func (m *Manager) stopOne(ctx context.Context, pid int) (string, error) {
	match, err := m.corr.Resolve(ctx, pid)
	if err != nil {
		return "", err
	}
	// a process that vanished since Resolve counts as stopped
	if err := m.table.Terminate(pid); err != nil && !errors.Is(err, procinfo.ErrNoProcess) {
		m.log.Error("signal robot", "pid", pid, "err", err)
		return "", fmt.Errorf("%w: pid %d: %v", ErrSignal, pid, err)
	}
	if _, err := m.finish(ctx, match.Run, match.CreatedAt, metrics.ModeSingle); err != nil {
		return "", err
	}
	return StoppedMessage(pid), nil
}

// stopAll sweeps the active runs in ledger order. Runs whose process is gone
// or whose pid now belongs to another process are skipped.
func (m *Manager) stopAll(ctx context.Context) (string, error) {
	runs, err := m.ledger.ListActive(ctx)
	if err != nil {
		m.log.Error("list active runs", "err", err)
		return "", err
	}
	var (
		firstErr  error
		signalled bool
		skipped   int
	)
	for _, run := range runs {
		created, err := m.table.CreateTime(run.PID)
		if err != nil {
			m.skip(run, skipGone, err)
			skipped++
			continue
		}
		if !ledger.NormalizeTime(created).Equal(run.StartDate) {
			m.skip(run, skipRecycled, nil)
			skipped++
			continue
		}
		if signalled && m.delay > 0 {
			m.sleep(m.delay)
		}
		if err := m.table.Terminate(run.PID); err != nil {
			m.skip(run, skipSignal, err)
			skipped++
			continue
		}
		signalled = true
		if _, err := m.finish(ctx, run, created, metrics.ModeSweep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", firstErr
	}
	// skipped runs keep duration NULL; a robot that died without its own
	// shutdown write is reported here on every sweep
	m.log.Info("sweep finished", "active", len(runs), "skipped", skipped)
	return MsgAllStopped, nil
}

// finish records the duration of a signalled run. The write is a no-op when
// the robot already recorded its own shutdown.
func (m *Manager) finish(ctx context.Context, run ledger.Run, created time.Time, mode string) (bool, error) {
	now := m.now()
	dur := correlator.Duration(created, now)
	changed, err := m.ledger.RecordStop(ctx, run.ID, dur)
	if err != nil {
		m.log.Error("record stop", "pid", run.PID, "run_id", run.ID, "err", err)
		return false, err
	}
	run.Duration = &dur
	run.UpdatedAt = now.UTC()
	metrics.IncStop(mode)
	metrics.ObserveRunDuration(dur)
	m.emit(ctx, history.EventStop, run)
	m.log.Info("robot stopped", "pid", run.PID, "run_id", run.ID, "duration", dur, "mode", mode, "recorded", changed)
	return changed, nil
}

func (m *Manager) skip(run ledger.Run, reason string, err error) {
	metrics.IncStopSkipped(reason)
	m.log.Warn("skip robot", "pid", run.PID, "run_id", run.ID, "reason", reason, "err", err)
}

func (m *Manager) emit(ctx context.Context, typ history.EventType, run ledger.Run) {
	if m.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if err := m.sink.Send(ctx, history.Event{Type: typ, OccurredAt: m.now().UTC(), Run: run}); err != nil {
		m.log.Warn("history send", "type", typ, "run_id", run.ID, "err", err)
	}
}

// Stats pages through the ledger. It does not take the lock.
func (m *Manager) Stats(ctx context.Context, q ledger.StatsQuery) ([]ledger.Run, error) {
	return m.ledger.ListStats(ctx, q)
}

// Ping checks the ledger connection.
func (m *Manager) Ping(ctx context.Context) error { return m.ledger.Ping(ctx) }

// attachOutput wires robot stdout/stderr to the given writers, or to the null
// device, and returns what must be closed after the robot exits.
func attachOutput(cmd *exec.Cmd, outW, errW io.WriteCloser) []io.Closer {
	var closers []io.Closer
	if outW == nil || errW == nil {
		if null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0); err == nil {
			closers = append(closers, null)
			if outW == nil {
				cmd.Stdout = null
			}
			if errW == nil {
				cmd.Stderr = null
			}
		}
	}
	if outW != nil {
		cmd.Stdout = outW
		closers = append(closers, outW)
	}
	if errW != nil {
		cmd.Stderr = errW
		closers = append(closers, errW)
	}
	return closers
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}
