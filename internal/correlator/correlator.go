// Package correlator maps a pid to the active ledger run it belongs to.
// A pid alone is not an identity: the OS recycles them. A run matches only
// when both the pid and the OS creation time agree with the ledger.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lokasan/atom-robots/internal/ledger"
	"github.com/lokasan/atom-robots/internal/procinfo"
)

var (
	// ErrProcessNotFound means the OS has no live process with the pid.
	ErrProcessNotFound = errors.New("process not found")
	// ErrRunNotFound means the process exists but is not one of our active runs.
	ErrRunNotFound = errors.New("run not found")
)

// Match is a resolved pid: the active run and the creation time the OS reported.
type Match struct {
	Run       ledger.Run
	CreatedAt time.Time
}

type Correlator struct {
	ledger ledger.Ledger
	table  procinfo.Table
}

func New(l ledger.Ledger, t procinfo.Table) *Correlator {
	if t == nil {
		t = procinfo.System{}
	}
	return &Correlator{ledger: l, table: t}
}

// Resolve returns the active run for pid.
func (c *Correlator) Resolve(ctx context.Context, pid int) (Match, error) {
	if pid < 0 {
		return Match{}, fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	}
	created, err := c.table.CreateTime(pid)
	if err != nil {
		if errors.Is(err, procinfo.ErrNoProcess) {
			return Match{}, fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return Match{}, err
	}
	created = ledger.NormalizeTime(created)
	run, err := c.ledger.FindActive(ctx, pid, created)
	if err != nil {
		return Match{}, err
	}
	if run == nil {
		return Match{}, fmt.Errorf("%w: pid %d", ErrRunNotFound, pid)
	}
	return Match{Run: *run, CreatedAt: created}, nil
}

// Self resolves the calling process and records its duration. It is what a
// robot runs on shutdown; the write is a no-op when the manager got there first.
func (c *Correlator) Self(ctx context.Context, pid int, now time.Time) (bool, error) {
	m, err := c.Resolve(ctx, pid)
	if err != nil {
		return false, err
	}
	return c.ledger.RecordStop(ctx, m.Run.ID, Duration(m.CreatedAt, now))
}

// Duration is the whole seconds between created and now, never negative.
func Duration(created, now time.Time) int64 {
	d := now.Sub(created)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
