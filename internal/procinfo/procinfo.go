// Package procinfo reads process creation times from the OS and sends
// group-wide termination signals to robot processes.
package procinfo

import (
	"errors"
	"time"
)

// ErrNoProcess is returned when the pid does not name a live process.
// Zombies count as gone.
var ErrNoProcess = errors.New("procinfo: no such process")

// Table is the slice of the OS process table the control plane relies on.
type Table interface {
	// CreateTime returns the OS-reported creation time of pid, normalised to
	// UTC milliseconds. Repeated calls for the same process return the same value.
	CreateTime(pid int) (time.Time, error)
	// Terminate asks the process group led by pid to shut down. When the group
	// is gone the pid itself is signalled; ErrNoProcess if neither exists.
	Terminate(pid int) error
}

// System is the Table backed by the running operating system.
type System struct{}

var _ Table = System{}

func (System) CreateTime(pid int) (time.Time, error) {
	if pid <= 0 {
		return time.Time{}, ErrNoProcess
	}
	ms, err := createTimeMillis(pid)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (System) Terminate(pid int) error {
	if pid <= 0 {
		return ErrNoProcess
	}
	return terminateGroup(pid)
}

// Self returns the pid and creation time of the calling process. The pid is
// set even when the creation time cannot be read.
func Self(t Table) (int, time.Time, error) {
	pid := currentPID()
	ct, err := t.CreateTime(pid)
	return pid, ct, err
}
