//go:build !windows

package procinfo

import (
	"errors"
	"os"
	"syscall"
)

// terminateGroup sends SIGTERM to -pid so children of the robot stop too.
func terminateGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGTERM)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.ESRCH) {
		return err
	}
	// not a group leader (or group gone): fall back to the pid itself
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return ErrNoProcess
		}
		return err
	}
	return nil
}

func currentPID() int { return os.Getpid() }
