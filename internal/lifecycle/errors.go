package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrProgramNotFound means the robot executable could not be resolved.
	ErrProgramNotFound = errors.New("robot program not found")
	// ErrExitedEarly means the robot was gone before its creation time could be read.
	ErrExitedEarly = errors.New("robot exited right after start")
	// ErrSignal means the termination signal could not be delivered to a live process.
	ErrSignal = errors.New("signal delivery failed")
)

// MsgAllStopped is the result of a sweep, including one with nothing to stop.
const MsgAllStopped = "All robots have been stopped!"

func StartedMessage(pid int) string {
	return fmt.Sprintf("Robot started successfully. Its PID: %d", pid)
}

func StoppedMessage(pid int) string {
	return fmt.Sprintf("Robot stopped. Its PID: %d", pid)
}
