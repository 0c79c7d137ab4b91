//go:build !windows

package lifecycle

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr starts the robot in a new session: pgid == pid, so a
// group signal reaches its children, and signals aimed at the daemon's
// terminal do not reach it.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
