package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// daemonize re-executes the binary in the background without the daemon
// flags and returns the child PID.
func daemonize(args []string, pidFile, logFile string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}
	newArgs := childArgs(args)
	if pidFile != "" {
		newArgs = append(newArgs, "--pidfile", pidFile)
	}

	// #nosec G204
	cmd := exec.Command(executable, newArgs...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil
	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	return cmd.Process.Pid, cmd.Process.Release()
}

// childArgs drops --daemonize, --pidfile and --logfile (both "--flag v" and
// "--flag=v" forms) from args.
func childArgs(args []string) []string {
	var out []string
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		name, _, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--daemonize":
			continue
		case "--pidfile", "--logfile":
			skipNext = !hasValue
			continue
		}
		out = append(out, arg)
	}
	return out
}

// writePidFile replaces the file atomically so readers never see a partial pid.
func writePidFile(pidFile string, pid int) error {
	return atomicWriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
