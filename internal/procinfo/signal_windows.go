//go:build windows

package procinfo

import (
	"os"
	"syscall"
)

var (
	kernel32                     = syscall.NewLazyDLL("kernel32.dll")
	procGenerateConsoleCtrlEvent = kernel32.NewProc("GenerateConsoleCtrlEvent")
	procTerminateProcess         = kernel32.NewProc("TerminateProcess")
)

const (
	ctrlBreakEvent   = 1
	processTerminate = 0x0001
)

func exists(pid int) bool {
	_, err := createTimeMillis(pid)
	return err == nil
}

// terminateGroup delivers CTRL_BREAK to the process group created with
// CREATE_NEW_PROCESS_GROUP, falling back to TerminateProcess.
func terminateGroup(pid int) error {
	if !exists(pid) {
		return ErrNoProcess
	}
	if ret, _, _ := procGenerateConsoleCtrlEvent.Call(ctrlBreakEvent, uintptr(pid)); ret != 0 {
		return nil
	}
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		return ErrNoProcess
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	if ret, _, callErr := procTerminateProcess.Call(uintptr(h), 1); ret == 0 {
		return callErr
	}
	return nil
}

func currentPID() int { return os.Getpid() }
