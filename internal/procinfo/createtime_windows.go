//go:build windows

package procinfo

import (
	"syscall"
	"unsafe"
)

var procGetProcessTimes = kernel32.NewProc("GetProcessTimes")

func createTimeMillis(pid int) (int64, error) {
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return 0, ErrNoProcess
	}
	defer func() { _ = syscall.CloseHandle(h) }()

	var creation, exit, kernel, user syscall.Filetime
	ret, _, callErr := procGetProcessTimes.Call(uintptr(h), uintptr(unsafe.Pointer(&creation)), uintptr(unsafe.Pointer(&exit)), uintptr(unsafe.Pointer(&kernel)), uintptr(unsafe.Pointer(&user)))
	if ret == 0 {
		return 0, callErr
	}
	// a process with a non-zero exit time has terminated but its handle is still held
	if exit.HighDateTime != 0 || exit.LowDateTime != 0 {
		return 0, ErrNoProcess
	}
	// Nanoseconds converts FILETIME (100ns since 1601) to Unix nanoseconds
	return creation.Nanoseconds() / 1e6, nil
}
