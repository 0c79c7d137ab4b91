//go:build !windows

package procinfo

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

func createTimeMillis(pid int) (int64, error) {
	if runtime.GOOS == "linux" {
		return createTimeLinux(pid)
	}
	// Darwin/BSD go through gopsutil (sysctl under the hood)
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, ErrNoProcess
	}
	if st, err := p.Status(); err == nil && len(st) > 0 && st[0] == gopsproc.Zombie {
		return 0, ErrNoProcess
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0, fmt.Errorf("procinfo: create time of %d: %w", pid, err)
	}
	if ms <= 0 {
		return 0, ErrNoProcess
	}
	return ms, nil
}

// createTimeLinux derives the start time from /proc/<pid>/stat (field 22,
// clock ticks since boot) and the btime line of /proc/stat.
func createTimeLinux(pid int) (int64, error) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNoProcess
		}
		return 0, fmt.Errorf("procinfo: read stat of %d: %w", pid, err)
	}
	state, ticks, err := parseStat(string(b))
	if err != nil {
		return 0, fmt.Errorf("procinfo: pid %d: %w", pid, err)
	}
	if state == "Z" || state == "X" {
		return 0, ErrNoProcess
	}
	btime, err := bootTime()
	if err != nil {
		return 0, err
	}
	clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clk <= 0 {
		clk = 100
	}
	return btime*1000 + ticks*1000/clk, nil
}

// parseStat returns the state and starttime fields of a /proc/<pid>/stat line.
func parseStat(line string) (string, int64, error) {
	// comm may contain spaces and parentheses; it ends at the last ") "
	end := strings.LastIndex(line, ") ")
	if end == -1 {
		return "", 0, errors.New("malformed stat line")
	}
	parts := strings.Fields(line[end+2:])
	if len(parts) < 20 {
		return "", 0, errors.New("short stat line")
	}
	ticks, err := strconv.ParseInt(parts[19], 10, 64)
	if err != nil || ticks < 0 {
		return "", 0, fmt.Errorf("bad starttime %q", parts[19])
	}
	return parts[0], ticks, nil
}

func bootTime() (int64, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, fmt.Errorf("procinfo: open /proc/stat: %w", err)
	}
	defer func() { _ = f.Close() }()
	s := bufio.NewScanner(f)
	for s.Scan() {
		text := s.Text()
		if v, ok := strings.CutPrefix(text, "btime "); ok {
			bt, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("procinfo: bad btime %q", v)
			}
			return bt, nil
		}
	}
	return 0, errors.New("procinfo: btime not found in /proc/stat")
}
