package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lokasan/atom-robots/internal/logger"
)

// CountPlaceholder in Program.Args is replaced by the start number. Without
// it the start number is appended as "--count <n>".
const CountPlaceholder = "{count}"

// Program describes how a robot process is launched.
type Program struct {
	// Path of the counter executable, looked up in PATH when not absolute.
	// Empty re-executes the running binary with its robot subcommand.
	Path     string
	Args     []string
	Env      []string // nil inherits the daemon environment
	Dir      string
	Interval time.Duration // forwarded to the built-in robot
	Output   logger.OutputConfig
}

// Command builds the command line for a robot starting at startNumber.
func (p Program) Command(startNumber int) (*exec.Cmd, error) {
	n := strconv.Itoa(startNumber)
	var (
		path string
		args []string
	)
	if p.Path == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProgramNotFound, err)
		}
		path = self
		args = append(args, "robot", "--count", n)
		if p.Interval > 0 {
			args = append(args, "--interval", p.Interval.String())
		}
		args = append(args, p.Args...)
	} else {
		resolved, err := exec.LookPath(p.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrProgramNotFound, p.Path, err)
		}
		path = resolved
		placed := false
		for _, a := range p.Args {
			if strings.Contains(a, CountPlaceholder) {
				a = strings.ReplaceAll(a, CountPlaceholder, n)
				placed = true
			}
			args = append(args, a)
		}
		if !placed {
			args = append(args, "--count", n)
		}
	}
	cmd := exec.Command(path, args...)
	cmd.Dir = p.Dir
	if p.Env != nil {
		cmd.Env = p.Env
	}
	configureSysProcAttr(cmd)
	return cmd, nil
}
