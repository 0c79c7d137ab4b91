package lifecycle

import (
	"errors"
	"os"
	"os/exec"
	"slices"
	"testing"
	"time"
)

func TestProgramSelfCommand(t *testing.T) {
	cmd, err := Program{Interval: 2 * time.Second}.Command(5)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	self, _ := os.Executable()
	if cmd.Path != self {
		t.Fatalf("expected self executable %q, got %q", self, cmd.Path)
	}
	want := []string{self, "robot", "--count", "5", "--interval", "2s"}
	if !slices.Equal(cmd.Args, want) {
		t.Fatalf("args = %v, want %v", cmd.Args, want)
	}
	if cmd.SysProcAttr == nil {
		t.Fatalf("robot must get its own process group")
	}
}

func TestProgramExternalCommand(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	cmd, err := Program{Path: "sh", Args: []string{"counter.sh"}, Env: []string{"A=1"}, Dir: "/"}.Command(3)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if cmd.Path != sh || !slices.Equal(cmd.Args[1:], []string{"counter.sh", "--count", "3"}) {
		t.Fatalf("unexpected command: %v %v", cmd.Path, cmd.Args)
	}
	if !slices.Equal(cmd.Env, []string{"A=1"}) || cmd.Dir != "/" {
		t.Fatalf("env/dir not applied: %v %q", cmd.Env, cmd.Dir)
	}

	cmd, err = Program{Path: "sh", Args: []string{"-c", "count-from " + CountPlaceholder}}.Command(11)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if !slices.Equal(cmd.Args[1:], []string{"-c", "count-from 11"}) {
		t.Fatalf("placeholder not substituted: %v", cmd.Args)
	}
	if cmd.Env != nil {
		t.Fatalf("nil Env must inherit the daemon environment")
	}
}

func TestProgramNotFound(t *testing.T) {
	_, err := Program{Path: "/nonexistent/robot"}.Command(0)
	if !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected ErrProgramNotFound, got %v", err)
	}
}

func TestMessages(t *testing.T) {
	if StartedMessage(12) != "Robot started successfully. Its PID: 12" {
		t.Fatalf("unexpected start message %q", StartedMessage(12))
	}
	if StoppedMessage(12) != "Robot stopped. Its PID: 12" {
		t.Fatalf("unexpected stop message %q", StoppedMessage(12))
	}
}
