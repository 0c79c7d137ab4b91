package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestChildArgs(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"serve", "c.toml", "--daemonize"}, []string{"serve", "c.toml"}},
		{[]string{"serve", "--daemonize", "--pidfile", "/run/a.pid", "c.toml"}, []string{"serve", "c.toml"}},
		{[]string{"serve", "--pidfile=/run/a.pid", "--logfile", "x.log", "--config", "c.toml"}, []string{"serve", "--config", "c.toml"}},
		{[]string{"serve"}, []string{"serve"}},
	}
	for _, c := range cases {
		if got := childArgs(c.in); !slices.Equal(got, c.want) {
			t.Fatalf("childArgs(%v)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestPidFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "d.pid")
	if err := writePidFile(p, 4321); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "4321" {
		t.Fatalf("pid file content %q err=%v", b, err)
	}
	if err := removePidFile(p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("pid file should be gone")
	}
	if err := removePidFile(""); err != nil {
		t.Fatalf("empty path is a no-op: %v", err)
	}
}
