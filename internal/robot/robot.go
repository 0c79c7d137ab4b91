// Package robot is the counter program the control plane launches. It prints
// an increasing number once per interval until asked to stop, then records
// its own run duration when it knows where the ledger is.
package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lokasan/atom-robots/internal/correlator"
	"github.com/lokasan/atom-robots/internal/ledger/factory"
	"github.com/lokasan/atom-robots/internal/procinfo"
)

const (
	DefaultInterval = time.Second
	selfStopTimeout = 5 * time.Second
)

type Config struct {
	Count    int
	Interval time.Duration
	// DSN of the ledger; empty skips the shutdown write.
	DSN   string
	Out   io.Writer
	Log   *slog.Logger
	Table procinfo.Table
}

// ParseCount parses the start number given on the command line.
func ParseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("count must be an integer, got %q", s)
	}
	return n, nil
}

// RunWithSignals runs until SIGTERM or SIGINT. On windows CTRL_BREAK arrives
// as SIGINT.
func RunWithSignals(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	return Run(ctx, cfg)
}

// Run counts until ctx is done, then performs the shutdown write.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Table == nil {
		cfg.Table = procinfo.System{}
	}

	pid, created, err := procinfo.Self(cfg.Table)
	if err != nil {
		cfg.Log.Warn("read own creation time", "pid", pid, "err", err)
	} else {
		cfg.Log.Info("robot running", "pid", pid, "created", created, "start_number", cfg.Count)
	}

	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	n := cfg.Count
	for {
		if _, err := fmt.Fprintln(cfg.Out, n); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		n++
		select {
		case <-ctx.Done():
			recordSelf(cfg, pid)
			return nil
		case <-t.C:
		}
	}
}

// recordSelf is best effort: failures are logged, never returned.
func recordSelf(cfg Config, pid int) {
	if cfg.DSN == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), selfStopTimeout)
	defer cancel()

	l, err := factory.NewFromDSN(cfg.DSN)
	if err != nil {
		cfg.Log.Error("open ledger", "err", err)
		return
	}
	defer func() { _ = l.Close() }()

	ok, err := correlator.New(l, cfg.Table).Self(ctx, pid, time.Now())
	switch {
	case errors.Is(err, correlator.ErrRunNotFound):
		cfg.Log.Info("run already finished", "pid", pid)
	case err != nil:
		cfg.Log.Error("record own stop", "pid", pid, "err", err)
	default:
		cfg.Log.Info("recorded own stop", "pid", pid, "recorded", ok)
	}
}
