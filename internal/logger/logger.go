package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, in lumberjack units.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig describes a rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config describes the control plane's own logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Color  bool   // ANSI level colors, text format only
	File   FileConfig
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger writing to w and, when File.Path is set, also to a
// rotating file. The returned closer releases the file; it is never nil.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	out := w
	if cfg.File.Path != "" {
		f := rotating(cfg.File.Path, cfg.File.MaxSizeMB, cfg.File.MaxBackups, cfg.File.MaxAgeDays, cfg.File.Compress)
		out = io.MultiWriter(w, f)
		closer = f
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		if cfg.Color {
			h = NewColorTextHandler(out, opts)
		} else {
			h = slog.NewTextHandler(out, opts)
		}
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

// OutputConfig describes where robot stdout/stderr go.
// With an empty Dir robots write to the null device.
type OutputConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writers returns rotating writers Dir/<name>.stdout.log and Dir/<name>.stderr.log,
// or nils when Dir is empty.
func (c OutputConfig) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create robot log dir: %w", err)
	}
	outW := rotating(filepath.Join(c.Dir, name+".stdout.log"), c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays, c.Compress)
	errW := rotating(filepath.Join(c.Dir, name+".stderr.log"), c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays, c.Compress)
	return outW, errW, nil
}

func rotating(path string, size, backups, age int, compress bool) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(size, DefaultMaxSizeMB),
		MaxBackups: valOr(backups, DefaultMaxBackups),
		MaxAge:     valOr(age, DefaultMaxAgeDays),
		Compress:   compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
