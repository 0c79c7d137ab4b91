package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/lokasan/atom-robots/internal/config"
	historyfactory "github.com/lokasan/atom-robots/internal/history/factory"
	"github.com/lokasan/atom-robots/internal/ledger/factory"
	"github.com/lokasan/atom-robots/internal/lifecycle"
	"github.com/lokasan/atom-robots/internal/logger"
	"github.com/lokasan/atom-robots/internal/metrics"
	"github.com/lokasan/atom-robots/internal/server"
	tlsx "github.com/lokasan/atom-robots/internal/tls"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the atom-robots daemon",
		Long: `Start the HTTP control plane. Settings come from the optional TOML file
and ATOM_ROBOTS_* environment variables.

Examples:
  atom-robots serve                               # defaults, sqlite://robots.db
  atom-robots serve config.toml
  atom-robots serve config.toml --daemonize --pidfile=/run/atom-robots.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServeCommand(*serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func runServeCommand(f ServeFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Daemonize {
		child, err := daemonize(os.Args[1:], f.PidFile, f.LogFile)
		if err != nil {
			return err
		}
		fmt.Printf("Daemon started with PID %d\n", child)
		return nil
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	lg, closer, err := logger.New(cfg.LoggerConfig(), os.Stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, lg)
}

// serve wires the ledger, history sinks, manager and HTTP server, and blocks
// until ctx is done.
func serve(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	l, err := factory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()
	if err := l.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	sinks, err := historyfactory.NewMulti(ctx, cfg.History.Sinks)
	if err != nil {
		return fmt.Errorf("history sinks: %w", err)
	}
	defer func() { _ = sinks.Close() }()

	robotEnv, err := cfg.RobotEnv()
	if err != nil {
		return fmt.Errorf("robot env: %w", err)
	}
	opts := []lifecycle.Option{
		lifecycle.WithLogger(lg),
		lifecycle.WithStopDelay(cfg.Robot.StopDelay),
		lifecycle.WithProgram(lifecycle.Program{
			Path:     cfg.Robot.Command,
			Args:     cfg.Robot.Args,
			Env:      robotEnv,
			Interval: cfg.Robot.Interval,
			Output:   cfg.RobotOutput(),
		}),
	}
	if len(sinks) > 0 {
		opts = append(opts, lifecycle.WithHistory(sinks))
	}
	mgr := lifecycle.New(l, opts...)

	ropts := server.Options{
		BasePath:       cfg.Server.BasePath,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         lg,
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		ropts.Metrics = metrics.Handler()
		ropts.MetricsPath = cfg.Metrics.Path
	}
	tlsCfg, err := tlsx.Setup(cfg.TLSOptions())
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	srv := server.NewServer(cfg.Server.Listen, server.NewRouter(mgr, ropts).Handler(), tlsCfg)
	lg.Info("atom-robots serving",
		"listen", cfg.Server.Listen,
		"base_path", cfg.Server.BasePath,
		"store", redactDSN(cfg.Store.DSN),
		"history_sinks", len(sinks))
	return server.Serve(ctx, srv, lg)
}
