package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lokasan/atom-robots/internal/config"
	"github.com/lokasan/atom-robots/internal/logger"
	"github.com/lokasan/atom-robots/internal/robot"
	"github.com/lokasan/atom-robots/pkg/client"
)

const defaultAPITimeout = 60 * time.Second

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", client.DefaultBaseURL, "daemon URL including base path (e.g. http://host:8000/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")
}

func newAPIClient(f APIFlags) (*client.Client, error) {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
}

func createStartCommand() *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a robot on the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().IntVar(&f.StartNumber, "start-number", 0, "number the robot starts counting from")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func runStart(ctx context.Context, w io.Writer, f StartFlags) error {
	c, err := newAPIClient(f.APIFlags)
	if err != nil {
		return err
	}
	msg, err := c.Start(ctx, f.StartNumber)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]string{"message": msg})
}

func createStopCommand() *cobra.Command {
	f := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop one robot by PID, or all robots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().IntVar(&f.PID, "pid", 0, "robot PID; 0 stops every robot")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func runStop(ctx context.Context, w io.Writer, f StopFlags) error {
	c, err := newAPIClient(f.APIFlags)
	if err != nil {
		return err
	}
	msg, err := c.Stop(ctx, f.PID)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]string{"message": msg})
}

func createStatsCommand() *cobra.Command {
	f := &StatsFlags{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "List recorded robot runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&f.OrderBy, "order-by", "asc", "start_date order: asc or desc")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func runStats(ctx context.Context, w io.Writer, f StatsFlags) error {
	c, err := newAPIClient(f.APIFlags)
	if err != nil {
		return err
	}
	runs, err := c.Stats(ctx, client.StatsQuery{Offset: f.Offset, Limit: f.Limit, OrderBy: f.OrderBy})
	if err != nil {
		return err
	}
	return printJSON(w, runs)
}

func createRobotCommand() *cobra.Command {
	f := &RobotFlags{}
	cmd := &cobra.Command{
		Use:   "robot",
		Short: "Run the counting robot (launched by the daemon)",
		Long: `Print an increasing number once per interval, starting at --count, until
SIGTERM or SIGINT. On shutdown the robot records its own run duration in the
ledger named by --dsn (default $` + config.DSNEnv + `).`,
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRobot(cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Count, "count", "0", "start number")
	cmd.Flags().DurationVar(&f.Interval, "interval", robot.DefaultInterval, "time between numbers")
	cmd.Flags().StringVar(&f.DSN, "dsn", os.Getenv(config.DSNEnv), "ledger DSN for the shutdown write")
	return cmd
}

func runRobot(w io.Writer, f RobotFlags) error {
	n, err := robot.ParseCount(f.Count)
	if err != nil {
		return err
	}
	// stdout carries the numbers; diagnostics go to stderr
	lg, closer, err := logger.New(logger.Config{Level: "info", Format: "text"}, os.Stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closer.Close() }()
	return robot.RunWithSignals(robot.Config{
		Count:    n,
		Interval: f.Interval,
		DSN:      f.DSN,
		Out:      w,
		Log:      lg,
	})
}
