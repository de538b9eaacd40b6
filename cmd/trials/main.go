// Command trials runs experiments described by definitions files and
// regenerates their reports.
//
// Usage:
//
//	trials plan experiment.yaml
//	trials run experiment.yaml -- python train.py
//	trials report runs/exp_1 runs/exp_2
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snow-ghost/trials/config"
	"github.com/snow-ghost/trials/pkg/logging"
	"github.com/snow-ghost/trials/pkg/tracing"
)

var version = "dev"

var (
	cfg           = config.LoadConfig()
	logger        = zap.NewNop()
	setupTracing  = tracing.Setup
	shutdownTrace = noShutdown

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "trials",
	Short:         "Track experiments and their trials on disk",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		l, err := logging.NewLogger(cfg.Logging())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l

		shutdown, err := setupTracing(cmd.Context(), cfg.Tracing(version))
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		shutdownTrace = shutdown
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", cfg.LogFormat, "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&cfg.SortMetric, "sort-metric", cfg.SortMetric, "evaluation metric trials are ranked by")
	rootCmd.PersistentFlags().StringVar(&cfg.ReportFile, "report-file", cfg.ReportFile, "report file name inside the experiment directory")

	rootCmd.PersistentFlags().StringVar(&cfg.JaegerEndpoint, "jaeger-endpoint", cfg.JaegerEndpoint, "export traces to this Jaeger collector")
	rootCmd.Version = version

	rootCmd.AddCommand(planCmd, runCmd, reportCmd)
}

func noShutdown(context.Context) error { return nil }

// run executes the command line and flushes traces and logs whatever the
// command returned.
func run(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	if serr := shutdownTrace(context.Background()); serr != nil {
		logger.Warn("Failed to flush traces", zap.Error(serr))
	}
	shutdownTrace = noShutdown
	_ = logger.Sync()
	return err
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
