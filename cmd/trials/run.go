package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/trials/definitions"
	"github.com/snow-ghost/trials/runner"
)

var metricsFile string

var runCmd = &cobra.Command{
	Use:   "run <definitions> -- <command> [args...]",
	Short: "Run every trial of a definitions file through a training command",
	Long: `Runs the training command once per trial. The command gets the trial in
TRIAL_NAME, TRIAL_DIR and TRIAL_HPARAMS (JSON) and reports by writing
evaluation_metrics, training_history and figures into the JSON file named by
TRIAL_RESULTS.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", cfg.MetricsFile, "write prometheus metrics to this file after the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	dash := cmd.ArgsLenAtDash()
	if dash != 1 {
		return fmt.Errorf("expected exactly one definitions file before --")
	}
	cfg.MetricsFile = metricsFile

	defs, err := definitions.Load(args[0],
		definitions.WithLogger(logger),
		definitions.WithSeed(cfg.Seed),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(cfg, logger)
	return r.Run(ctx, defs, runner.ExecTrainer(args[dash:], logger))
}
