package main

import (
	"github.com/spf13/cobra"

	"github.com/snow-ghost/trials/runner"
)

var reportCmd = &cobra.Command{
	Use:   "report <experiment-dir>...",
	Short: "Regenerate experiment reports from the files on disk",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, err := cmd.Flags().GetInt("workers")
		if err != nil {
			return err
		}
		cfg.ReportWorkers = max(workers, 1)
		return runner.New(cfg, logger).RegenerateAll(cmd.Context(), args)
	},
}

func init() {
	reportCmd.Flags().Int("workers", cfg.ReportWorkers, "number of reports regenerated concurrently")
}
