package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/trials/definitions"
)

var planCmd = &cobra.Command{
	Use:   "plan <definitions>",
	Short: "Print the trials a definitions file would run",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	defs, err := definitions.Load(args[0],
		definitions.WithLogger(logger),
		definitions.WithSeed(cfg.Seed),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	exp := defs.Experiment
	fmt.Fprintf(out, "experiment: %s\ndirectory: %s\ntrials: %d\n", exp.Name, exp.Directory, defs.Trials.Len())

	for d, ok := defs.Trials.Next(); ok; d, ok = defs.Trials.Next() {
		hp, err := json.Marshal(d.Hyperparameters)
		if err != nil {
			return fmt.Errorf("trial %s: %w", d.Name, err)
		}
		fmt.Fprintf(out, "  %s %s\n", d.Name, hp)
	}
	return defs.Trials.Err()
}
