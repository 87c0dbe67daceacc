package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronolab/chronovm/pkg/vm/orchestrator"
)

var (
	runMaxSteps int64
	runGC       bool
)

var runCmd = &cobra.Command{
	Use:   "run <program.json>",
	Short: "Run a program to completion or step budget exhaustion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Int64Var(&runMaxSteps, "max-steps", orchestrator.DefaultMaxSteps, "step budget for the run")
	runCmd.Flags().BoolVar(&runGC, "gc", false, "reachability-collect the final heap after the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	program, err := loadProgram(args[0])
	if err != nil {
		return err
	}

	result := orchestrator.Run(program, orchestrator.Options{MaxSteps: runMaxSteps, GC: runGC})

	for _, line := range result.FinalState.Output {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}

	status := "running"
	if !result.FinalState.IsRunning {
		status = "halted"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n--- %s after %d step(s), %d snapshot(s) recorded\n",
		status, result.FinalState.StepCount, result.Trace.Len())

	if result.Err != nil {
		return fmt.Errorf("run ended with error: %w", result.Err)
	}
	return nil
}
