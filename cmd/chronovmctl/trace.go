package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chronolab/chronovm/internal/bytesize"
	"github.com/chronolab/chronovm/internal/cliout"
	"github.com/chronolab/chronovm/pkg/vm/orchestrator"
)

var traceMaxSteps int64

var traceCmd = &cobra.Command{
	Use:   "trace <program.json>",
	Short: "Run a program and render its sealed trace as a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

func init() {
	traceCmd.Flags().Int64Var(&traceMaxSteps, "max-steps", orchestrator.DefaultMaxSteps, "step budget for the run")
}

func runTrace(cmd *cobra.Command, args []string) error {
	program, err := loadProgram(args[0])
	if err != nil {
		return err
	}

	result := orchestrator.Run(program, orchestrator.Options{MaxSteps: traceMaxSteps})

	headers := []string{"#", "PC", "Opcode", "Stack", "Heap", "Heap Size", "Output"}
	rows := make([][]string, 0, result.Trace.Len())
	for i := 0; i < result.Trace.Len(); i++ {
		snap, _ := result.Trace.At(i)
		op := "-"
		if snap.State.PC >= 0 && snap.State.PC < len(snap.State.Program.Instructions) {
			op = string(snap.State.Program.Instructions[snap.State.PC].Op)
		}
		rows = append(rows, []string{
			strconv.Itoa(snap.Index),
			strconv.Itoa(snap.State.PC),
			op,
			strconv.Itoa(len(snap.State.OperandStack)),
			strconv.Itoa(len(snap.State.Heap)),
			bytesize.EstimateCellBytes(len(snap.State.Heap)).String(),
			strconv.Itoa(len(snap.State.Output)),
		})
	}

	cliout.PrintTable(cmd.OutOrStdout(), headers, rows)

	if result.Err != nil {
		return fmt.Errorf("run ended with error: %w", result.Err)
	}
	return nil
}
