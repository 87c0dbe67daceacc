package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/orchestrator"
)

var stepAuto bool

var stepCmd = &cobra.Command{
	Use:   "step <program.json>",
	Short: "Single-step a program, printing state after every instruction",
	Args:  cobra.ExactArgs(1),
	RunE:  runStep,
}

func init() {
	stepCmd.Flags().BoolVar(&stepAuto, "auto", false, "advance automatically instead of waiting for Enter between steps")
}

func runStep(cmd *cobra.Command, args []string) error {
	program, err := loadProgram(args[0])
	if err != nil {
		return err
	}

	stepper := orchestrator.NewStepper(program)
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	for stepper.IsRunning() {
		state := stepper.State()
		printStepLine(out, state)

		if err := stepper.StepOnce(); err != nil {
			fmt.Fprintf(out, "step %d: error: %v\n", state.StepCount, err)
			break
		}

		if !stepAuto && stepper.IsRunning() {
			fmt.Fprint(out, "-- press Enter to step --")
			_, _ = reader.ReadString('\n')
		}
	}

	final := stepper.State()
	printStepLine(out, final)
	tr := stepper.Finalize()

	fmt.Fprintf(out, "\n--- halted after %d step(s), %d snapshot(s) recorded\n", final.StepCount, tr.Len())
	for _, line := range final.Output {
		fmt.Fprintln(out, line)
	}
	return nil
}

func printStepLine(out io.Writer, state ir.VMState) {
	op := "-"
	if state.PC >= 0 && state.PC < len(state.Program.Instructions) {
		op = string(state.Program.Instructions[state.PC].Op)
	}
	fmt.Fprintf(out, "step=%d pc=%d op=%-14s stack=%d running=%v\n",
		state.StepCount, state.PC, op, len(state.OperandStack), state.IsRunning)
}
