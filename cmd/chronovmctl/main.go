// Command chronovmctl is the ChronoVM operator CLI: local subcommands run
// and inspect programs directly against pkg/vm/orchestrator, while the
// governance subcommands talk to a running chronovmd over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time via -ldflags.
	Version = "dev"

	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "chronovmctl",
	Short: "chronovmctl runs and inspects ChronoVM programs",
	Long: `chronovmctl offers two kinds of commands:

  - run, step, trace operate purely locally against a program file; they
    never talk to a server.
  - governance talks to a running chronovmd instance over HTTP to manage
    a project's shared template, per-user overrides, audit log and
    rollback.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "chronovmd base URL (governance commands only)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (governance commands only)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(governanceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
