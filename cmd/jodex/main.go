// Package main is the entry point for the jodex CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and maps the outcome to a process exit code:
// 0 success, 1 fatal error, 130 interrupted.
func run(args []string, stdout, stderr io.Writer) int {
	root := rootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		fmt.Fprintln(stderr, "Interrupted")
		return 130
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:   "jodex [max_iterations]",
		Short: "jodex: autonomous agent loop",
		Long: `jodex drives an autonomous agent loop: it runs a coding agent
(Claude by default) once per iteration, feeding it the prompt file on stdin,
until the iteration limit is reached or the agent prints its completion marker.

prd.json must exist in the working directory; progress.txt is created if
missing. Run 'jodex init' to scaffold both along with jodex.toml and CLAUDE.md.`,
		Version:       version,
		Args:          maxIterationsArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, _ := strconv.ParseUint(args[0], 10, 31)
				opts.maxIterations = int(n)
			}
			opts.delaySet = cmd.Flags().Changed("delay")
			opts.markerSet = cmd.Flags().Changed("completion-marker")
			return executeRun(cmd.Context(), opts, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.Flags()
	flags.StringVar(&opts.promptPath, "prompt", "", "prompt file fed to the agent (default from config, CLAUDE.md)")
	flags.DurationVar(&opts.delay, "delay", 0, "delay between iterations (default from config, 2s)")
	flags.StringVar(&opts.agent, "agent", "", "agent executable (default from config, claude)")
	flags.StringVar(&opts.marker, "completion-marker", "", "text that ends the run when the agent prints it (empty disables)")
	flags.BoolVar(&opts.tui, "tui", false, "show the terminal UI (plain output when stdout is not a terminal)")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to jodex.toml (default: search upward from the working directory)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "diagnostic log level on stderr: debug, info, warn, error")

	root.AddCommand(
		statusCmd(&opts, stdout),
		historyCmd(&opts, stdout),
		initCmd(stdout),
	)
	return root
}

// maxIterationsArg accepts at most one positional argument, a positive
// integer.
func maxIterationsArg(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	n, err := strconv.ParseUint(args[0], 10, 31)
	if err != nil || n == 0 {
		return fmt.Errorf("max_iterations must be a positive integer, got %q", args[0])
	}
	return nil
}
