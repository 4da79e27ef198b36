package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/config"
)

func statusCmd(opts *runOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last run, story progress and session iterations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			return showStatus(stdout, dir, opts.configPath)
		},
	}
}

func historyCmd(opts *runOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "history [iteration]",
		Short: "List iterations of the latest session, or print one iteration's output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			if len(args) == 0 {
				return showHistory(stdout, dir)
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("iteration must be a positive integer, got %q", args[0])
			}
			return showIterationOutput(stdout, dir, n)
		},
	}
}

func initCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold jodex.toml, CLAUDE.md, prd.json and .gitignore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			created, err := config.ScaffoldProject(dir)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(stdout, "All files already exist, nothing to create.")
				return nil
			}
			for _, path := range created {
				fmt.Fprintf(stdout, "Created %s\n", path)
			}
			return nil
		},
	}
}
