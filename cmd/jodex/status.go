package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/config"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/prd"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/state"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/store"
)

// showStatus prints the last run from .jodex/state.json, the current story
// progress from the task descriptor and the latest session's iterations.
func showStatus(w io.Writer, dir, configPath string) error {
	st, err := state.Load(dir)
	if err != nil {
		return err
	}
	if st.RunID == "" {
		fmt.Fprintln(w, "No run recorded yet. Run 'jodex' first.")
		return nil
	}

	fmt.Fprintln(w, "jodex status")
	fmt.Fprintln(w, "────────────")
	row := func(label, format string, args ...any) {
		fmt.Fprintf(w, "  %-16s %s\n", label+":", fmt.Sprintf(format, args...))
	}

	row("Run", "%s", st.RunID)
	if st.Agent != "" {
		row("Agent", "%s", st.Agent)
	}
	if st.PromptFile != "" {
		row("Prompt", "%s", st.PromptFile)
	}
	if st.Branch != "" {
		row("Branch", "%s", st.Branch)
	}
	if st.LastCommit != "" {
		row("Last commit", "%s", st.LastCommit)
	}
	row("Iteration", "%d of %d", st.Iteration, st.MaxIterations)
	row("Last exit code", "%d", st.LastExitCode)

	running := st.Outcome == state.OutcomeRunning
	switch {
	case running && !st.StartedAt.IsZero():
		row("Duration", "%s (running, pid %d)", time.Since(st.StartedAt).Round(time.Second), st.PID)
	case !st.StartedAt.IsZero() && !st.FinishedAt.IsZero():
		row("Duration", "%s", st.FinishedAt.Sub(st.StartedAt).Round(time.Second))
	}
	if running && !st.LastOutputAt.IsZero() {
		row("Last output", "%s ago", time.Since(st.LastOutputAt).Round(time.Second))
	}
	row("Result", "%s", st.Outcome)
	if st.Error != "" {
		row("Error", "%s", st.Error)
	}

	// Current story progress; the recorded counts are a fallback.
	passed, total := st.StoriesPassed, st.StoriesTotal
	prdFile := prd.DefaultFile
	if cfg, cfgErr := config.Load(configPath); cfgErr == nil {
		prdFile = cfg.Files.PRD
	}
	if td, prdErr := prd.Load(resolve(dir, prdFile)); prdErr == nil {
		passed, total = td.Passed(), td.Total()
	}
	if total > 0 {
		row("Stories", "%d of %d passing", passed, total)
	}

	path, err := store.Latest(sessionsDir(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	return printSession(w, path)
}

// showHistory lists the iterations of the latest session.
func showHistory(w io.Writer, dir string) error {
	path, err := store.Latest(sessionsDir(dir))
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(w, "No sessions recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}
	return printSession(w, path)
}

func printSession(w io.Writer, path string) error {
	j, err := store.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	sum, err := j.SessionSummary()
	if err != nil {
		return err
	}
	iters, err := j.Iterations()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Session %s", sum.SessionID)
	if !sum.StartedAt.IsZero() {
		fmt.Fprintf(w, " (started %s)", sum.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
	if len(iters) == 0 {
		fmt.Fprintln(w, "  no completed iterations")
		return nil
	}
	for _, it := range iters {
		mark := " "
		if it.Complete {
			mark = "✓"
		}
		fmt.Fprintf(w, "  %s #%-3d exit %-3d %5d lines  %6.1fs", mark, it.Number, it.ExitCode, it.Lines, it.Duration)
		if it.Commit != "" {
			fmt.Fprintf(w, "  %s", it.Commit)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// showIterationOutput prints the agent output captured for iteration n of
// the latest session.
func showIterationOutput(w io.Writer, dir string, n int) error {
	path, err := store.Latest(sessionsDir(dir))
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	j, err := store.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	out, err := j.IterationOutput(n)
	if err != nil {
		return fmt.Errorf("history: session %s: %w", filepath.Base(path), err)
	}
	_, err = io.WriteString(w, out)
	return err
}
