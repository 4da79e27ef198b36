package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/agent"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/config"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/git"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/notify"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/prd"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/progress"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/state"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/store"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/tui"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/watch"
)

// errInterrupted marks a run ended by a signal or by quitting the TUI.
var errInterrupted = errors.New("interrupted")

// diagnosticsFile receives logs and agent stderr while the TUI is shown.
const diagnosticsFile = "jodex.log"

// notifyFlushTimeout bounds how long exit waits for in-flight notifications.
const notifyFlushTimeout = 5 * time.Second

// runOptions holds command-line overrides. Zero values defer to jodex.toml.
type runOptions struct {
	maxIterations int
	promptPath    string
	delay         time.Duration
	delaySet      bool
	agent         string
	marker        string
	markerSet     bool
	configPath    string
	tui           bool
	logLevel      string
}

// sessionsDir is where JSONL session transcripts live.
func sessionsDir(dir string) string {
	return filepath.Join(dir, state.DirName, "sessions")
}

// loadConfig reads jodex.toml and applies command-line overrides.
func loadConfig(opts runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.maxIterations > 0 {
		cfg.Loop.MaxIterations = opts.maxIterations
	}
	if opts.promptPath != "" {
		cfg.Loop.PromptFile = opts.promptPath
	}
	if opts.delaySet {
		cfg.Loop.DelaySeconds = opts.delay.Seconds()
	}
	if opts.agent != "" {
		cfg.Agent.Executable = opts.agent
	}
	if opts.markerSet {
		cfg.Loop.CompletionMarker = opts.marker
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// parseLevel validates a --log-level value.
func parseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, fmt.Errorf("invalid --log-level %q: want debug, info, warn or error", level)
	}
	return lvl, nil
}

// resolve makes p absolute against dir.
func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// executeRun performs one jodex run: validate inputs, prepare the progress
// log, then drive the loop with every observer attached.
func executeRun(parent context.Context, opts runOptions, stdout, stderr io.Writer) error {
	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	useTUI := opts.tui && isTerminal(stdout)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Inputs are checked before anything is spawned or written.
	prdPath := resolve(dir, cfg.Files.PRD)
	td, err := prd.Load(prdPath)
	if err != nil {
		return err
	}
	created, err := progress.New(resolve(dir, cfg.Files.Progress)).Init(time.Now())
	if err != nil {
		return err
	}
	promptPath := resolve(dir, cfg.Loop.PromptFile)
	if _, statErr := os.Stat(promptPath); statErr != nil {
		return fmt.Errorf("prompt file %s: %w", cfg.Loop.PromptFile, statErr)
	}

	lock, err := state.AcquireLock(dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// The TUI owns the terminal, so diagnostics and agent stderr go to a
	// file under .jodex instead.
	diag := stderr
	if useTUI {
		f, openErr := os.OpenFile(filepath.Join(dir, state.DirName, diagnosticsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if openErr != nil {
			return fmt.Errorf("open diagnostics log: %w", openErr)
		}
		defer f.Close()
		diag = f
	}
	logger := slog.New(slog.NewTextHandler(diag, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if created {
		logger.Info("created progress log", "path", cfg.Files.Progress)
	}
	if opts.tui && !useTUI {
		logger.Info("stdout is not a terminal, using plain output")
	}

	sig := notifyInterrupt(parent, stderr)
	defer sig.Stop()
	ctx := sig.Context()

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stopCh) }) }
	stopQuit := registerQuitHandler(stderr, requestStop)
	defer stopQuit()

	proc := &agent.Process{
		Executable: cfg.Agent.Executable,
		Args:       cfg.Agent.Args,
		Dir:        dir,
		Stdout:     stdout,
		Stderr:     diag,
		Logger:     logger,
	}

	tracker := state.NewTracker(dir, state.RunState{
		Agent:         proc.Name(),
		PromptFile:    cfg.Loop.PromptFile,
		MaxIterations: cfg.Loop.MaxIterations,
	})
	tracker.SetStories(td.Passed(), td.Total())

	d := &dispatcher{
		git:     git.NewRunner(dir),
		prdPath: prdPath,
		tracker: tracker,
		logger:  logger,
	}

	if cfg.History.Enabled {
		sessions := sessionsDir(dir)
		st, stErr := store.NewJSONL(sessions, tracker.RunID())
		if stErr != nil {
			return stErr
		}
		defer st.Close()
		d.store = st
		if retErr := store.EnforceRetention(sessions, cfg.History.Retention); retErr != nil {
			logger.Warn("session retention", "err", retErr)
		}
	}

	var notifier *notify.Notifier
	if cfg.Notifications.URL != "" {
		notifier = notify.New(cfg.Notifications.URL, cfg.Project.Name,
			cfg.Notifications.OnComplete, cfg.Notifications.OnError, cfg.Notifications.OnStop).
			WithLogger(logger)
		d.notifier = notifier
	}

	watcher, err := watch.New(promptPath, func(string) {
		d.emit(loop.LogEntry{
			Kind:      loop.LogPromptChanged,
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("%s changed, the next iteration will use the new prompt", cfg.Loop.PromptFile),
		})
	}, watch.WithLogger(logger))
	if err == nil {
		if err = watcher.Start(ctx); err != nil {
			watcher.Stop()
		}
	}
	stopWatch := func() {}
	if err != nil {
		logger.Warn("prompt watcher disabled", "err", err)
	} else {
		stopWatch = watcher.Stop
		defer watcher.Stop()
	}

	lp := &loop.Loop{
		Agent: proc,
		Config: loop.Config{
			MaxIterations: cfg.Loop.MaxIterations,
			PromptPath:    promptPath,
			Delay:         cfg.Loop.Delay(),
		},
		Detector:  loop.MarkerDetector{Marker: cfg.Loop.CompletionMarker},
		Log:       stdout,
		Observe:   d.emit,
		StopAfter: stopCh,
	}
	if cfg.Progress.RecordIterations {
		progLog := progress.New(resolve(dir, cfg.Files.Progress))
		lp.PostIteration = func(res loop.IterationResult) error {
			return progLog.Append(progressEntry(res, cfg.Loop.CompletionMarker))
		}
	}

	var (
		sum    loop.Summary
		runErr error
		quit   bool
	)
	if useTUI {
		sum, runErr, quit = runWithTUI(ctx, lp, proc, d, tui.Options{
			AccentColor:   cfg.TUI.AccentColor,
			ProjectName:   cfg.Project.Name,
			WorkDir:       dir,
			StoriesPassed: td.Passed(),
			StoriesTotal:  td.Total(),
			RequestStop:   requestStop,
		})
	} else {
		sum, runErr = lp.Run(ctx)
	}

	// No prompt-change event may reach the tracker after the final save.
	stopWatch()

	interrupted := sig.Interrupted() || quit
	if finErr := tracker.Finish(outcomeOf(sum, runErr, interrupted), runErr); finErr != nil {
		logger.Warn("save run state", "err", finErr)
	}
	if notifier != nil {
		notifier.Wait(notifyFlushTimeout)
	}

	if interrupted && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		return errInterrupted
	}
	return runErr
}

// outcomeOf maps how the loop ended to a run state outcome.
func outcomeOf(sum loop.Summary, err error, interrupted bool) string {
	switch {
	case interrupted || sum.State == loop.StateStopped:
		return state.OutcomeStopped
	case err != nil || sum.State == loop.StateFailed:
		return state.OutcomeFailed
	default:
		return state.OutcomeCompleted
	}
}

// progressEntry turns an iteration result into a progress log record.
func progressEntry(res loop.IterationResult, marker string) progress.Entry {
	e := progress.Entry{
		Time:      time.Now(),
		Iteration: res.Iteration,
		ExitCode:  res.ExitCode,
		Lines:     res.Lines,
		Duration:  res.Duration,
	}
	switch {
	case res.Complete:
		e.Note = "completion marker " + strings.TrimSpace(marker) + " detected"
	case res.InputErr != nil:
		e.Note = "agent closed stdin early: " + res.InputErr.Error()
	}
	return e
}
