// Package loop implements the iteration cycle: prompt -> agent -> output ->
// completion check -> delay.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/agent"
)

// Defaults for Config fields left at their zero value by callers that build
// a Config by hand.
const (
	DefaultMaxIterations = 10
	DefaultPromptFile    = "CLAUDE.md"
	DefaultDelay         = 2 * time.Second
)

// ErrStopRequested is returned when a stop was requested between iterations.
var ErrStopRequested = errors.New("stop requested")

// Config is the immutable run configuration.
type Config struct {
	MaxIterations int
	PromptPath    string
	Delay         time.Duration // pause between iterations; never after the last
	AgentName     string        // banner label; defaults to Agent.Name()
}

// Validate checks the configuration before any iteration starts.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("loop: max iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.PromptPath == "" {
		return fmt.Errorf("loop: prompt path must not be empty")
	}
	if c.Delay < 0 {
		return fmt.Errorf("loop: delay must be >= 0, got %s", c.Delay)
	}
	return nil
}

// IterationResult is what one iteration produced. It is handed to
// PostIteration and then discarded.
type IterationResult struct {
	Iteration int
	Output    string
	ExitCode  int
	Lines     int
	Duration  time.Duration
	Complete  bool
	InputErr  error
}

// Summary describes how a run ended.
type Summary struct {
	State      State
	Iterations int // iterations that ran to completion
}

// Loop orchestrates sequential agent invocations. Two invocations never
// overlap: the agent mutates the working tree between iterations.
type Loop struct {
	Agent    agent.Agent
	Config   Config
	Detector Detector // nil means the run only ends at MaxIterations

	Log     io.Writer      // console banners and status lines; defaults to os.Stdout
	Observe func(LogEntry) // structured events; may be nil

	// PostIteration runs after each successful iteration. An error is fatal.
	PostIteration func(IterationResult) error

	// StopAfter, when closed, stops the loop after the current iteration.
	StopAfter <-chan struct{}

	// Sleep waits between iterations. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	state State
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return l.state
}

// Run executes iterations until the limit is reached, the detector reports
// completion, a stop is requested, the context is cancelled, or the agent
// fails. Agent failures are never retried.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := l.Config.Validate(); err != nil {
		l.transition(StateFailed)
		sum.State = l.state
		return sum, err
	}

	maxIter := l.Config.MaxIterations
	l.emit(LogEntry{
		Kind:    LogStart,
		MaxIter: maxIter,
		Message: fmt.Sprintf("Starting loop with %s (max: %d, prompt: %s)", l.agentName(), maxIter, l.Config.PromptPath),
	})

	for i := 1; i <= maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return l.stop(sum, i, err)
		}

		l.transition(StateRunning)
		res, err := l.iteration(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return l.stop(sum, i, ctx.Err())
			}
			l.transition(StateFailed)
			sum.State = l.state
			l.emit(LogEntry{Kind: LogError, Iteration: i, MaxIter: maxIter, Message: fmt.Sprintf("Iteration %d failed: %v", i, err)})
			return sum, fmt.Errorf("loop: iteration %d: %w", i, err)
		}
		sum.Iterations = i

		if l.PostIteration != nil {
			if hookErr := l.PostIteration(res); hookErr != nil {
				l.transition(StateFailed)
				sum.State = l.state
				l.emit(LogEntry{Kind: LogError, Iteration: i, MaxIter: maxIter, Message: fmt.Sprintf("Post-iteration hook failed: %v", hookErr)})
				return sum, fmt.Errorf("loop: iteration %d: %w", i, hookErr)
			}
		}

		if res.Complete {
			return l.finish(sum, fmt.Sprintf("Completion signal detected after iteration %d of %d", i, maxIter)), nil
		}
		if i == maxIter {
			break
		}
		if l.stopRequested() {
			return l.stop(sum, i, ErrStopRequested)
		}

		l.transition(StateSleeping)
		l.emit(LogEntry{Kind: LogSleep, Iteration: i, MaxIter: maxIter, Message: fmt.Sprintf("Sleeping %s before next iteration", l.Config.Delay)})
		if err := l.sleep(ctx, l.Config.Delay); err != nil {
			return l.stop(sum, i, err)
		}
		if l.stopRequested() {
			return l.stop(sum, i, ErrStopRequested)
		}
	}

	return l.finish(sum, fmt.Sprintf("Loop complete: %d iterations done", maxIter)), nil
}

func (l *Loop) iteration(ctx context.Context, n int) (IterationResult, error) {
	maxIter := l.Config.MaxIterations
	l.banner(n)
	l.emit(LogEntry{Kind: LogIterStart, Iteration: n, MaxIter: maxIter, State: StateRunning})

	res, err := l.Agent.Run(ctx, agent.Request{
		PromptPath: l.Config.PromptPath,
		OnLine: func(line string) {
			l.observe(LogEntry{Kind: LogOutput, Iteration: n, MaxIter: maxIter, Message: line})
		},
	})
	if err != nil {
		return IterationResult{Iteration: n, Output: res.Output}, err
	}

	if res.InputErr != nil {
		l.emit(LogEntry{Kind: LogWarning, Iteration: n, MaxIter: maxIter, Message: fmt.Sprintf("Warning: %v", res.InputErr)})
	}
	if res.ExitCode != 0 {
		l.emit(LogEntry{Kind: LogWarning, Iteration: n, MaxIter: maxIter, ExitCode: res.ExitCode,
			Message: fmt.Sprintf("Warning: %s exited with status %d", l.agentName(), res.ExitCode)})
	}

	complete := l.Detector != nil && l.Detector.Complete(res.Output)
	l.emit(LogEntry{
		Kind:      LogIterComplete,
		Iteration: n,
		MaxIter:   maxIter,
		ExitCode:  res.ExitCode,
		Lines:     res.Lines,
		Duration:  res.Duration.Seconds(),
		Complete:  complete,
		Message:   fmt.Sprintf("Iteration %d complete: %d lines, exit %d, %.1fs", n, res.Lines, res.ExitCode, res.Duration.Seconds()),
	})

	return IterationResult{
		Iteration: n,
		Output:    res.Output,
		ExitCode:  res.ExitCode,
		Lines:     res.Lines,
		Duration:  res.Duration,
		Complete:  complete,
		InputErr:  res.InputErr,
	}, nil
}

func (l *Loop) finish(sum Summary, msg string) Summary {
	l.transition(StateCompleted)
	sum.State = l.state
	l.emit(LogEntry{Kind: LogDone, Iteration: sum.Iterations, MaxIter: l.Config.MaxIterations, Message: msg})
	return sum
}

func (l *Loop) stop(sum Summary, n int, cause error) (Summary, error) {
	l.transition(StateStopped)
	sum.State = l.state
	l.emit(LogEntry{Kind: LogStopped, Iteration: n, MaxIter: l.Config.MaxIterations, Message: fmt.Sprintf("Loop stopped: %v", cause)})
	if errors.Is(cause, ErrStopRequested) {
		return sum, nil
	}
	return sum, cause
}

func (l *Loop) stopRequested() bool {
	if l.StopAfter == nil {
		return false
	}
	select {
	case <-l.StopAfter:
		return true
	default:
		return false
	}
}

func (l *Loop) transition(next State) {
	if l.state == next {
		return
	}
	if !l.state.CanTransitionTo(next) {
		panic(fmt.Sprintf("loop: invalid state transition %s -> %s", l.state, next))
	}
	l.state = next
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	// A stop request cuts the delay short; Run checks it again on return.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.StopAfter:
		return nil
	case <-timer.C:
		return nil
	}
}

// emit passes the entry to the observer and prints its message to the
// console.
func (l *Loop) emit(entry LogEntry) {
	l.observe(entry)
	if entry.Message != "" {
		l.logf("%s", entry.Message)
	}
}

// observe stamps the entry with the time and current state and hands it to
// Observe without printing.
func (l *Loop) observe(entry LogEntry) {
	if entry.State == StateIdle {
		entry.State = l.state
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if l.Observe != nil {
		l.Observe(entry)
	}
}

func (l *Loop) banner(n int) {
	rule := strings.Repeat("=", 15)
	fmt.Fprintf(l.writer(), "%s\n  Ralph Iteration %d of %d (%s)\n%s\n", rule, n, l.Config.MaxIterations, l.agentName(), rule)
}

func (l *Loop) logf(format string, args ...any) {
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.writer(), "[%s]  %s\n", ts, fmt.Sprintf(format, args...))
}

func (l *Loop) writer() io.Writer {
	if l.Log == nil {
		return os.Stdout
	}
	return l.Log
}

func (l *Loop) agentName() string {
	if l.Config.AgentName != "" {
		return l.Config.AgentName
	}
	if l.Agent != nil {
		return l.Agent.Name()
	}
	return "agent"
}
