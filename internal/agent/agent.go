// Package agent runs the external coding agent: one child process per loop
// iteration, prompt on stdin, output streamed back line by line.
package agent

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPrompt reports that the prompt file could not be read.
	ErrPrompt = errors.New("read prompt")
	// ErrSpawn reports that the agent executable could not be started.
	ErrSpawn = errors.New("failed to spawn agent")
	// ErrOutput reports a failure while reading the agent's output stream.
	ErrOutput = errors.New("read agent output")
)

// Request describes one agent invocation.
type Request struct {
	// PromptPath is re-read on every call so edits between iterations apply.
	PromptPath string
	// OnLine, if set, is called for each output line in order, after the
	// line has been forwarded to the console.
	OnLine func(line string)
}

// Result is the outcome of one invocation.
type Result struct {
	// Output is every stdout line joined with a trailing "\n" each.
	Output   string
	Lines    int
	ExitCode int
	Duration time.Duration
	// InputErr is set when the child closed its stdin before the whole
	// prompt was written. It does not fail the call.
	InputErr error
}

// Agent is the interface for coding agents driven by the loop.
type Agent interface {
	// Run executes one invocation synchronously. A non-zero exit status is
	// reported in Result.ExitCode, not as an error.
	Run(ctx context.Context, req Request) (Result, error)
	// Name is a short label for banners and logs.
	Name() string
}
