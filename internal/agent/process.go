package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

// DefaultExecutable is the agent binary looked up on PATH.
const DefaultExecutable = "claude"

// DefaultArgs skips interactive permission prompts and runs in print mode.
func DefaultArgs() []string {
	return []string{"--dangerously-skip-permissions", "--print"}
}

// Process implements Agent by spawning an executable as a child process.
// The prompt is written to its stdin, stdout is teed to Stdout and captured,
// and stderr is passed through to Stderr unmodified.
type Process struct {
	// Executable is the path or PATH name of the agent. Defaults to "claude".
	Executable string
	Args       []string
	Dir        string   // working directory; empty means the current one
	Env        []string // extra KEY=VALUE pairs appended to the environment

	Stdout io.Writer // live console output; defaults to os.Stdout
	Stderr io.Writer // child diagnostics; defaults to os.Stderr
	Logger *slog.Logger
}

// NewClaude returns a Process that runs the Claude CLI non-interactively.
func NewClaude() *Process {
	return &Process{Executable: DefaultExecutable, Args: DefaultArgs()}
}

// Name returns the executable's base name.
func (p *Process) Name() string {
	return strings.TrimSuffix(filepath.Base(p.executable()), ".exe")
}

// Run reads the prompt, spawns the agent, feeds it the prompt and streams its
// output until it exits.
func (p *Process) Run(ctx context.Context, req Request) (Result, error) {
	prompt, err := readPrompt(req.PromptPath)
	if err != nil {
		return Result{}, err
	}

	exe := p.executable()
	cmd := exec.CommandContext(ctx, exe, p.Args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	cmd.Stderr = p.stderr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("agent: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("agent: stdout pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("agent: %w %q (is it installed and on your PATH?): %w", ErrSpawn, exe, err)
	}
	p.logger().Debug("agent started", "exe", exe, "pid", cmd.Process.Pid, "prompt_bytes", len(prompt))

	// stdin is written on its own goroutine so a child that prints before it
	// has consumed all input cannot deadlock against a full stdout pipe.
	writeDone := make(chan error, 1)
	go func() {
		_, werr := io.WriteString(stdin, prompt)
		if cerr := stdin.Close(); werr == nil {
			werr = cerr
		}
		writeDone <- werr
	}()

	output, lines, readErr := p.drain(stdout, req.OnLine)
	if readErr != nil {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	writeErr := <-writeDone

	res := Result{
		Output:   output,
		Lines:    lines,
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if interrupted(ctx, cmd.ProcessState) {
		return res, fmt.Errorf("agent: %s interrupted: %w", exe, ctx.Err())
	}
	if readErr != nil {
		return res, readErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		ctxErr := ctx.Err()
		if !errors.As(waitErr, &exitErr) && (ctxErr == nil || !errors.Is(waitErr, ctxErr)) {
			return res, fmt.Errorf("agent: failed to wait for %s: %w", exe, waitErr)
		}
	}
	if writeErr != nil {
		if !isBrokenPipe(writeErr) {
			return res, fmt.Errorf("agent: failed to write prompt to %s stdin: %w", exe, writeErr)
		}
		res.InputErr = fmt.Errorf("agent: %s closed stdin early: %w", exe, writeErr)
	}

	p.logger().Debug("agent exited", "exe", exe, "exit_code", res.ExitCode, "lines", lines, "duration", res.Duration)
	return res, nil
}

// interrupted reports whether cancellation cut the agent short. A child that
// exited on its own before the kill landed has completed its iteration.
func interrupted(ctx context.Context, state *os.ProcessState) bool {
	if ctx.Err() == nil {
		return false
	}
	return state == nil || !state.Exited()
}

// drain reads r line by line, forwarding each line to the console and the
// callback while accumulating it. Lines have no length limit.
func (p *Process) drain(r io.Reader, onLine func(string)) (string, int, error) {
	out := p.stdout()
	var acc strings.Builder

	br := bufio.NewReader(r)
	n := 0
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
			n++
			if !utf8.ValidString(line) {
				return acc.String(), n - 1, fmt.Errorf("agent: %w: line %d is not valid UTF-8", ErrOutput, n)
			}
			if _, werr := fmt.Fprintln(out, line); werr != nil {
				return acc.String(), n - 1, fmt.Errorf("agent: forward output: %w", werr)
			}
			acc.WriteString(line)
			acc.WriteByte('\n')
			if onLine != nil {
				onLine(line)
			}
		}
		if errors.Is(err, io.EOF) {
			return acc.String(), n, nil
		}
		if err != nil {
			return acc.String(), n, fmt.Errorf("agent: %w: %w", ErrOutput, err)
		}
	}
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("agent: %w: failed to read prompt file %q: %w", ErrPrompt, path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("agent: %w: prompt file %q is not valid UTF-8", ErrPrompt, path)
	}
	return string(data), nil
}

// isBrokenPipe reports whether err means the reading end went away: EPIPE
// while the child was alive, or the pipe already closed by Wait after exit.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}

func (p *Process) executable() string {
	if p.Executable == "" {
		return DefaultExecutable
	}
	return p.Executable
}

func (p *Process) stdout() io.Writer {
	if p.Stdout == nil {
		return os.Stdout
	}
	return p.Stdout
}

func (p *Process) stderr() io.Writer {
	if p.Stderr == nil {
		return os.Stderr
	}
	return p.Stderr
}

func (p *Process) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}
