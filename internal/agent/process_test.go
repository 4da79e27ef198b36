package agent

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/agent/agenttest"
)

func init() {
	agenttest.MaybeRun()
}

// Verify Process satisfies Agent at compile time.
var _ Agent = (*Process)(nil)

func writePrompt(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newFakeProcess(t *testing.T, stdout, stderr *bytes.Buffer) *Process {
	t.Helper()
	return &Process{
		Executable: agenttest.Executable(t),
		Args:       DefaultArgs(),
		Stdout:     stdout,
		Stderr:     stderr,
	}
}

func TestNewClaude(t *testing.T) {
	p := NewClaude()
	if p.Executable != "claude" {
		t.Errorf("Executable = %q, want %q", p.Executable, "claude")
	}
	want := []string{"--dangerously-skip-permissions", "--print"}
	if strings.Join(p.Args, " ") != strings.Join(want, " ") {
		t.Errorf("Args = %v, want %v", p.Args, want)
	}
	if p.Name() != "claude" {
		t.Errorf("Name() = %q, want %q", p.Name(), "claude")
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		exe  string
		want string
	}{
		{"", "claude"},
		{"/usr/local/bin/codex", "codex"},
		{`amp.exe`, "amp"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := (&Process{Executable: tt.exe}).Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProcessRun(t *testing.T) {
	t.Run("accumulates and forwards lines in order", func(t *testing.T) {
		agenttest.Setup(t, "L1\nL2\nL3\n")
		var stdout, stderr bytes.Buffer
		p := newFakeProcess(t, &stdout, &stderr)

		var seen []string
		res, err := p.Run(context.Background(), Request{
			PromptPath: writePrompt(t, "do the thing"),
			OnLine:     func(line string) { seen = append(seen, line) },
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Output != "L1\nL2\nL3\n" {
			t.Errorf("Output = %q, want %q", res.Output, "L1\nL2\nL3\n")
		}
		if stdout.String() != "L1\nL2\nL3\n" {
			t.Errorf("console = %q", stdout.String())
		}
		if strings.Join(seen, ",") != "L1,L2,L3" {
			t.Errorf("OnLine saw %v", seen)
		}
		if res.Lines != 3 {
			t.Errorf("Lines = %d, want 3", res.Lines)
		}
		if res.ExitCode != 0 {
			t.Errorf("ExitCode = %d, want 0", res.ExitCode)
		}
		if res.InputErr != nil {
			t.Errorf("unexpected InputErr: %v", res.InputErr)
		}
	})

	t.Run("final line without newline gets one", func(t *testing.T) {
		agenttest.Setup(t, "only\r\nlast")
		var stdout, stderr bytes.Buffer
		res, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: writePrompt(t, "p")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Output != "only\nlast\n" {
			t.Errorf("Output = %q", res.Output)
		}
	})

	t.Run("lines longer than a megabyte are kept whole", func(t *testing.T) {
		long := strings.Repeat("y", 2<<20)
		agenttest.Setup(t, long+"\nafter\n")
		var stdout, stderr bytes.Buffer

		var seen []int
		res, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{
			PromptPath: writePrompt(t, "p"),
			OnLine:     func(line string) { seen = append(seen, len(line)) },
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Lines != 2 {
			t.Errorf("Lines = %d, want 2", res.Lines)
		}
		if res.Output != long+"\nafter\n" {
			t.Errorf("Output length = %d, want %d", len(res.Output), len(long)+7)
		}
		if len(seen) != 2 || seen[0] != len(long) || seen[1] != len("after") {
			t.Errorf("OnLine lengths = %v", seen)
		}
	})

	t.Run("prompt arrives on stdin exactly and stdin is closed", func(t *testing.T) {
		agenttest.Setup(t, "ok\n")
		got := filepath.Join(t.TempDir(), "stdin.txt")
		t.Setenv(agenttest.StdinFile, got)
		prompt := "# Task\n\nImplement US-001.\nünïcødé\n"

		var stdout, stderr bytes.Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// The fake reads stdin to EOF before exiting; without a close this hangs.
		if _, err := newFakeProcess(t, &stdout, &stderr).Run(ctx, Request{PromptPath: writePrompt(t, prompt)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(got)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != prompt {
			t.Errorf("stdin = %q, want %q", data, prompt)
		}
	})

	t.Run("passes agent flags", func(t *testing.T) {
		agenttest.Setup(t, "")
		argsFile := filepath.Join(t.TempDir(), "args.txt")
		t.Setenv(agenttest.ArgsFile, argsFile)

		var stdout, stderr bytes.Buffer
		if _, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: writePrompt(t, "p")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, _ := os.ReadFile(argsFile)
		if string(data) != "--dangerously-skip-permissions\n--print\n" {
			t.Errorf("args = %q", data)
		}
	})

	t.Run("stderr passes through unmodified", func(t *testing.T) {
		agenttest.Setup(t, "out\n")
		t.Setenv(agenttest.StderrText, "warning: rate limited\n")
		var stdout, stderr bytes.Buffer
		res, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: writePrompt(t, "p")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stderr.String() != "warning: rate limited\n" {
			t.Errorf("stderr = %q", stderr.String())
		}
		if strings.Contains(res.Output, "rate limited") {
			t.Error("stderr must not be accumulated with stdout")
		}
	})

	t.Run("non-zero exit is advisory", func(t *testing.T) {
		agenttest.Setup(t, "partial\n")
		t.Setenv(agenttest.ExitCode, "2")
		var stdout, stderr bytes.Buffer
		res, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: writePrompt(t, "p")})
		if err != nil {
			t.Fatalf("non-zero exit should not be an error, got %v", err)
		}
		if res.ExitCode != 2 {
			t.Errorf("ExitCode = %d, want 2", res.ExitCode)
		}
		if res.Output != "partial\n" {
			t.Errorf("Output = %q", res.Output)
		}
	})

	t.Run("lines are forwarded while the agent is still running", func(t *testing.T) {
		agenttest.Setup(t, "")
		signal := filepath.Join(t.TempDir(), "seen-first")
		t.Setenv(agenttest.Handshake, signal)

		var stderr bytes.Buffer
		console := &signalWriter{match: "first\n", path: signal}
		p := newFakeProcess(t, nil, &stderr)
		p.Stdout = console

		res, err := p.Run(context.Background(), Request{PromptPath: writePrompt(t, "p")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// The fake only prints "second" after the parent has seen "first".
		if res.ExitCode != 0 {
			t.Fatalf("fake agent timed out waiting for live output (exit %d)", res.ExitCode)
		}
		if res.Output != "first\nsecond\n" {
			t.Errorf("Output = %q", res.Output)
		}
		if console.String() != "first\nsecond\n" {
			t.Errorf("console = %q", console.String())
		}
	})

	t.Run("large output before stdin is read does not deadlock", func(t *testing.T) {
		agenttest.Setup(t, "")
		t.Setenv(agenttest.EarlyOutput, "524288")
		var stdout, stderr bytes.Buffer
		prompt := strings.Repeat("p", 1<<20)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res, err := newFakeProcess(t, &stdout, &stderr).Run(ctx, Request{PromptPath: writePrompt(t, prompt)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Output) < 524288 {
			t.Errorf("Output length = %d, want at least 524288", len(res.Output))
		}
	})

	t.Run("agent that ignores stdin yields a broken-pipe warning", func(t *testing.T) {
		agenttest.Setup(t, "done early\n")
		t.Setenv(agenttest.SkipStdin, "1")
		var stdout, stderr bytes.Buffer
		prompt := strings.Repeat("p", 4<<20)

		res, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: writePrompt(t, prompt)})
		if err != nil {
			t.Fatalf("broken pipe should not fail the call, got %v", err)
		}
		if res.InputErr == nil {
			t.Error("expected InputErr for a prompt the agent never read")
		}
		if res.Output != "done early\n" {
			t.Errorf("Output = %q", res.Output)
		}
	})

	t.Run("missing prompt file fails before spawning", func(t *testing.T) {
		agenttest.Setup(t, "")
		counter := filepath.Join(t.TempDir(), "count.txt")
		t.Setenv(agenttest.CountFile, counter)

		var stdout, stderr bytes.Buffer
		_, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: filepath.Join(t.TempDir(), "nope.md")})
		if !errors.Is(err, ErrPrompt) {
			t.Fatalf("expected ErrPrompt, got %v", err)
		}
		if !strings.Contains(err.Error(), "nope.md") {
			t.Errorf("error should name the prompt file, got: %v", err)
		}
		if _, statErr := os.Stat(counter); statErr == nil {
			t.Error("agent must not be spawned when the prompt cannot be read")
		}
	})

	t.Run("invalid utf-8 prompt fails", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		p := &Process{Executable: "/nonexistent/agent", Stdout: &stdout, Stderr: &stderr}
		_, err := p.Run(context.Background(), Request{PromptPath: writePrompt(t, "bad \xff byte")})
		if !errors.Is(err, ErrPrompt) {
			t.Fatalf("expected ErrPrompt, got %v", err)
		}
	})

	t.Run("invalid utf-8 output fails the call", func(t *testing.T) {
		agenttest.Setup(t, "good\nbad \xfe line\n")
		var stdout, stderr bytes.Buffer
		res, err := newFakeProcess(t, &stdout, &stderr).Run(context.Background(), Request{PromptPath: writePrompt(t, "p")})
		if !errors.Is(err, ErrOutput) {
			t.Fatalf("expected ErrOutput, got %v", err)
		}
		if res.Output != "good\n" {
			t.Errorf("partial Output = %q", res.Output)
		}
	})

	t.Run("missing executable is a spawn error", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		p := &Process{Executable: "/nonexistent/agent-binary", Stdout: &stdout, Stderr: &stderr}
		_, err := p.Run(context.Background(), Request{PromptPath: writePrompt(t, "p")})
		if !errors.Is(err, ErrSpawn) {
			t.Fatalf("expected ErrSpawn, got %v", err)
		}
		if !strings.Contains(err.Error(), "is it installed and on your PATH?") {
			t.Errorf("error should suggest a remedy, got: %v", err)
		}
	})

	t.Run("context cancellation kills the agent", func(t *testing.T) {
		agenttest.Setup(t, "")
		t.Setenv(agenttest.SleepForever, "1")
		var stdout, stderr bytes.Buffer

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := newFakeProcess(t, &stdout, &stderr).Run(ctx, Request{PromptPath: writePrompt(t, "p")})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context.DeadlineExceeded, got %v", err)
		}
		if time.Since(start) > 30*time.Second {
			t.Error("cancellation did not stop the agent promptly")
		}
	})
}

func TestInterrupted(t *testing.T) {
	fake := func(extra ...string) *exec.Cmd {
		cmd := exec.Command(agenttest.Executable(t))
		cmd.Env = append(os.Environ(), agenttest.FakeEnv+"=1", agenttest.SkipStdin+"=1")
		cmd.Env = append(cmd.Env, extra...)
		return cmd
	}

	exited := fake()
	if err := exited.Run(); err != nil {
		t.Fatalf("fake agent: %v", err)
	}

	killed := fake(agenttest.SleepForever + "=1")
	if err := killed.Start(); err != nil {
		t.Fatalf("start fake agent: %v", err)
	}
	_ = killed.Process.Kill()
	_ = killed.Wait()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		state *os.ProcessState
		want  bool
	}{
		{"live context", context.Background(), killed.ProcessState, false},
		{"cancelled after clean exit", cancelled, exited.ProcessState, false},
		{"cancelled and killed", cancelled, killed.ProcessState, true},
		{"cancelled without state", cancelled, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := interrupted(tt.ctx, tt.state); got != tt.want {
				t.Errorf("interrupted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBrokenPipe(t *testing.T) {
	if isBrokenPipe(errors.New("other")) {
		t.Error("plain error is not a broken pipe")
	}
	if !isBrokenPipe(os.ErrClosed) {
		t.Error("os.ErrClosed should count as a broken pipe")
	}
}

// signalWriter records console output and creates path once match has been
// written.
type signalWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	match string
	path  string
	done  bool
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	if !w.done && strings.Contains(w.buf.String(), w.match) {
		w.done = true
		_ = os.WriteFile(w.path, nil, 0644)
	}
	return n, err
}

func (w *signalWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
