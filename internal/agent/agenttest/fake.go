// Package agenttest turns a Go test binary into a scriptable fake agent.
//
// A test package calls MaybeRun from init(). When the binary is re-executed
// with FakeEnv=1 it behaves as the agent and exits before the test runner
// parses flags (the agent flags such as --print are unknown to it).
package agenttest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// Environment variables understood by the fake agent.
const (
	FakeEnv      = "_FAKE_AGENT"
	StdinFile    = "_FAKE_AGENT_STDIN_FILE"    // write received stdin here
	SkipStdin    = "_FAKE_AGENT_SKIP_STDIN"    // "1": never read stdin
	StdoutFile   = "_FAKE_AGENT_STDOUT_FILE"   // copy this file to stdout
	EarlyOutput  = "_FAKE_AGENT_EARLY_OUTPUT"  // bytes to print before reading stdin
	Handshake    = "_FAKE_AGENT_HANDSHAKE"     // print "first", wait for this path, print "second"
	StderrText   = "_FAKE_AGENT_STDERR"        // text written to stderr
	SleepForever = "_FAKE_AGENT_SLEEP"         // "1": block for a minute
	ExitCode     = "_FAKE_AGENT_EXIT"          // process exit status
	CountFile    = "_FAKE_AGENT_COUNT_FILE"    // one line appended per invocation
	ArgsFile     = "_FAKE_AGENT_ARGS_FILE"     // received argv written here
)

// MaybeRun runs the fake agent and exits when FakeEnv is set; otherwise it
// returns immediately.
func MaybeRun() {
	if os.Getenv(FakeEnv) != "1" {
		return
	}
	os.Exit(run())
}

func run() int {
	if f := os.Getenv(CountFile); f != "" {
		cf, err := os.OpenFile(f, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = fmt.Fprintln(cf, os.Getpid())
			_ = cf.Close()
		}
	}
	if f := os.Getenv(ArgsFile); f != "" {
		var b []byte
		for _, a := range os.Args[1:] {
			b = append(b, a...)
			b = append(b, '\n')
		}
		_ = os.WriteFile(f, b, 0644)
	}

	if s := os.Getenv(EarlyOutput); s != "" {
		n, _ := strconv.Atoi(s)
		line := make([]byte, 99)
		for i := range line {
			line[i] = 'x'
		}
		for written := 0; written < n; written += len(line) + 1 {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", line)
		}
	}

	if os.Getenv(SkipStdin) != "1" {
		data, _ := io.ReadAll(os.Stdin)
		if f := os.Getenv(StdinFile); f != "" {
			_ = os.WriteFile(f, data, 0644)
		}
	}

	if f := os.Getenv(StdoutFile); f != "" {
		if data, err := os.ReadFile(f); err == nil {
			_, _ = os.Stdout.Write(data)
		}
	}

	if f := os.Getenv(Handshake); f != "" {
		_, _ = fmt.Fprintln(os.Stdout, "first")
		deadline := time.Now().Add(10 * time.Second)
		for {
			if _, err := os.Stat(f); err == nil {
				break
			}
			if time.Now().After(deadline) {
				return 3
			}
			time.Sleep(10 * time.Millisecond)
		}
		_, _ = fmt.Fprintln(os.Stdout, "second")
	}

	if s := os.Getenv(StderrText); s != "" {
		_, _ = fmt.Fprint(os.Stderr, s)
	}
	if os.Getenv(SleepForever) == "1" {
		time.Sleep(time.Minute)
	}

	code := 0
	if s := os.Getenv(ExitCode); s != "" {
		code, _ = strconv.Atoi(s)
	}
	return code
}

// Executable returns the running test binary, to be used as the agent.
func Executable(t testing.TB) string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return exe
}

// Setup enables fake mode for child processes and makes the fake print
// stdout. Env vars are restored by t.Setenv cleanup.
func Setup(t testing.TB, stdout string) {
	t.Helper()
	t.Setenv(FakeEnv, "1")
	if stdout == "" {
		return
	}
	path := filepath.Join(t.TempDir(), "stdout.txt")
	if err := os.WriteFile(path, []byte(stdout), 0644); err != nil {
		t.Fatalf("write stdout file: %v", err)
	}
	t.Setenv(StdoutFile, path)
}
