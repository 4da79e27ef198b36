// Package store persists loop events to a JSONL session log and provides
// indexed read-back of past iterations. One store instance is created per
// jodex run in cmd/jodex; `jodex history` reopens finished sessions with Open.
package store

import (
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
)

// Writer persists loop events to durable storage.
type Writer interface {
	Append(entry loop.LogEntry) error
	Close() error
}

// Reader retrieves past iteration data from storage.
type Reader interface {
	Iterations() ([]IterationSummary, error)
	IterationLog(n int) ([]loop.LogEntry, error)
	SessionSummary() (SessionSummary, error)
}

// Store combines Writer and Reader into a single session-scoped handle.
type Store interface {
	Writer
	Reader
}

// IterationSummary summarises one completed loop iteration.
type IterationSummary struct {
	Number   int
	ExitCode int
	Lines    int
	Duration float64 // seconds
	Complete bool    // completion marker seen
	Commit   string
	StartAt  time.Time
	EndAt    time.Time
}

// SessionSummary summarises one session.
type SessionSummary struct {
	SessionID  string
	StartedAt  time.Time
	Iterations int
	Lines      int
	LastCommit string
	Branch     string
}
