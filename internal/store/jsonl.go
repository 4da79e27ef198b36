package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
)

const sessionExt = ".jsonl"

// JSONL is a Store backed by an append-only JSONL file. Each line is a
// JSON-serialized loop.LogEntry. The file is synced after every Append so a
// killed run still leaves a readable transcript.
//
// Session identity: "<unix-timestamp>-<first 8 chars of run ID>.jsonl".
// Names sort chronologically, which retention and Latest rely on.
type JSONL struct {
	file       *os.File
	mu         sync.Mutex
	idx        *fileIndex
	sessionID  string
	startedAt  time.Time
	pos        int64 // current write position in the file
	lines      int
	branch     string
	lastCommit string
}

// NewJSONL creates the session JSONL log for runID in dir. dir is created
// with os.MkdirAll if it does not exist.
func NewJSONL(dir, runID string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: mkdir %q: %w", dir, err)
	}
	now := time.Now()
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = fmt.Sprintf("%d", os.Getpid())
	}
	sessionID := fmt.Sprintf("%d-%s", now.Unix(), short)
	path := filepath.Join(dir, sessionID+sessionExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// Seek to end in case the file already has content.
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("store: seek: %w", err)
	}
	return &JSONL{
		file:      f,
		idx:       newFileIndex(),
		sessionID: sessionID,
		startedAt: now,
		pos:       pos,
	}, nil
}

// Open reopens an existing session log read-only and rebuilds its iteration
// index. Malformed lines are skipped.
func Open(path string) (*JSONL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	j := &JSONL{
		file:      f,
		idx:       newFileIndex(),
		sessionID: strings.TrimSuffix(filepath.Base(path), sessionExt),
	}

	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			lineLen := int64(len(line))
			var e loop.LogEntry
			if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &e); jsonErr != nil {
				slog.Warn("store: skipping malformed line", "file", path, "offset", j.pos, "err", jsonErr)
			} else {
				if j.startedAt.IsZero() {
					j.startedAt = e.Timestamp
				}
				j.record(e, j.pos, lineLen)
			}
			j.pos += lineLen
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("store: read %q: %w", path, readErr)
		}
	}
	return j, nil
}

// Append serializes entry as a JSON line, writes it to the file, and syncs.
// It is safe to call from multiple goroutines.
func (j *JSONL) Append(entry loop.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	lineOffset := j.pos
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("store: sync: %w", err)
	}
	lineLen := int64(len(data))
	j.pos += lineLen
	j.record(entry, lineOffset, lineLen)
	return nil
}

// record updates the index and session metadata. Callers hold j.mu or own j
// exclusively.
func (j *JSONL) record(entry loop.LogEntry, offset, length int64) {
	j.idx.onAppend(entry, offset, length)
	if entry.Kind == loop.LogOutput {
		j.lines++
	}
	if entry.Branch != "" {
		j.branch = entry.Branch
	}
	if entry.Commit != "" {
		j.lastCommit = entry.Commit
	}
}

// Path returns the session file path.
func (j *JSONL) Path() string {
	return j.file.Name()
}

// Close closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Iterations returns summaries for all completed iterations in this session.
// The returned slice is a copy and safe to mutate.
func (j *JSONL) Iterations() ([]IterationSummary, error) {
	j.mu.Lock()
	result := make([]IterationSummary, len(j.idx.summaries))
	copy(result, j.idx.summaries)
	j.mu.Unlock()
	return result, nil
}

// IterationLog returns the full event log for a completed iteration, reading
// from the JSONL file using the in-memory byte-offset index. Returns an error
// if iteration n has not completed (or was never started).
func (j *JSONL) IterationLog(n int) ([]loop.LogEntry, error) {
	j.mu.Lock()
	r, ok := j.idx.ranges[n]
	j.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("store: iteration %d not found", n)
	}
	size := r.end - r.start
	if size <= 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if _, err := j.file.ReadAt(buf, r.start); err != nil {
		return nil, fmt.Errorf("store: read iteration %d: %w", n, err)
	}
	var entries []loop.LogEntry
	for _, line := range bytes.Split(buf, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e loop.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("store: skipping malformed line", "iteration", n, "err", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// IterationOutput returns the agent output captured for iteration n, one
// line per LogOutput event, each terminated by a newline.
func (j *JSONL) IterationOutput(n int) (string, error) {
	entries, err := j.IterationLog(n)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		if e.Kind == loop.LogOutput {
			b.WriteString(e.Message)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// SessionSummary returns metadata about the session derived from the
// in-memory iteration index.
func (j *JSONL) SessionSummary() (SessionSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return SessionSummary{
		SessionID:  j.sessionID,
		StartedAt:  j.startedAt,
		Iterations: len(j.idx.summaries),
		Lines:      j.lines,
		LastCommit: j.lastCommit,
		Branch:     j.branch,
	}, nil
}

// Sessions lists session log paths in dir, oldest first. A missing dir yields
// an empty list.
func Sessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), sessionExt) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files) // timestamp-prefixed names sort chronologically

	paths := make([]string, len(files))
	for i, name := range files {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Latest returns the newest session log in dir. It returns an error wrapping
// fs.ErrNotExist when there is none.
func Latest(dir string) (string, error) {
	paths, err := Sessions(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("store: no sessions in %s: %w", dir, fs.ErrNotExist)
	}
	return paths[len(paths)-1], nil
}

// EnforceRetention removes the oldest session log files in dir, keeping at most
// maxKeep files. If maxKeep is 0, no files are removed. Returns nil if dir does
// not exist or is empty.
func EnforceRetention(dir string, maxKeep int) error {
	if maxKeep <= 0 {
		return nil
	}
	paths, err := Sessions(dir)
	if err != nil {
		return err
	}

	toDelete := len(paths) - maxKeep
	for i := 0; i < toDelete; i++ {
		if err := os.Remove(paths[i]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %q: %w", paths[i], err)
		}
	}
	return nil
}
