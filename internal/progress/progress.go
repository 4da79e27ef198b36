// Package progress maintains the human-readable progress log (progress.txt).
// The file is append-only: it is created once with a header and never
// truncated or rewritten.
package progress

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// DefaultFile is the progress log path, relative to the working directory.
const DefaultFile = "progress.txt"

// Header is the first line of every progress log.
const Header = "# Ralph Progress Log"

// TimestampFormat is used for the Started line and entry headings.
const TimestampFormat = "2006-01-02 15:04:05 -07:00"

// Log is a progress log at a fixed path.
type Log struct {
	Path string
}

// New returns a Log for path.
func New(path string) *Log {
	return &Log{Path: path}
}

// Init creates the log with its header if it does not exist yet. An existing
// file is left untouched so history survives restarts. It reports whether the
// file was created.
func (l *Log) Init(now time.Time) (bool, error) {
	if _, err := os.Stat(l.Path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("progress: stat %s: %w", l.Path, err)
	}

	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("progress: failed to create %s: %w", l.Path, err)
	}
	header := fmt.Sprintf("%s\nStarted: %s\n---\n", Header, now.Format(TimestampFormat))
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return false, fmt.Errorf("progress: write header to %s: %w", l.Path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("progress: close %s: %w", l.Path, err)
	}
	return true, nil
}

// Entry is one appended record.
type Entry struct {
	Time      time.Time
	Iteration int
	ExitCode  int
	Lines     int
	Duration  time.Duration
	Note      string
}

// Render formats the entry as a markdown block ending in a separator.
func (e Entry) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Iteration %d (%s)\n", e.Iteration, e.Time.Format(TimestampFormat))
	fmt.Fprintf(&b, "- exit code: %d\n", e.ExitCode)
	fmt.Fprintf(&b, "- output lines: %d\n", e.Lines)
	fmt.Fprintf(&b, "- duration: %s\n", e.Duration.Round(time.Millisecond))
	if e.Note != "" {
		fmt.Fprintf(&b, "- %s\n", e.Note)
	}
	b.WriteString("---\n")
	return b.String()
}

// Append writes one entry. The file is opened in append mode, written with a
// single call and closed again, so readers never observe a partial entry from
// an earlier run that crashed between entries.
func (l *Log) Append(e Entry) error {
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("progress: open %s: %w", l.Path, err)
	}
	if _, err := f.WriteString(e.Render()); err != nil {
		f.Close()
		return fmt.Errorf("progress: append to %s: %w", l.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("progress: close %s: %w", l.Path, err)
	}
	return nil
}
