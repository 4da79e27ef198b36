// Package git reads repository state for run tracking and display. The agent
// owns every mutation of the working tree; nothing here writes to it.
package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git commands in a working directory.
type Runner struct {
	Dir string // working directory for git commands
}

// NewRunner creates a Runner for the given directory.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Info is a point-in-time view of the repository.
type Info struct {
	Branch     string
	LastCommit string
	Dirty      bool
}

// CurrentBranch returns the name of the current git branch.
func (r *Runner) CurrentBranch() (string, error) {
	out, err := r.run("branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("git current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// HasUncommittedChanges returns true if the working tree or index has changes.
func (r *Runner) HasUncommittedChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// LastCommit returns the short SHA and message of the most recent commit.
func (r *Runner) LastCommit() (string, error) {
	out, err := r.run("log", "-1", "--format=%h %s")
	if err != nil {
		return "", fmt.Errorf("git last commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Snapshot collects branch, last commit and dirtiness. It stops at the first
// failure, which in practice means the directory is not a repository or has
// no commits yet.
func (r *Runner) Snapshot() (Info, error) {
	var info Info
	var err error
	if info.Branch, err = r.CurrentBranch(); err != nil {
		return info, err
	}
	if info.LastCommit, err = r.LastCommit(); err != nil {
		return info, err
	}
	if info.Dirty, err = r.HasUncommittedChanges(); err != nil {
		return info, err
	}
	return info, nil
}

// run executes a git command and returns its stdout.
func (r *Runner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s: %w", errMsg, err)
	}
	return stdout.String(), nil
}
