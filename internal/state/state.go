// Package state persists the current run's state to .jodex/state.json and
// guards the working directory with a run lock.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DirName is the per-project directory holding state, sessions and the lock.
const DirName = ".jodex"

// fileName is the state file within DirName.
const fileName = "state.json"

// Outcomes recorded in RunState.Outcome.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

// RunState describes the latest run, persisted to .jodex/state.json.
type RunState struct {
	RunID         string    `json:"run_id"`
	PID           int       `json:"pid"`
	Agent         string    `json:"agent"`
	PromptFile    string    `json:"prompt_file"`
	Branch        string    `json:"branch"`
	Iteration     int       `json:"iteration"`
	MaxIterations int       `json:"max_iterations"`
	LastExitCode  int       `json:"last_exit_code"`
	LastCommit    string    `json:"last_commit"`
	StoriesPassed int       `json:"stories_passed"`
	StoriesTotal  int       `json:"stories_total"`
	StartedAt     time.Time `json:"started_at"`
	LastOutputAt  time.Time `json:"last_output_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       string    `json:"outcome"`
	Error         string    `json:"error,omitempty"`
}

// Path returns the state file path for a project directory.
func Path(dir string) string {
	return filepath.Join(dir, DirName, fileName)
}

// Load reads the run state from .jodex/state.json in dir.
// Returns a zero RunState (not an error) if the file does not exist.
func Load(dir string) (RunState, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return RunState{}, nil
		}
		return RunState{}, fmt.Errorf("state: read: %w", err)
	}

	var s RunState
	if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
		return RunState{}, fmt.Errorf("state: parse: %w", jsonErr)
	}
	return s, nil
}

// Save writes the run state to .jodex/state.json in dir, creating the
// directory if needed. Uses a write-then-rename pattern so readers such as
// `jodex status` never observe a partially-written file.
func Save(dir string, s RunState) error {
	stateDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(stateDir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("state: write: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: close: %w", closeErr)
	}
	if renameErr := os.Rename(tmp.Name(), Path(dir)); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: finalize: %w", renameErr)
	}
	return nil
}
