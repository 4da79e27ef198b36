package state

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
)

// Tracker folds loop events into a RunState and persists it after every
// lifecycle event. Output lines only bump LastOutputAt in memory; the next
// lifecycle event writes it out.
type Tracker struct {
	dir string

	mu      sync.Mutex
	state   RunState
	saveErr error
}

// NewTracker starts tracking a run in dir. The seed supplies run metadata
// (agent, prompt, story counts); RunID, PID and StartedAt are filled in when
// empty.
func NewTracker(dir string, seed RunState) *Tracker {
	if seed.RunID == "" {
		seed.RunID = uuid.New().String()
	}
	if seed.PID == 0 {
		seed.PID = os.Getpid()
	}
	if seed.StartedAt.IsZero() {
		seed.StartedAt = time.Now()
	}
	seed.Outcome = OutcomeRunning
	return &Tracker{dir: dir, state: seed}
}

// RunID returns the run's unique identifier.
func (t *Tracker) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.RunID
}

// State returns a copy of the tracked state.
func (t *Tracker) State() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the most recent save failure, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveErr
}

// Track applies one loop event.
func (t *Tracker) Track(e loop.LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Branch != "" {
		t.state.Branch = e.Branch
	}
	if e.Commit != "" {
		t.state.LastCommit = e.Commit
	}
	if e.MaxIter > 0 {
		t.state.MaxIterations = e.MaxIter
	}

	switch e.Kind {
	case loop.LogOutput:
		t.state.LastOutputAt = e.Timestamp
		return
	case loop.LogIterStart:
		t.state.Iteration = e.Iteration
	case loop.LogIterComplete:
		t.state.Iteration = e.Iteration
		t.state.LastExitCode = e.ExitCode
	case loop.LogDone:
		t.state.Outcome = OutcomeCompleted
		t.state.FinishedAt = e.Timestamp
	case loop.LogStopped:
		t.state.Outcome = OutcomeStopped
		t.state.FinishedAt = e.Timestamp
	case loop.LogError:
		t.state.Outcome = OutcomeFailed
		t.state.Error = e.Message
		t.state.FinishedAt = e.Timestamp
	case loop.LogStart:
	default:
		return
	}
	t.saveLocked()
}

// SetStories records story progress read from the task descriptor.
func (t *Tracker) SetStories(passed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.StoriesPassed = passed
	t.state.StoriesTotal = total
}

// Finish records the final outcome for runs that ended before the loop
// could emit a terminal event, and writes the state one last time.
func (t *Tracker) Finish(outcome string, runErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Outcome == OutcomeRunning || outcome == OutcomeFailed {
		t.state.Outcome = outcome
	}
	if runErr != nil && t.state.Error == "" {
		t.state.Error = runErr.Error()
	}
	if t.state.FinishedAt.IsZero() {
		t.state.FinishedAt = time.Now()
	}
	t.saveLocked()
	return t.saveErr
}

func (t *Tracker) saveLocked() {
	t.saveErr = Save(t.dir, t.state)
}
