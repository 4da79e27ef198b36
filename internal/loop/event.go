package loop

import "time"

// LogKind identifies the type of a loop log event.
type LogKind int

const (
	LogInfo          LogKind = iota // General informational message
	LogStart                        // Loop starting
	LogIterStart                    // Iteration starting
	LogOutput                       // One line of agent stdout
	LogIterComplete                 // Iteration finished
	LogWarning                      // Non-fatal problem (broken pipe, non-zero exit)
	LogSleep                        // Inter-iteration delay starting
	LogError                        // Fatal error
	LogDone                         // Loop finished normally
	LogStopped                      // Loop stopped (interrupt or stop request)
	LogPromptChanged                // Prompt file edited on disk
)

// String returns a short name for the kind.
func (k LogKind) String() string {
	switch k {
	case LogInfo:
		return "info"
	case LogStart:
		return "start"
	case LogIterStart:
		return "iter_start"
	case LogOutput:
		return "output"
	case LogIterComplete:
		return "iter_complete"
	case LogWarning:
		return "warning"
	case LogSleep:
		return "sleep"
	case LogError:
		return "error"
	case LogDone:
		return "done"
	case LogStopped:
		return "stopped"
	case LogPromptChanged:
		return "prompt_changed"
	default:
		return "unknown"
	}
}

// LogEntry is a structured event emitted by the loop during execution.
// Observers (state tracker, session store, notifier, TUI) receive every
// entry through Loop.Observe.
type LogEntry struct {
	Kind      LogKind
	Timestamp time.Time
	Message   string

	// Iteration state
	Iteration int
	MaxIter   int
	State     State

	// Agent result fields (LogIterComplete)
	ExitCode int
	Lines    int
	Duration float64 // seconds
	Complete bool

	// Git state, filled in by observers that know it
	Branch string
	Commit string
}
