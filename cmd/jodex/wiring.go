package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/agent"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/git"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/notify"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/prd"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/state"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/store"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/tui"
)

// dispatcher fans loop events out to every observer. The loop and the
// prompt watcher emit from different goroutines, so delivery is serialised.
type dispatcher struct {
	git      *git.Runner
	prdPath  string
	tracker  *state.Tracker
	store    store.Writer
	notifier *notify.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	tui       chan<- loop.LogEntry
	tuiCtx    context.Context
	storeFail bool
}

// emit enriches entry with git state and delivers it.
func (d *dispatcher) emit(entry loop.LogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch entry.Kind {
	case loop.LogStart, loop.LogIterComplete:
		d.enrich(&entry)
	}
	if entry.Kind == loop.LogIterComplete {
		d.refreshStories()
	}

	if d.tracker != nil {
		d.tracker.Track(entry)
	}
	if d.store != nil && !d.storeFail {
		if err := d.store.Append(entry); err != nil {
			// One warning; the run itself does not depend on history.
			d.storeFail = true
			d.logger.Warn("session log disabled", "err", err)
		}
	}
	if d.notifier != nil {
		d.notifier.Hook(entry)
	}
	if d.tui != nil {
		select {
		case d.tui <- entry:
		case <-d.tuiCtx.Done():
		}
	}
}

// attachTUI starts forwarding events to ch until ctx is done or detachTUI
// is called.
func (d *dispatcher) attachTUI(ctx context.Context, ch chan<- loop.LogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tui = ch
	d.tuiCtx = ctx
}

// detachTUI stops forwarding and closes the channel so the TUI sees the
// end of the run.
func (d *dispatcher) detachTUI() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tui != nil {
		close(d.tui)
		d.tui = nil
	}
}

func (d *dispatcher) enrich(entry *loop.LogEntry) {
	if d.git == nil {
		return
	}
	info, err := d.git.Snapshot()
	if err != nil {
		d.logger.Debug("git snapshot", "err", err)
		return
	}
	if entry.Branch == "" {
		entry.Branch = info.Branch
	}
	if entry.Commit == "" {
		entry.Commit = info.LastCommit
	}
}

// refreshStories re-reads the task descriptor; the agent updates story
// status as it works.
func (d *dispatcher) refreshStories() {
	if d.tracker == nil || d.prdPath == "" {
		return
	}
	td, err := prd.Load(d.prdPath)
	if err != nil {
		d.logger.Debug("refresh stories", "err", err)
		return
	}
	d.tracker.SetStories(td.Passed(), td.Total())
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runWithTUI runs the loop behind the terminal UI. Console output is
// replaced by the UI, which reads events from the dispatcher. quit reports
// that the user closed the UI before the loop finished.
func runWithTUI(ctx context.Context, lp *loop.Loop, proc *agent.Process, d *dispatcher, opts tui.Options) (sum loop.Summary, runErr error, quit bool) {
	lp.Log = io.Discard
	proc.Stdout = io.Discard

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	events := make(chan loop.LogEntry, 256)
	d.attachTUI(loopCtx, events)

	program := tea.NewProgram(tui.New(events, opts), tea.WithAltScreen())

	type outcome struct {
		sum loop.Summary
		err error
	}
	done := make(chan outcome, 1)
	finished := make(chan struct{})
	go func() {
		s, err := lp.Run(loopCtx)
		d.detachTUI()
		close(finished)
		done <- outcome{s, err}
	}()
	go func() {
		// Signals end the UI too.
		<-loopCtx.Done()
		program.Quit()
	}()

	_, tuiErr := program.Run()
	select {
	case <-finished:
	default:
		quit = ctx.Err() == nil
	}
	cancelLoop()
	res := <-done

	if tuiErr != nil {
		d.logger.Warn("tui", "err", tuiErr)
	}
	return res.sum, res.err, quit
}
