package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
	"github.com/raseniero/jodex-wiggum-coding-agent/internal/tui/components"
)

// Options configures a Model.
type Options struct {
	AccentColor   string
	ProjectName   string
	WorkDir       string
	StoriesPassed int
	StoriesTotal  int
	// RequestStop, if non-nil, is called once when the user presses 's'.
	RequestStop func()
}

// logEntryMsg wraps a LogEntry received from the loop.
type logEntryMsg loop.LogEntry

// loopDoneMsg signals the event channel closed.
type loopDoneMsg struct{}

// tickMsg is sent every second for the clock.
type tickMsg time.Time

// Model is the root bubbletea model: header bar, scrolling log, footer bar.
type Model struct {
	events <-chan loop.LogEntry
	opts   Options
	theme  Theme
	log    components.LogView
	width  int
	height int

	state      loop.State
	iteration  int
	maxIter    int
	branch     string
	lastCommit string

	startedAt time.Time
	now       time.Time

	stopRequested bool
	finished      bool
	err           error
}

// New creates the TUI model reading loop events from events. The model
// keeps running after events closes so the user can review the log.
func New(events <-chan loop.LogEntry, opts Options) Model {
	now := time.Now()
	m := Model{
		events:    events,
		opts:      opts,
		theme:     NewTheme(opts.AccentColor),
		width:     80,
		height:    24,
		startedAt: now,
		now:       now,
	}
	m.log = components.NewLogView(m.logDims())
	return m
}

// Err returns the fatal error reported by the loop, if any.
func (m Model) Err() error { return m.err }

// Init returns the initial commands: event listener + clock ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent blocks on the event channel and returns the next message.
func waitForEvent(ch <-chan loop.LogEntry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return loopDoneMsg{}
		}
		return logEntryMsg(entry)
	}
}

// Update handles all incoming bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log = m.log.SetSize(m.logDims())
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case logEntryMsg:
		return m.handleLogEntry(loop.LogEntry(msg))
	case tickMsg:
		if !m.finished {
			m.now = time.Time(msg)
		}
		return m, tickCmd()
	case loopDoneMsg:
		m.finished = true
		return m, nil
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		if m.opts.RequestStop != nil && !m.stopRequested && !m.finished {
			m.stopRequested = true
			m.opts.RequestStop()
		}
		return m, nil
	case "f":
		m.log = m.log.ToggleFollow()
		return m, nil
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) handleLogEntry(entry loop.LogEntry) (tea.Model, tea.Cmd) {
	if entry.Branch != "" {
		m.branch = entry.Branch
	}
	if entry.Commit != "" {
		m.lastCommit = entry.Commit
	}
	if entry.MaxIter > 0 {
		m.maxIter = entry.MaxIter
	}
	if entry.Iteration > 0 {
		m.iteration = entry.Iteration
	}
	m.state = entry.State

	if entry.Kind == loop.LogError {
		m.err = errString(entry.Message)
	}

	w, _ := m.logDims()
	m.log = m.log.AppendLine(m.theme.RenderLogLine(entry, w))
	return m, waitForEvent(m.events)
}

// View renders the header, the log panel and the footer.
func (m Model) View() string {
	header := renderHeader(headerProps{
		ProjectName:   m.opts.ProjectName,
		WorkDir:       m.opts.WorkDir,
		Branch:        m.branch,
		Iteration:     m.iteration,
		MaxIter:       m.maxIter,
		StoriesPassed: m.opts.StoriesPassed,
		StoriesTotal:  m.opts.StoriesTotal,
		StateLabel:    strings.ToUpper(m.state.String()),
		Elapsed:       m.now.Sub(m.startedAt),
		Clock:         m.now,
	}, m.width, m.theme.AccentHeaderStyle())

	footer := renderFooter(footerProps{
		LastCommit:    m.lastCommit,
		Following:     m.log.Following(),
		StopRequested: m.stopRequested,
		Finished:      m.finished,
	}, m.width)

	w, h := m.logDims()
	body := m.theme.BorderStyle().Width(w).Height(h).Render(m.log.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// logDims returns the log content size: full screen minus header, footer
// and the panel border.
func (m Model) logDims() (w, h int) {
	w = m.width - 2
	if w < 1 {
		w = 1
	}
	h = m.height - 4
	if h < 1 {
		h = 1
	}
	return w, h
}

// errString carries a loop error message through Err.
type errString string

func (e errString) Error() string { return string(e) }
