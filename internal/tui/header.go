package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// headerProps holds all data needed to render the header bar.
type headerProps struct {
	ProjectName   string
	WorkDir       string
	Branch        string
	Iteration     int
	MaxIter       int
	StoriesPassed int
	StoriesTotal  int
	StateLabel    string
	Elapsed       time.Duration
	Clock         time.Time
}

// AbbreviatePath returns a display-friendly path, replacing the home directory
// with "~" and converting backslashes to forward slashes.
func AbbreviatePath(path string) string {
	if path == "" {
		return ""
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && strings.HasPrefix(path, home) {
		path = "~" + path[len(home):]
	}
	return strings.ReplaceAll(path, "\\", "/")
}

// FormatElapsed renders a duration as a compact string: "5s", "2m30s", "1h15m".
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func renderHeader(p headerProps, width int, accent lipgloss.Style) string {
	name := "jodex"
	if p.ProjectName != "" {
		name = p.ProjectName
	}
	branch := p.Branch
	if branch == "" {
		branch = "-"
	}

	parts := []string{name}
	if p.WorkDir != "" {
		parts = append(parts, "dir: "+AbbreviatePath(p.WorkDir))
	}
	parts = append(parts,
		"branch: "+branch,
		fmt.Sprintf("iter: %d/%d", p.Iteration, p.MaxIter),
	)
	if p.StoriesTotal > 0 {
		parts = append(parts, fmt.Sprintf("stories: %d/%d", p.StoriesPassed, p.StoriesTotal))
	}
	if p.StateLabel != "" {
		parts = append(parts, p.StateLabel)
	}
	if p.Elapsed > 0 {
		parts = append(parts, "elapsed: "+FormatElapsed(p.Elapsed))
	}
	if !p.Clock.IsZero() {
		parts = append(parts, p.Clock.Format("15:04"))
	}

	return accent.Width(width).MaxHeight(1).Render(strings.Join(parts, "  │  "))
}

// footerProps holds all data needed to render the footer bar.
type footerProps struct {
	LastCommit    string
	Following     bool
	StopRequested bool
	Finished      bool
}

func renderFooter(p footerProps, width int) string {
	commit := p.LastCommit
	if commit == "" {
		commit = "-"
	}
	left := "last commit: " + truncate(singleLine(commit), 50)

	var right string
	switch {
	case p.Finished:
		right = "loop finished  ·  q to exit"
	case p.StopRequested:
		right = "stopping after iteration…  q to quit now"
	default:
		follow := "f:follow"
		if p.Following {
			follow = "f:unfollow"
		}
		right = follow + "  ↑/↓:scroll  s:stop  q:quit"
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return footerStyle.Width(width).MaxHeight(1).Render(left + strings.Repeat(" ", gap) + right)
}
