package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/loop"
)

// Theme holds accent-color-derived styles.
type Theme struct {
	accentStyle lipgloss.Style // header background
	markerStyle lipgloss.Style // iteration separators
	border      lipgloss.Style // log panel border
}

// NewTheme creates a Theme from a hex accent color string (e.g. "#7D56F4").
// If accentColor is empty, the default accent color is used.
func NewTheme(accentColor string) Theme {
	color := defaultAccentColor
	if accentColor != "" {
		color = accentColor
	}
	c := lipgloss.Color(color)
	return Theme{
		accentStyle: lipgloss.NewStyle().
			Background(c).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true),
		markerStyle: lipgloss.NewStyle().
			Foreground(c).
			Bold(true),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c),
	}
}

// AccentHeaderStyle returns the style for the header bar.
func (t Theme) AccentHeaderStyle() lipgloss.Style {
	return t.accentStyle
}

// BorderStyle returns the log panel border style.
func (t Theme) BorderStyle() lipgloss.Style {
	return t.border
}

// RenderLogLine renders a loop.LogEntry as a single terminal line no wider
// than width (styling aside).
func (t Theme) RenderLogLine(entry loop.LogEntry, width int) string {
	ts := timestampStyle.Render(fmt.Sprintf("[%s]", entry.Timestamp.Format("15:04:05")))
	msg := func(prefix string) string {
		limit := width - 12 - len([]rune(prefix))
		if limit < 20 {
			limit = 20
		}
		return prefix + truncate(singleLine(entry.Message), limit)
	}

	switch entry.Kind {
	case loop.LogOutput:
		return fmt.Sprintf("%s  %s", ts, outputStyle.Render(msg("│ ")))

	case loop.LogStart:
		return fmt.Sprintf("%s  %s", ts, t.markerStyle.Render(msg("▶ ")))

	case loop.LogIterStart:
		label := fmt.Sprintf("── iteration %d", entry.Iteration)
		if entry.MaxIter > 0 {
			label += fmt.Sprintf(" of %d", entry.MaxIter)
		}
		return fmt.Sprintf("%s  %s", ts, t.markerStyle.Render(label+" ──"))

	case loop.LogIterComplete:
		text := fmt.Sprintf("✓ iteration %d complete  ·  %d lines  ·  exit %d  ·  %.1fs",
			entry.Iteration, entry.Lines, entry.ExitCode, entry.Duration)
		if entry.Commit != "" {
			text += "  ·  " + truncate(singleLine(entry.Commit), 40)
		}
		style := resultStyle
		if entry.ExitCode != 0 {
			style = warningStyle
		}
		return fmt.Sprintf("%s  %s", ts, style.Render(text))

	case loop.LogWarning:
		return fmt.Sprintf("%s  %s", ts, warningStyle.Render(msg("⚠ ")))

	case loop.LogSleep:
		return fmt.Sprintf("%s  %s", ts, sleepStyle.Render(msg("… ")))

	case loop.LogError:
		return fmt.Sprintf("%s  %s", ts, errorStyle.Render(msg("✗ ")))

	case loop.LogDone:
		return fmt.Sprintf("%s  %s", ts, resultStyle.Render(msg("✓ ")))

	case loop.LogStopped:
		return fmt.Sprintf("%s  %s", ts, errorStyle.Render(msg("■ ")))

	case loop.LogPromptChanged:
		return fmt.Sprintf("%s  %s", ts, promptStyle.Render(msg("✎ ")))

	default:
		return fmt.Sprintf("%s  %s", ts, infoStyle.Render(msg("")))
	}
}
