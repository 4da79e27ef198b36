// Package config parses jodex.toml project configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "jodex.toml"

// DefaultAccentColor is the default TUI accent color (indigo).
const DefaultAccentColor = "#7D56F4"

// hexColorRe matches a 6-digit hex color string like "#7D56F4".
var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Config is the top-level jodex.toml configuration.
type Config struct {
	Project       ProjectConfig       `toml:"project"`
	Agent         AgentConfig         `toml:"agent"`
	Loop          LoopConfig          `toml:"loop"`
	Files         FilesConfig         `toml:"files"`
	Progress      ProgressConfig      `toml:"progress"`
	History       HistoryConfig       `toml:"history"`
	TUI           TUIConfig           `toml:"tui"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// ProjectConfig identifies the project.
type ProjectConfig struct {
	Name string `toml:"name"`
}

// AgentConfig controls the agent executable spawned each iteration.
type AgentConfig struct {
	Executable string   `toml:"executable"`
	Args       []string `toml:"args"`
}

// LoopConfig controls the iteration loop.
type LoopConfig struct {
	MaxIterations    int     `toml:"max_iterations"`
	PromptFile       string  `toml:"prompt_file"`
	DelaySeconds     float64 `toml:"delay_seconds"`
	CompletionMarker string  `toml:"completion_marker"` // empty disables completion detection
}

// Delay returns the inter-iteration delay as a duration.
func (l LoopConfig) Delay() time.Duration {
	return time.Duration(l.DelaySeconds * float64(time.Second))
}

// FilesConfig names the task descriptor and progress log.
type FilesConfig struct {
	PRD      string `toml:"prd"`
	Progress string `toml:"progress"`
}

// ProgressConfig controls what is written to the progress log.
type ProgressConfig struct {
	RecordIterations bool `toml:"record_iterations"` // append one line per iteration
}

// HistoryConfig controls the JSONL session transcripts under .jodex/sessions.
type HistoryConfig struct {
	Enabled   bool `toml:"enabled"`
	Retention int  `toml:"retention"` // number of session logs to keep; 0 = unlimited
}

// TUIConfig controls the terminal UI appearance.
type TUIConfig struct {
	AccentColor string `toml:"accent_color"`
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL        string `toml:"url"`
	OnComplete bool   `toml:"on_complete"`
	OnError    bool   `toml:"on_error"`
	OnStop     bool   `toml:"on_stop"`
}

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.Executable == "" {
		errs = append(errs, fmt.Errorf("agent.executable must not be empty"))
	}
	if c.Loop.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("loop.max_iterations must be >= 1"))
	}
	if c.Loop.PromptFile == "" {
		errs = append(errs, fmt.Errorf("loop.prompt_file must not be empty"))
	}
	if c.Loop.DelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("loop.delay_seconds must be >= 0"))
	}
	if c.Files.PRD == "" {
		errs = append(errs, fmt.Errorf("files.prd must not be empty"))
	}
	if c.Files.Progress == "" {
		errs = append(errs, fmt.Errorf("files.progress must not be empty"))
	}
	if c.History.Retention < 0 {
		errs = append(errs, fmt.Errorf("history.retention must be >= 0 (0 = unlimited)"))
	}

	if c.TUI.AccentColor != "" && !hexColorRe.MatchString(c.TUI.AccentColor) {
		errs = append(errs, fmt.Errorf("tui.accent_color must be a hex color (e.g. \"#7D56F4\")"))
	}

	if c.Notifications.URL != "" {
		u, parseErr := url.ParseRequestURI(c.Notifications.URL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
		}
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with the built-in defaults.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			Executable: "claude",
			Args:       []string{"--dangerously-skip-permissions", "--print"},
		},
		Loop: LoopConfig{
			MaxIterations:    10,
			PromptFile:       "CLAUDE.md",
			DelaySeconds:     2,
			CompletionMarker: "<promise>COMPLETE</promise>",
		},
		Files: FilesConfig{
			PRD:      "prd.json",
			Progress: "progress.txt",
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 20,
		},
		TUI: TUIConfig{
			AccentColor: DefaultAccentColor,
		},
		Notifications: NotificationsConfig{
			OnComplete: true,
			OnError:    true,
			OnStop:     true,
		},
	}
}

// Load reads jodex.toml from the given path. If path is empty, it walks up
// from the current working directory looking for jodex.toml and falls back to
// Defaults when none exists. Returns an error if the file contains unknown
// keys (likely typos).
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfig()
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Defaults()
			if wd, wdErr := os.Getwd(); wdErr == nil {
				cfg.Project.Name = DetectProjectName(wd)
			}
			return &cfg, nil
		}
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, joinKeys(keys))
	}

	if cfg.Project.Name == "" {
		cfg.Project.Name = DetectProjectName(filepath.Dir(path))
	}

	return &cfg, nil
}

// joinKeys formats a slice of key names for display.
func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}

// findConfig walks up from the current directory looking for jodex.toml.
// It returns an error wrapping fs.ErrNotExist when the root is reached.
func findConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: %s not found (searched up from %s): %w", FileName, dir, fs.ErrNotExist)
		}
		dir = parent
	}
}

// InitFile writes a default jodex.toml template to the given directory.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}

	content := `# jodex.toml: project configuration
# Place this file in the root of your project. Every key is optional.

[project]
name = ""

[agent]
executable = "claude"
args = ["--dangerously-skip-permissions", "--print"]

[loop]
max_iterations = 10
prompt_file = "CLAUDE.md"
delay_seconds = 2
completion_marker = "<promise>COMPLETE</promise>"  # empty = run to max_iterations

[files]
prd = "prd.json"
progress = "progress.txt"

[progress]
record_iterations = false  # append one line per iteration to the progress log

[history]
enabled = true
retention = 20  # number of session logs to keep; 0 = unlimited

[tui]
accent_color = "#7D56F4"  # hex color for header/accent elements

[notifications]
url = ""           # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
on_complete = true # notify on each iteration complete
on_error = true    # notify on loop error
on_stop = true     # notify when loop finishes or is stopped
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}
