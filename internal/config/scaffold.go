package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDir is the per-project directory holding run state, session logs and
// the run lock. It is kept out of version control.
const StateDir = ".jodex"

// ScaffoldProject creates the jodex project files in the given directory:
// jodex.toml, the CLAUDE.md prompt, a prd.json template and a .gitignore
// entry for the state directory. Files that already exist are left
// untouched. Returns the list of created or modified paths.
func ScaffoldProject(dir string) ([]string, error) {
	var created []string

	// jodex.toml
	tomlPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		if _, initErr := InitFile(dir); initErr != nil {
			return created, initErr
		}
		created = append(created, tomlPath)
	}

	defaults := Defaults()
	for _, f := range []struct {
		name, content string
	}{
		{defaults.Loop.PromptFile, promptTemplate},
		{defaults.Files.PRD, prdTemplate},
	} {
		path := filepath.Join(dir, f.name)
		wrote, err := writeIfMissing(path, f.content)
		if err != nil {
			return created, err
		}
		if wrote {
			created = append(created, path)
		}
	}

	// .gitignore: keep run state and session logs out of version control
	const gitignoreEntry = StateDir + "/"
	gitignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	if os.IsNotExist(err) {
		if writeErr := os.WriteFile(gitignorePath, []byte(gitignoreEntry+"\n"), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	} else if err != nil {
		return created, fmt.Errorf("scaffold: read %s: %w", gitignorePath, err)
	} else if !hasLine(string(existing), gitignoreEntry) {
		content := string(existing)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content += "\n"
		}
		content += gitignoreEntry + "\n"
		if writeErr := os.WriteFile(gitignorePath, []byte(content), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	}

	return created, nil
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("scaffold: write %s: %w", path, err)
	}
	return true, nil
}

func hasLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

const promptTemplate = `You are working through the user stories in ` + "`prd.json`" + ` one at a time.

1. Read ` + "`prd.json`" + ` and ` + "`progress.txt`" + ` to see what is already done.
2. Make sure you are on the branch named by ` + "`branchName`" + `.
3. Pick the highest-priority story whose ` + "`passes`" + ` is false.
4. Implement it fully, run the tests, and commit with a descriptive message.
5. Set ` + "`passes`" + ` to true for that story and append what you learned to ` + "`progress.txt`" + `.

When every story passes, reply with <promise>COMPLETE</promise>.
`

const prdTemplate = `{
  "branchName": "jodex/first-feature",
  "userStories": [
    {
      "id": "US-001",
      "title": "Describe the first user story",
      "passes": false
    }
  ]
}
`
