package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raseniero/jodex-wiggum-coding-agent/internal/prd"
)

func TestScaffoldProject(t *testing.T) {
	t.Run("creates all files in empty directory", func(t *testing.T) {
		dir := t.TempDir()

		created, err := ScaffoldProject(dir)
		if err != nil {
			t.Fatal(err)
		}

		expected := []string{
			filepath.Join(dir, "jodex.toml"),
			filepath.Join(dir, "CLAUDE.md"),
			filepath.Join(dir, "prd.json"),
			filepath.Join(dir, ".gitignore"),
		}

		if len(created) != len(expected) {
			t.Fatalf("created %d files, want %d: %v", len(created), len(expected), created)
		}
		for i, want := range expected {
			if created[i] != want {
				t.Errorf("created[%d] = %q, want %q", i, created[i], want)
			}
		}

		for _, path := range expected {
			info, err := os.Stat(path)
			if err != nil {
				t.Errorf("expected file %s to exist: %v", path, err)
				continue
			}
			if info.Size() == 0 {
				t.Errorf("expected file %s to be non-empty", path)
			}
		}

		content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
		if err != nil {
			t.Fatalf(".gitignore: %v", err)
		}
		if !strings.Contains(string(content), ".jodex/") {
			t.Error(".gitignore should contain .jodex/")
		}
	})

	t.Run("prd template loads", func(t *testing.T) {
		dir := t.TempDir()
		if _, err := ScaffoldProject(dir); err != nil {
			t.Fatal(err)
		}

		td, err := prd.Load(filepath.Join(dir, "prd.json"))
		if err != nil {
			t.Fatalf("prd template does not load: %v", err)
		}
		if td.BranchName == "" || td.Total() != 1 || td.Passed() != 0 {
			t.Errorf("unexpected template contents: %+v", td)
		}
	})

	t.Run("prompt mentions the completion marker", func(t *testing.T) {
		dir := t.TempDir()
		if _, err := ScaffoldProject(dir); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "CLAUDE.md"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), Defaults().Loop.CompletionMarker) {
			t.Error("CLAUDE.md should tell the agent how to signal completion")
		}
	})

	t.Run("skips existing files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "jodex.toml"), "existing")
		writeFile(t, filepath.Join(dir, "CLAUDE.md"), "custom prompt")

		created, err := ScaffoldProject(dir)
		if err != nil {
			t.Fatal(err)
		}

		expected := []string{
			filepath.Join(dir, "prd.json"),
			filepath.Join(dir, ".gitignore"),
		}
		if len(created) != len(expected) {
			t.Fatalf("created %d files, want %d: %v", len(created), len(expected), created)
		}
		for i, want := range expected {
			if created[i] != want {
				t.Errorf("created[%d] = %q, want %q", i, created[i], want)
			}
		}

		data, err := os.ReadFile(filepath.Join(dir, "CLAUDE.md"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "custom prompt" {
			t.Errorf("CLAUDE.md was overwritten: %q", data)
		}
	})

	t.Run("appends to existing .gitignore", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".gitignore"), "node_modules/")

		if _, err := ScaffoldProject(dir); err != nil {
			t.Fatal(err)
		}

		data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "node_modules/\n.jodex/\n" {
			t.Errorf(".gitignore = %q", data)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		dir := t.TempDir()
		if _, err := ScaffoldProject(dir); err != nil {
			t.Fatal(err)
		}
		created, err := ScaffoldProject(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(created) != 0 {
			t.Errorf("second run created %v, want nothing", created)
		}
	})
}
