package prd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("valid descriptor", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultFile)
		content := `{
  "branchName": "jodex/login",
  "userStories": [
    {"id": "US-001", "title": "Login form", "passes": true},
    {"id": "US-002", "title": "Logout", "passes": false, "notes": "ignored"}
  ]
}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		d, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.BranchName != "jodex/login" {
			t.Errorf("BranchName = %q, want %q", d.BranchName, "jodex/login")
		}
		if d.Total() != 2 {
			t.Fatalf("Total() = %d, want 2", d.Total())
		}
		if d.Passed() != 1 {
			t.Errorf("Passed() = %d, want 1", d.Passed())
		}
		if d.UserStories[1].ID != "US-002" || d.UserStories[1].Title != "Logout" {
			t.Errorf("story order not preserved: %+v", d.UserStories)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultFile)
		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for missing file")
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "prd.json") {
			t.Errorf("error should name the file, got: %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultFile)
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if !errors.Is(err, ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("parse failure must not be reported as not found")
		}
		if !strings.Contains(err.Error(), "prd.json") {
			t.Errorf("error should name the file, got: %v", err)
		}
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty stories", `{"branchName":"main","userStories":[]}`, ""},
		{"missing branch", `{"userStories":[]}`, "branchName"},
		{"missing stories", `{"branchName":"main"}`, "userStories"},
		{"missing id", `{"branchName":"main","userStories":[{"title":"x","passes":false}]}`, "`id`"},
		{"missing title", `{"branchName":"main","userStories":[{"id":"1","passes":false}]}`, "`title`"},
		{"missing passes", `{"branchName":"main","userStories":[{"id":"1","title":"x"}]}`, "`passes`"},
		{"wrong type", `{"branchName":42,"userStories":[]}`, "branchName"},
		{"snake case rejected", `{"branch_name":"main","user_stories":[]}`, "branchName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("expected ErrParse, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestUserStorySymbol(t *testing.T) {
	if got := (UserStory{Passes: true}).Symbol(); got != "✅" {
		t.Errorf("passing symbol = %q", got)
	}
	if got := (UserStory{}).Symbol(); got != "⬜" {
		t.Errorf("pending symbol = %q", got)
	}
	if got := (UserStory{}).Status(); got != "pending" {
		t.Errorf("pending status = %q", got)
	}
}
