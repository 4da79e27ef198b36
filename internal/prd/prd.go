// Package prd loads the task descriptor (prd.json) that names the target
// branch and the user stories a run works through.
package prd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// DefaultFile is the task descriptor path, relative to the working directory.
const DefaultFile = "prd.json"

var (
	// ErrNotFound reports that the descriptor file could not be read.
	ErrNotFound = errors.New("task descriptor not found")
	// ErrParse reports a malformed descriptor.
	ErrParse = errors.New("task descriptor invalid")
)

// TaskDescriptor is the parsed prd.json. It is read once and never mutated.
type TaskDescriptor struct {
	BranchName  string      `json:"branchName"`
	UserStories []UserStory `json:"userStories"`
}

// UserStory is one acceptance item in the descriptor.
type UserStory struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Passes bool   `json:"passes"`
}

// Symbol returns the display indicator for the story's status.
func (s UserStory) Symbol() string {
	if s.Passes {
		return "✅"
	}
	return "⬜"
}

// Status returns a human-readable label.
func (s UserStory) Status() string {
	if s.Passes {
		return "passes"
	}
	return "pending"
}

// Total returns the number of user stories.
func (d TaskDescriptor) Total() int {
	return len(d.UserStories)
}

// Passed returns the number of stories marked as passing.
func (d TaskDescriptor) Passed() int {
	n := 0
	for _, s := range d.UserStories {
		if s.Passes {
			n++
		}
	}
	return n
}

// rawDescriptor mirrors TaskDescriptor with pointer fields so that missing
// keys can be told apart from zero values.
type rawDescriptor struct {
	BranchName  *string    `json:"branchName"`
	UserStories *[]rawStory `json:"userStories"`
}

type rawStory struct {
	ID     *string `json:"id"`
	Title  *string `json:"title"`
	Passes *bool   `json:"passes"`
}

// Load reads and parses the descriptor at path. A missing or unreadable file
// wraps ErrNotFound; malformed JSON or a missing required field wraps ErrParse.
func Load(path string) (*TaskDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prd: failed to read %s (does the file exist in the current directory?): %w: %w", path, ErrNotFound, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("prd: failed to parse %s (is the JSON valid?): %w", path, err)
	}
	return d, nil
}

// Parse decodes descriptor JSON. Unknown fields are ignored; every field of
// the data model is required.
func Parse(data []byte) (*TaskDescriptor, error) {
	var raw rawDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if raw.BranchName == nil {
		return nil, fmt.Errorf("%w: missing field `branchName`", ErrParse)
	}
	if raw.UserStories == nil {
		return nil, fmt.Errorf("%w: missing field `userStories`", ErrParse)
	}

	d := &TaskDescriptor{
		BranchName:  *raw.BranchName,
		UserStories: make([]UserStory, 0, len(*raw.UserStories)),
	}
	for i, s := range *raw.UserStories {
		switch {
		case s.ID == nil:
			return nil, fmt.Errorf("%w: userStories[%d]: missing field `id`", ErrParse, i)
		case s.Title == nil:
			return nil, fmt.Errorf("%w: userStories[%d]: missing field `title`", ErrParse, i)
		case s.Passes == nil:
			return nil, fmt.Errorf("%w: userStories[%d]: missing field `passes`", ErrParse, i)
		}
		d.UserStories = append(d.UserStories, UserStory{ID: *s.ID, Title: *s.Title, Passes: *s.Passes})
	}
	return d, nil
}
