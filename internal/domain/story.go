package domain

import "strings"

// Story is one unit of simulated delivery work.
type Story struct {
	ID                 string
	Title              string
	Description        string
	AcceptanceCriteria []string
	Status             Lane
	GeneratedCode      string
}

// StoryInput holds the static fields used to create a story.
type StoryInput struct {
	ID                 string   `toml:"id"`
	Title              string   `toml:"title"`
	Description        string   `toml:"description"`
	AcceptanceCriteria []string `toml:"acceptance"`
}

// NewStory validates input and returns a backlog story with an empty code buffer.
func NewStory(in StoryInput) (Story, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.ID == "" {
		return Story{}, ErrInvalidID
	}
	if in.Title == "" {
		return Story{}, ErrInvalidTitle
	}

	criteria := make([]string, 0, len(in.AcceptanceCriteria))
	for _, raw := range in.AcceptanceCriteria {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		criteria = append(criteria, item)
	}

	return Story{
		ID:                 in.ID,
		Title:              in.Title,
		Description:        in.Description,
		AcceptanceCriteria: criteria,
		Status:             LaneBacklog,
	}, nil
}

// Clone returns a copy that shares no slices with the receiver.
func (s Story) Clone() Story {
	s.AcceptanceCriteria = append([]string(nil), s.AcceptanceCriteria...)
	return s
}

// AppendCodeLine appends one line and its terminator to the generated code buffer.
func (s *Story) AppendCodeLine(line string) {
	s.GeneratedCode += line + "\n"
}

// ResetCode clears the generated code buffer.
func (s *Story) ResetCode() {
	s.GeneratedCode = ""
}

// Markdown renders the story detail as markdown for presentation layers.
func (s Story) Markdown() string {
	var b strings.Builder
	b.WriteString("# " + s.ID + " · " + s.Title + "\n\n")
	if s.Description != "" {
		b.WriteString(s.Description + "\n\n")
	}
	b.WriteString("**Status:** " + s.Status.Label() + "\n\n")
	if len(s.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance criteria\n\n")
		for _, item := range s.AcceptanceCriteria {
			b.WriteString("- " + item + "\n")
		}
	}
	return b.String()
}
