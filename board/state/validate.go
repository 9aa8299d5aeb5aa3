package state

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidState = errors.New("invalid session state")

// Problems lists every invariant the state violates. An empty result means
// the state is consistent.
func (s *SessionState) Problems() []string {
	var problems []string

	if s.ZoomLevel <= 0 {
		problems = append(problems, fmt.Sprintf("zoomLevel must be positive, got %v", s.ZoomLevel))
	}

	for i, st := range s.Strokes {
		switch st.ToolKind {
		case ToolPen, ToolEraser:
		default:
			problems = append(problems, fmt.Sprintf("stroke %d: unknown tool kind %q", i, st.ToolKind))
		}
		if st.WidthPx < 0 {
			problems = append(problems, fmt.Sprintf("stroke %d: negative width %v", i, st.WidthPx))
		}
	}

	seen := make(map[string]int, len(s.Textboxes))
	for i, tb := range s.Textboxes {
		if tb.ID == "" {
			problems = append(problems, fmt.Sprintf("textbox %d: missing id", i))
			continue
		}
		if first, dup := seen[tb.ID]; dup {
			problems = append(problems, fmt.Sprintf("textbox %d: id %q already used by textbox %d", i, tb.ID, first))
			continue
		}
		seen[tb.ID] = i
	}

	return problems
}

// Validate returns ErrInvalidState describing every problem found.
func (s *SessionState) Validate() error {
	problems := s.Problems()
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, strings.Join(problems, "; "))
}
