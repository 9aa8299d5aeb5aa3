package state

import (
	"sort"

	"github.com/google/uuid"
)

// New returns the state of a board nobody has touched yet
func New() *SessionState {
	return &SessionState{
		Strokes:   []Stroke{},
		Textboxes: []Textbox{},
		ZoomLevel: DefaultZoomLevel,
		Guests:    []string{},
	}
}

// Apply replaces every field present in p and returns the names of the
// fields it changed, in protocol order. A zoom level that is not positive
// is ignored. Apply keeps the slices of p; callers must not reuse them.
func (s *SessionState) Apply(p Patch) []string {
	var applied []string

	if p.Strokes != nil {
		s.Strokes = p.Strokes
		applied = append(applied, FieldStrokes)
	}
	if p.Textboxes != nil {
		s.Textboxes = p.Textboxes
		applied = append(applied, FieldTextboxes)
	}
	if p.ZoomLevel != nil && *p.ZoomLevel > 0 {
		s.ZoomLevel = *p.ZoomLevel
		applied = append(applied, FieldZoomLevel)
	}
	if p.CodeText != nil {
		s.CodeText = *p.CodeText
		applied = append(applied, FieldCodeText)
	}
	if p.CodeLanguage != nil {
		s.CodeLanguage = *p.CodeLanguage
		applied = append(applied, FieldCodeLanguage)
	}

	return applied
}

// AddGuest records a display name. It returns false if the name was
// already known or is empty.
func (s *SessionState) AddGuest(name string) bool {
	if name == "" {
		return false
	}
	i := sort.SearchStrings(s.Guests, name)
	if i < len(s.Guests) && s.Guests[i] == name {
		return false
	}
	s.Guests = append(s.Guests, "")
	copy(s.Guests[i+1:], s.Guests[i:])
	s.Guests[i] = name
	return true
}

// HasGuest reports whether name has ever joined
func (s *SessionState) HasGuest(name string) bool {
	i := sort.SearchStrings(s.Guests, name)
	return i < len(s.Guests) && s.Guests[i] == name
}

// Snapshot returns a deep copy with every list non-nil, safe to hand to
// encoders outside the owner's lock.
func (s *SessionState) Snapshot() *SessionState {
	out := &SessionState{
		Strokes:      make([]Stroke, len(s.Strokes)),
		Textboxes:    make([]Textbox, len(s.Textboxes)),
		ZoomLevel:    s.ZoomLevel,
		CodeText:     s.CodeText,
		CodeLanguage: s.CodeLanguage,
		Guests:       make([]string, len(s.Guests)),
	}
	for i, st := range s.Strokes {
		st.Points = append([]Point(nil), st.Points...)
		if st.Points == nil {
			st.Points = []Point{}
		}
		out.Strokes[i] = st
	}
	copy(out.Textboxes, s.Textboxes)
	copy(out.Guests, s.Guests)
	return out
}

// NewTextboxID returns a collision-free identifier for a new text box.
func NewTextboxID() string {
	return uuid.NewString()
}
