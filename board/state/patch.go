package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidZoom is returned for an update whose zoom level is not positive
var ErrInvalidZoom = errors.New("zoom level must be positive")

// Patch is the content of an update message. A nil slice or pointer means
// the field was absent; an empty non-nil slice replaces the list with nothing.
type Patch struct {
	Strokes      []Stroke
	Textboxes    []Textbox
	ZoomLevel    *float64
	CodeText     *string
	CodeLanguage *string
}

// Empty reports whether the patch carries no recognized field.
func (p Patch) Empty() bool {
	return p.Strokes == nil && p.Textboxes == nil && p.ZoomLevel == nil &&
		p.CodeText == nil && p.CodeLanguage == nil
}

// MarshalJSON writes only the fields that are present.
func (p Patch) MarshalJSON() ([]byte, error) {
	out := struct {
		Strokes      *[]Stroke  `json:"strokes,omitempty"`
		Textboxes    *[]Textbox `json:"textboxes,omitempty"`
		ZoomLevel    *float64   `json:"zoomLevel,omitempty"`
		CodeText     *string    `json:"codeText,omitempty"`
		CodeLanguage *string    `json:"codeLanguage,omitempty"`
	}{
		ZoomLevel:    p.ZoomLevel,
		CodeText:     p.CodeText,
		CodeLanguage: p.CodeLanguage,
	}
	if p.Strokes != nil {
		out.Strokes = &p.Strokes
	}
	if p.Textboxes != nil {
		out.Textboxes = &p.Textboxes
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a patch, treating null as absent. The "zoom", "code"
// and "language" keys are read when the current names are missing.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var aux struct {
		Strokes      []Stroke  `json:"strokes"`
		Textboxes    []Textbox `json:"textboxes"`
		ZoomLevel    *float64  `json:"zoomLevel"`
		CodeText     *string   `json:"codeText"`
		CodeLanguage *string   `json:"codeLanguage"`

		Zoom     *float64 `json:"zoom"`
		Code     *string  `json:"code"`
		Language *string  `json:"language"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = Patch{
		Strokes:      aux.Strokes,
		Textboxes:    aux.Textboxes,
		ZoomLevel:    aux.ZoomLevel,
		CodeText:     aux.CodeText,
		CodeLanguage: aux.CodeLanguage,
	}
	if p.ZoomLevel == nil {
		p.ZoomLevel = aux.Zoom
	}
	if p.CodeText == nil {
		p.CodeText = aux.Code
	}
	if p.CodeLanguage == nil {
		p.CodeLanguage = aux.Language
	}
	return nil
}

// ParsePatch decodes an update payload. A payload carrying a zoom level
// that is not positive is rejected as a whole.
func ParsePatch(payload []byte) (Patch, error) {
	var p Patch
	if len(payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return Patch{}, err
	}
	if p.ZoomLevel != nil && !(*p.ZoomLevel > 0) {
		return Patch{}, fmt.Errorf("%w, got %v", ErrInvalidZoom, *p.ZoomLevel)
	}
	return p, nil
}
