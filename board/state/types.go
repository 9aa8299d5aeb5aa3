package state

import (
	"encoding/json"
	"strings"
)

// ToolKind identifies the tool a stroke was drawn with
type ToolKind string

const (
	ToolPen    ToolKind = "pen"
	ToolEraser ToolKind = "eraser"

	// DefaultZoomLevel is the zoom of a freshly created board
	DefaultZoomLevel = 1.0
)

// Field names as they appear in update payloads
const (
	FieldStrokes      = "strokes"
	FieldTextboxes    = "textboxes"
	FieldZoomLevel    = "zoomLevel"
	FieldCodeText     = "codeText"
	FieldCodeLanguage = "codeLanguage"
)

// Point is a canvas coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous pen or eraser gesture
type Stroke struct {
	ToolKind ToolKind `json:"toolKind"`
	Color    string   `json:"color"`
	WidthPx  float64  `json:"widthPx"`
	Points   []Point  `json:"points"`
}

// UnmarshalJSON also accepts the "tool" and "width" spellings.
func (s *Stroke) UnmarshalJSON(data []byte) error {
	type plain Stroke
	var aux struct {
		plain
		Tool  *ToolKind `json:"tool"`
		Width *float64  `json:"width"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*s = Stroke(aux.plain)
	if s.ToolKind == "" && aux.Tool != nil {
		s.ToolKind = *aux.Tool
	}
	if s.WidthPx == 0 && aux.Width != nil {
		s.WidthPx = *aux.Width
	}
	return nil
}

// Textbox is a movable, resizable text area on the canvas
type Textbox struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Text   string  `json:"text"`
}

// UnmarshalJSON accepts numeric ids and the "w"/"h" spellings.
func (t *Textbox) UnmarshalJSON(data []byte) error {
	type plain Textbox
	var aux struct {
		plain
		ID json.RawMessage `json:"id"`
		W  *float64        `json:"w"`
		H  *float64        `json:"h"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*t = Textbox(aux.plain)
	id, err := decodeID(aux.ID)
	if err != nil {
		return err
	}
	t.ID = id
	if t.Width == 0 && aux.W != nil {
		t.Width = *aux.W
	}
	if t.Height == 0 && aux.H != nil {
		t.Height = *aux.H
	}
	return nil
}

// decodeID returns a JSON string as-is and a JSON number as its literal text
func decodeID(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", err
		}
		return id, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}

// SessionState is the authoritative board content of one session
type SessionState struct {
	Strokes      []Stroke  `json:"strokes"`
	Textboxes    []Textbox `json:"textboxes"`
	ZoomLevel    float64   `json:"zoomLevel"`
	CodeText     string    `json:"codeText"`
	CodeLanguage string    `json:"codeLanguage"`

	// Guests is kept sorted and free of duplicates.
	Guests []string `json:"guests"`
}
