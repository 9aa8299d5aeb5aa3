package mcp

import (
	"fmt"
	"strings"

	"github.com/wricardo/collabboard/board/service"
	"github.com/wricardo/collabboard/board/state"
)

// ExecutionOutput is the part of a runner response shown to agents
type ExecutionOutput struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Compile  *StageOutput `json:"compile,omitempty"`
	Run      *StageOutput `json:"run,omitempty"`
}

// StageOutput is the result of the compile or run stage
type StageOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

func formatSessionInfo(session *service.SessionInfo) string {
	guests := "none"
	if len(session.Guests) > 0 {
		guests = strings.Join(session.Guests, ", ")
	}
	return fmt.Sprintf("Session: %s\nCreated: %s\nLast active: %s\nConnections: %d\nGuests: %s\nStrokes: %d\nText boxes: %d\n",
		session.ID,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		session.LastActiveAt.Format("2006-01-02 15:04:05"),
		session.Connections, guests, session.StrokeCount, session.TextboxCount)
}

func formatSessionState(sessionID string, st *state.SessionState) string {
	var result strings.Builder

	fmt.Fprintf(&result, "Session %s\n", sessionID)
	fmt.Fprintf(&result, "Zoom: %.2f\n", st.ZoomLevel)
	if len(st.Guests) > 0 {
		fmt.Fprintf(&result, "Guests: %s\n", strings.Join(st.Guests, ", "))
	}

	pens, erasers, points := 0, 0, 0
	for _, s := range st.Strokes {
		if s.ToolKind == state.ToolEraser {
			erasers++
		} else {
			pens++
		}
		points += len(s.Points)
	}
	fmt.Fprintf(&result, "Strokes: %d (%d pen, %d eraser, %d points)\n", len(st.Strokes), pens, erasers, points)

	fmt.Fprintf(&result, "Text boxes: %d\n", len(st.Textboxes))
	for _, tb := range st.Textboxes {
		text := strings.ReplaceAll(tb.Text, "\n", " ")
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(&result, "  [%s] at (%.0f,%.0f) %.0fx%.0f: %q\n", tb.ID, tb.X, tb.Y, tb.Width, tb.Height, text)
	}

	if st.CodeText == "" {
		result.WriteString("Code: (empty)\n")
	} else {
		lang := st.CodeLanguage
		if lang == "" {
			lang = "plain text"
		}
		fmt.Fprintf(&result, "Code (%s):\n```\n%s\n```\n", lang, strings.TrimRight(st.CodeText, "\n"))
	}

	return result.String()
}

func formatExecution(out *ExecutionOutput) string {
	var result strings.Builder
	fmt.Fprintf(&result, "%s %s\n", out.Language, out.Version)

	writeStage := func(name string, stage *StageOutput) {
		if stage == nil {
			return
		}
		if stage.Stdout != "" {
			fmt.Fprintf(&result, "\n%s stdout:\n%s", name, stage.Stdout)
		}
		if stage.Stderr != "" {
			fmt.Fprintf(&result, "\n%s stderr:\n%s", name, stage.Stderr)
		}
		if stage.Code != nil {
			fmt.Fprintf(&result, "\n%s exit code: %d\n", name, *stage.Code)
		}
		if stage.Signal != "" {
			fmt.Fprintf(&result, "%s signal: %s\n", name, stage.Signal)
		}
	}
	writeStage("compile", out.Compile)
	writeStage("run", out.Run)

	return result.String()
}
