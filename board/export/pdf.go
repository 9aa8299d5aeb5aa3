// Package export renders board snapshots to documents.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/wricardo/collabboard/board/state"
)

const (
	pageMargin = 10.0
	// pxToMM is the scale used for boards that already fit on the page
	pxToMM = 0.25
)

type rgb struct{ r, g, b int }

var (
	black      = rgb{0, 0, 0}
	background = rgb{255, 255, 255}
)

// WritePDF draws the board on a landscape A4 page: strokes as line segments
// in their colour and width, erasers in the background colour and text
// boxes as bordered cells. A non-empty code buffer goes on a second page.
func WritePDF(w io.Writer, sessionID string, st *state.SessionState) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Board "+sessionID, true)
	pdf.SetCreator("collabboard", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.Text(pageMargin, pageMargin-3, tr(fmt.Sprintf("Session %s  zoom %.2f", sessionID, st.ZoomLevel)))

	b := boundsOf(st)
	scale := fitScale(b, pageW-2*pageMargin, pageH-2*pageMargin)
	toPage := func(x, y float64) (float64, float64) {
		return pageMargin + (x-b.minX)*scale, pageMargin + (y-b.minY)*scale
	}

	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")
	for _, stroke := range st.Strokes {
		c := parseColor(stroke.Color)
		if stroke.ToolKind == state.ToolEraser {
			c = background
		}
		pdf.SetDrawColor(c.r, c.g, c.b)
		pdf.SetLineWidth(math.Max(stroke.WidthPx*scale, 0.1))

		if len(stroke.Points) == 1 {
			x, y := toPage(stroke.Points[0].X, stroke.Points[0].Y)
			pdf.Line(x, y, x, y)
			continue
		}
		for i := 1; i < len(stroke.Points); i++ {
			x1, y1 := toPage(stroke.Points[i-1].X, stroke.Points[i-1].Y)
			x2, y2 := toPage(stroke.Points[i].X, stroke.Points[i].Y)
			pdf.Line(x1, y1, x2, y2)
		}
	}

	pdf.SetDrawColor(black.r, black.g, black.b)
	pdf.SetTextColor(black.r, black.g, black.b)
	pdf.SetLineWidth(0.2)
	pdf.SetFont("Helvetica", "", 10)
	for _, tb := range st.Textboxes {
		x, y := toPage(tb.X, tb.Y)
		width, height := tb.Width*scale, tb.Height*scale
		pdf.Rect(x, y, width, height, "D")
		if tb.Text == "" || width <= 2 {
			continue
		}
		pdf.SetXY(x+1, y+1)
		pdf.MultiCell(width-2, 4.5, tr(tb.Text), "", "L", false)
	}

	if st.CodeText != "" {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		title := "Code"
		if st.CodeLanguage != "" {
			title = fmt.Sprintf("Code (%s)", st.CodeLanguage)
		}
		pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		pdf.MultiCell(0, 4.2, tr(strings.ReplaceAll(st.CodeText, "\t", "    ")), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return nil
}

type bounds struct {
	minX, minY, maxX, maxY float64
	empty                  bool
}

func boundsOf(st *state.SessionState) bounds {
	b := bounds{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1), empty: true}
	add := func(x, y float64) {
		b.minX, b.maxX = math.Min(b.minX, x), math.Max(b.maxX, x)
		b.minY, b.maxY = math.Min(b.minY, y), math.Max(b.maxY, y)
		b.empty = false
	}
	for _, stroke := range st.Strokes {
		for _, p := range stroke.Points {
			add(p.X, p.Y)
		}
	}
	for _, tb := range st.Textboxes {
		add(tb.X, tb.Y)
		add(tb.X+tb.Width, tb.Y+tb.Height)
	}
	if b.empty {
		return bounds{empty: true}
	}
	// keep the board origin on the page when everything is in positive space
	if b.minX > 0 {
		b.minX = 0
	}
	if b.minY > 0 {
		b.minY = 0
	}
	return b
}

func fitScale(b bounds, availW, availH float64) float64 {
	if b.empty {
		return pxToMM
	}
	w, h := b.maxX-b.minX, b.maxY-b.minY
	scale := pxToMM
	if w > 0 {
		scale = math.Min(scale, availW/w)
	}
	if h > 0 {
		scale = math.Min(scale, availH/h)
	}
	return scale
}

// parseColor reads #rgb and #rrggbb colours. Anything else draws black.
func parseColor(s string) rgb {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return black
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return black
	}
	return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}
}
