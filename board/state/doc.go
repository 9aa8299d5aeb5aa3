// Package state defines the shared board state kept for each collaboration session.
//
// A SessionState holds everything participants edit together:
//   - strokes drawn on the canvas (pen or eraser)
//   - text boxes placed on the canvas
//   - the zoom level of the canvas
//   - the contents and language of the code editor buffer
//   - the display names of every guest that ever joined
//
// Merge Policy:
//
// Updates arrive as a Patch, a subset of the editable fields. Apply replaces
// each field present in the patch wholesale and leaves the others untouched.
// There is no structural merge: when two participants change the same field,
// whichever patch is applied last wins.
//
// Wire Format:
//
// Field names follow the realtime protocol (strokes, textboxes, zoomLevel,
// codeText, codeLanguage, guests). Older clients that send zoom, code,
// language, tool, width, w or h are still understood on input.
package state
