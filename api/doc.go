// Package api provides the HTTP surface of the board server.
//
// Endpoints:
//
// Realtime:
//   - GET /realtime/session/{sessionId} - WebSocket board connection
//   - GET /ws/board/{sessionId} - Same, at the path older clients use
//
// Sessions:
//   - GET /session-state/{sessionId} - Current board of a session
//   - GET /api/session/{sessionId} - Same, at the path older clients use
//   - POST /api/sessions - Create a session ({"session_id": "..."} optional)
//   - GET /api/sessions - List live sessions (sort=created|active, order, limit)
//   - GET /api/sessions/{sessionId} - Session details
//   - GET /api/sessions/{sessionId}/export.pdf - Board rendered as PDF
//
// Code editor:
//   - GET /api/languages - Language catalog
//   - POST /api/execute - Run code through the code runner
//
// Other:
//   - GET /api/health - Health check
//   - GET /board/{sessionId} - Board page
//   - GET / - Static files
//
// Error Handling:
//
// Errors are returned as JSON with an HTTP status matching the cause:
//
//	{"error": "session not found"}
//
// A failed code execution answers 500 with the runner's response attached:
//
//	{"error": "Request failed with status code 400", "details": {...}}
package api
