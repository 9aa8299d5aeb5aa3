// Package mcp provides a Model Context Protocol server for the collaborative board.
//
// The MCP server is a thin client of the board server's REST API, so it can
// run in a separate process (stdio mode) or be mounted on the board server
// itself (HTTP mode at /mcp).
//
// MCP Tools:
//   - create_session: Create a board session, optionally with a chosen ID
//   - list_sessions: List live sessions with connection and guest counts
//   - get_session: Get specific session details
//   - session_state: Describe the board content of a session
//   - list_languages: List languages the code editor can run
//   - execute_code: Run code through the configured code runner
//
// Usage:
//
//	// Stdio mode
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	response := client.GetMCPServer().HandleMessage(ctx, body)
package mcp
