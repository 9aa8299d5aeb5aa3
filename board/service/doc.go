// Package service provides the operations the HTTP and MCP surfaces expose
// over the live board sessions.
//
// The service package implements:
//   - Session minting, lookup and listing
//   - Board state snapshots for REST clients
//   - The editor's language catalog
//   - Code execution through the configured runner
//
// BoardService is the interface consumed by the api package so handlers can
// be tested against a mock. NewBoardService wires it to a session registry,
// a language catalog and a code runner.
//
// Usage:
//
//	registry := session.NewRegistry()
//	languages, _ := config.NewManager("configs")
//	svc := service.NewBoardService(registry, languages, piston.NewClient(""))
//
//	info, err := svc.CreateSession(ctx, "")
package service
