// Package session holds the live collaboration sessions of the board server.
//
// The session package implements:
//   - A Registry mapping session IDs to Sessions, created on first use
//   - A per-session publish/subscribe group of connected participants
//   - Join handling (guest bookkeeping and snapshot delivery)
//   - Update merging and fan-out to every participant except the sender
//   - Optional eviction of idle sessions that have nobody connected
//
// Core Types:
//
// Registry is constructed once at process start and injected wherever
// sessions are needed. Session owns its board state and its set of
// Subscribers; a Subscriber is anything that can take an encoded message
// without blocking (a websocket connection in production, a channel in tests).
//
// Concurrency:
//
// Each Session has its own mutex. State changes, fan-out and membership
// changes of one session are serialized under it, so every participant sees
// updates in the order they were applied. Different sessions never share a
// lock. The Registry lock is only held to look up, create or evict entries.
//
// Usage:
//
//	registry := session.NewRegistry()
//
//	sess, err := registry.Connect("abc", conn)
//	if err != nil {
//		return err
//	}
//	defer sess.Detach(conn)
//
//	sess.Join(conn, "ann")
//	sess.Publish(conn, payload)
package session
