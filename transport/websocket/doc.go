// Package websocket provides the realtime transport for shared boards.
//
// The websocket package implements:
//   - Upgrading HTTP requests addressed at a session into board connections
//   - Parsing the join/update envelope sent by clients
//   - Delivering join snapshots and peer updates through per-connection queues
//   - Keepalive with ping/pong deadlines
//   - Connection lifecycle management
//
// Architecture:
//
// There is no central event loop. Each connection runs a read pump and a
// write pump. The read pump dispatches inbound messages straight to the
// connection's session, which merges updates and enqueues them for every
// other attached connection while holding its own lock. The write pump
// drains the connection's queue, one frame per message.
//
// Message Protocol:
//
//   - Incoming: {"type":"join","payload":{"guestName":"ann"}} or
//     {"type":"update","payload":{"strokes":[...]}}
//   - Outgoing: {"type":"update","payload":{...}}, either the full board in
//     reply to a join or another participant's payload unchanged
//
// Malformed frames are dropped and the connection stays open.
//
// Usage:
//
//	registry := session.NewRegistry()
//	hub := websocket.NewHub(registry, websocket.WithMaxMessageSize(1<<20))
//
//	router.HandleFunc("/realtime/session/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, mux.Vars(r)["sessionId"])
//	})
//
// Connection Lifecycle:
//
// 1. Client connects with a session ID in the path (Connecting)
// 2. Connection attached to the session, created on first use
// 3. Client sends join and receives the board snapshot (Joined)
// 4. Client sends updates, receives everyone else's
// 5. Disconnection detaches the connection; the session keeps its state (Closed)
package websocket
