package websocket

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/collabboard/board/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is the default read limit per frame. Updates
	// carry whole stroke lists, so this is much larger than a chat frame.
	DefaultMaxMessageSize = 1 << 20

	// Outbound messages queued per connection before it counts as too slow.
	sendBufferSize = 256
)

// Hub accepts board connections and binds them to sessions
type Hub struct {
	registry       *session.Registry
	upgrader       websocket.Upgrader
	maxMessageSize int64
	allowedOrigins map[string]bool
	debug          bool
}

// Option configures a Hub
type Option func(*Hub)

// WithMaxMessageSize sets the largest inbound frame accepted
func WithMaxMessageSize(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// WithAllowedOrigins restricts browser connections to the given origins.
// Entries may be full origins ("https://board.example.com") or bare hosts.
// With no entries every origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				h.allowedOrigins[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
			}
		}
	}
}

// WithDebug logs discarded frames
func WithDebug(debug bool) Option {
	return func(h *Hub) {
		h.debug = debug
	}
}

// NewHub creates a hub serving sessions from registry
func NewHub(registry *session.Registry, opts ...Option) *Hub {
	h := &Hub{
		registry:       registry,
		maxMessageSize: DefaultMaxMessageSize,
		allowedOrigins: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// not a browser
		return true
	}
	if h.allowedOrigins[strings.ToLower(origin)] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return h.allowedOrigins[strings.ToLower(u.Host)] || h.allowedOrigins[strings.ToLower(u.Hostname())]
}

// ServeWS upgrades the request and attaches the connection to sessionID.
// Invalid session IDs are refused before the upgrade.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := session.ValidateID(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(h, conn)
	sess, err := h.registry.Connect(sessionID, client)
	if err != nil {
		log.Printf("Failed to attach connection to session %s: %v", sessionID, err)
		conn.Close()
		return
	}
	client.session = sess

	log.Printf("Client %s connected to session %s (connections: %d)",
		client.id, sessionID, sess.ConnectionCount())

	go client.writePump()
	go client.readPump()
}
