package websocket

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wricardo/collabboard/board/protocol"
	"github.com/wricardo/collabboard/board/session"
)

// ConnState is the lifecycle state of a connection
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one participant's connection to a session
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *session.Session

	state     atomic.Int32
	closeOnce sync.Once

	mu        sync.Mutex
	guestName string
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues msg for the write pump. It reports false when the queue is full.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump. The session calls it once, when the client is
// detached.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.send)
	})
}

// GuestName returns the name the client joined with, empty before a named join
func (c *Client) GuestName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestName
}

func (c *Client) displayName() string {
	if name := c.GuestName(); name != "" {
		return name
	}
	return "anonymous"
}

// State returns the connection's lifecycle state
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// readPump dispatches inbound messages to the session until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.session.Detach(c)
		c.conn.Close()
		log.Printf("Client %s (%s) disconnected from session %s (remaining connections: %d)",
			c.id, c.displayName(), c.session.ID, c.session.ConnectionCount())
	}()

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	env, err := protocol.Decode(message)
	if err != nil {
		c.discard(err)
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		name := env.JoinName()
		if name != "" {
			c.mu.Lock()
			c.guestName = name
			c.mu.Unlock()
		}
		if err := c.session.Join(c, name); err != nil {
			log.Printf("Join failed for client %s in session %s: %v", c.id, c.session.ID, err)
			return
		}
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined))

	case protocol.TypeUpdate:
		if _, err := c.session.Publish(c, env.Payload); err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				c.discard(err)
				return
			}
			log.Printf("Update failed for client %s in session %s: %v", c.id, c.session.ID, err)
		}
	}
}

func (c *Client) discard(err error) {
	if c.hub.debug {
		log.Printf("Discarded frame from client %s in session %s: %v", c.id, c.session.ID, err)
	}
}

// writePump writes queued messages to the connection, one frame each
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session detached this client
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
