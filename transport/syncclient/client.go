// Package syncclient is a board participant that stays connected to a
// session across transient network failures.
//
// Run dials the session, sends join, and delivers every update it receives
// to a callback. When the connection drops it waits a fixed delay, dials
// again and re-joins, receiving a fresh snapshot. Consecutive failures are
// bounded; a successful join resets the count.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/wricardo/collabboard/board/protocol"
)

const (
	// DefaultDelay is the wait between a disconnect and the next dial
	DefaultDelay = time.Second

	// DefaultMaxRetries is the number of consecutive failed connections
	// tolerated before Run gives up
	DefaultMaxRetries = 10

	writeWait      = 10 * time.Second
	outboundBuffer = 64
)

var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// UpdateFunc receives update payloads in arrival order. first is set for
// the first payload on each connection, normally the join snapshot. A peer
// update queued before the join was handled can arrive ahead of it; the
// snapshot already contains that update, so applying payloads in order
// yields the same board.
type UpdateFunc func(payload json.RawMessage, first bool)

// Config describes the session to follow
type Config struct {
	// URL is the websocket address of the session, e.g.
	// ws://localhost:8080/realtime/session/abc
	URL       string
	SessionID string
	GuestName string

	Delay      time.Duration
	MaxRetries int // negative retries forever
	Header     http.Header
	Dialer     *websocket.Dialer
}

// Client is a reconnecting session participant
type Client struct {
	cfg      Config
	outbound chan json.RawMessage

	// pending holds a payload whose write failed. Only the write loop of
	// the current connection touches it.
	pending json.RawMessage
}

// New creates a client. Zero Delay and MaxRetries take the defaults, and
// an empty SessionID is taken from the last segment of the URL path.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid session URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid session URL: scheme must be ws or wss, got %q", u.Scheme)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = path.Base(u.Path)
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	return &Client{
		cfg:      cfg,
		outbound: make(chan json.RawMessage, outboundBuffer),
	}, nil
}

// Send queues an update payload. Payloads queued while disconnected, and a
// payload whose write failed, are written after the next join.
func (c *Client) Send(ctx context.Context, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("%w: payload is not valid JSON", protocol.ErrMalformed)
	}
	select {
	case c.outbound <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run follows the session until ctx is cancelled or reconnecting fails
// MaxRetries times in a row. It returns ctx.Err() on cancellation.
func (c *Client) Run(ctx context.Context, onUpdate UpdateFunc) error {
	b := &backoff.Backoff{
		Min:    c.cfg.Delay,
		Max:    c.cfg.Delay,
		Factor: 1,
	}

	for {
		joined, err := c.connect(ctx, onUpdate)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if joined {
			b.Reset()
		}
		if c.cfg.MaxRetries > 0 && int(b.Attempt()) >= c.cfg.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, int(b.Attempt()), err)
		}

		d := b.Duration()
		log.Printf("Session %s connection lost (%v), reconnecting in %s", c.cfg.SessionID, err, d)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// connect runs one connection until it fails. joined reports whether any
// update arrived after the join.
func (c *Client) connect(ctx context.Context, onUpdate UpdateFunc) (joined bool, err error) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return false, fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	join, err := protocol.EncodeJoin(c.cfg.SessionID, c.cfg.GuestName)
	if err != nil {
		return false, err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return false, fmt.Errorf("failed to send join: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	snapshotReceived := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, conn, done, snapshotReceived)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return joined, err
		}
		env, err := protocol.Decode(data)
		if err != nil || env.Type != protocol.TypeUpdate {
			continue
		}
		if onUpdate != nil {
			onUpdate(env.Payload, !joined)
		}
		if !joined {
			joined = true
			close(snapshotReceived)
		}
	}
}

// writeLoop forwards queued updates once the snapshot has arrived, and
// closes the connection when ctx is cancelled.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, done, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-done:
		return
	case <-ctx.Done():
		c.closeConn(conn)
		return
	}

	for {
		payload := c.pending
		if payload == nil {
			select {
			case payload = <-c.outbound:
			case <-done:
				return
			case <-ctx.Done():
				c.closeConn(conn)
				return
			}
		}
		c.pending = nil

		msg, err := protocol.EncodeUpdate(payload)
		if err != nil {
			log.Printf("Dropping update for session %s: %v", c.cfg.SessionID, err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.pending = payload
			conn.Close()
			return
		}
	}
}

func (c *Client) closeConn(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
}
