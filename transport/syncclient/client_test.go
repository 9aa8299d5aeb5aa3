package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/collabboard/board/protocol"
	"github.com/wricardo/collabboard/board/session"
	boardws "github.com/wricardo/collabboard/transport/websocket"
)

type recorder struct {
	mu       sync.Mutex
	payloads []json.RawMessage
	firsts   int
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) onUpdate(payload json.RawMessage, first bool) {
	r.mu.Lock()
	r.payloads = append(r.payloads, payload)
	if first {
		r.firsts++
	}
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for update")
	}
}

func (r *recorder) last() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[len(r.payloads)-1]
}

func wsURL(server *httptest.Server, sessionID string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime/session/" + sessionID
}

func newHubServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry()
	hub := boardws.NewHub(registry)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/realtime/session/"))
	}))
	t.Cleanup(server.Close)
	return server, registry
}

func TestNew(t *testing.T) {
	c, err := New(Config{URL: "ws://localhost:8080/realtime/session/abc"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.cfg.SessionID != "abc" {
		t.Errorf("Expected session ID from URL, got %q", c.cfg.SessionID)
	}
	if c.cfg.Delay != DefaultDelay || c.cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected defaults, got delay %s retries %d", c.cfg.Delay, c.cfg.MaxRetries)
	}

	if _, err := New(Config{URL: "http://localhost/realtime/session/abc"}); err == nil {
		t.Error("Expected error for http scheme")
	}
}

func TestRun_ReceivesSnapshotAndPeerUpdates(t *testing.T) {
	server, registry := newHubServer(t)

	client, err := New(Config{URL: wsURL(server, "abc"), GuestName: "ann"})
	if err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- client.Run(ctx, rec.onUpdate) }()

	rec.wait(t)
	var snapshot map[string]json.RawMessage
	json.Unmarshal(rec.last(), &snapshot)
	if _, ok := snapshot["guests"]; !ok {
		t.Errorf("Expected first payload to be the board snapshot, got %s", rec.last())
	}

	peer, _, err := websocket.DefaultDialer.Dial(wsURL(server, "abc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()
	peer.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","payload":{"zoomLevel":2}}`))

	rec.wait(t)
	if got := string(rec.last()); got != `{"zoomLevel":2}` {
		t.Errorf("Expected peer payload, got %s", got)
	}

	sess, _ := registry.Get("abc")
	if !sess.Snapshot().HasGuest("ann") {
		t.Error("Expected guest name recorded by join")
	}

	cancel()
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSend(t *testing.T) {
	server, _ := newHubServer(t)

	peer, _, err := websocket.DefaultDialer.Dial(wsURL(server, "abc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	client, _ := New(Config{URL: wsURL(server, "abc"), GuestName: "ann"})
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx, rec.onUpdate)

	if err := client.Send(ctx, json.RawMessage(`{"codeText":"hi"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := peer.ReadMessage()
	if err != nil {
		t.Fatalf("Peer did not receive update: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if string(env.Payload) != `{"codeText":"hi"}` {
		t.Errorf("Expected forwarded payload, got %s", env.Payload)
	}

	if err := client.Send(ctx, json.RawMessage(`{`)); !errors.Is(err, protocol.ErrMalformed) {
		t.Errorf("Expected ErrMalformed for invalid payload, got %v", err)
	}
}

func TestWriteLoop_KeepsPayloadWhenWriteFails(t *testing.T) {
	server, registry := newHubServer(t)

	client, err := New(Config{URL: wsURL(server, "abc"), GuestName: "ann"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "abc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	if err := client.Send(ctx, json.RawMessage(`{"codeText":"kept"}`)); err != nil {
		t.Fatal(err)
	}

	ready := make(chan struct{})
	close(ready)
	finished := make(chan struct{})
	go func() {
		client.writeLoop(ctx, conn, make(chan struct{}), ready)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("writeLoop did not return after a failed write")
	}

	if string(client.pending) != `{"codeText":"kept"}` {
		t.Fatalf("Expected failed payload to be kept, got %s", client.pending)
	}

	go client.Run(ctx, nil)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sess, err := registry.Get("abc"); err == nil && sess.Snapshot().CodeText == "kept" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected kept payload to be written after the next join")
}

func TestRun_RejoinsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	var joins []string
	connections := 0

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil || env.Type != protocol.TypeJoin {
			return
		}

		mu.Lock()
		joins = append(joins, env.JoinName())
		connections++
		n := connections
		mu.Unlock()

		msg, _ := protocol.EncodeUpdate(json.RawMessage(`{"strokes":[],"guests":["ann"]}`))
		conn.WriteMessage(websocket.TextMessage, msg)

		if n == 1 {
			// drop the first connection
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, _ := New(Config{URL: wsURL(server, "abc"), GuestName: "ann", Delay: 10 * time.Millisecond})
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx, rec.onUpdate)

	rec.wait(t)
	rec.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if len(joins) != 2 || joins[0] != "ann" || joins[1] != "ann" {
		t.Errorf("Expected join re-sent with guest name, got %v", joins)
	}
	rec.mu.Lock()
	if rec.firsts != 2 {
		t.Errorf("Expected a fresh snapshot per connection, got %d", rec.firsts)
	}
	rec.mu.Unlock()
}

func TestRun_RetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server, "abc")
	server.Close()

	client, _ := New(Config{URL: url, Delay: time.Millisecond, MaxRetries: 3})

	err := client.Run(context.Background(), nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("Expected ErrRetriesExhausted, got %v", err)
	}
}
