package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wricardo/collabboard/board/protocol"
	"github.com/wricardo/collabboard/board/state"
)

// fakeSubscriber records what a session sends it
type fakeSubscriber struct {
	mu       sync.Mutex
	messages [][]byte
	capacity int
	closed   int
}

func newFakeSubscriber(capacity int) *fakeSubscriber {
	return &fakeSubscriber{capacity: capacity}
}

func (f *fakeSubscriber) Send(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity >= 0 && len(f.messages) >= f.capacity {
		return false
	}
	f.messages = append(f.messages, msg)
	return true
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSubscriber) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.messages...)
}

func (f *fakeSubscriber) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func decodeUpdate(t *testing.T, msg []byte) map[string]json.RawMessage {
	t.Helper()
	env, err := protocol.Decode(msg)
	if err != nil {
		t.Fatalf("Failed to decode message %s: %v", msg, err)
	}
	if env.Type != protocol.TypeUpdate {
		t.Fatalf("Expected update message, got %q", env.Type)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	return payload
}

func decodeSnapshot(t *testing.T, msg []byte) state.SessionState {
	t.Helper()
	env, err := protocol.Decode(msg)
	if err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	var st state.SessionState
	if err := json.Unmarshal(env.Payload, &st); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	return st
}

func connect(t *testing.T, r *Registry, id string, sub Subscriber) *Session {
	t.Helper()
	sess, err := r.Connect(id, sub)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return sess
}

func TestSession_Join(t *testing.T) {
	r := NewRegistry()
	ann := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", ann)

	if err := sess.Join(ann, "ann"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	msgs := ann.received()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 snapshot message, got %d", len(msgs))
	}
	st := decodeSnapshot(t, msgs[0])
	if st.ZoomLevel != 1 {
		t.Errorf("Expected zoom 1, got %v", st.ZoomLevel)
	}
	if len(st.Strokes) != 0 || len(st.Textboxes) != 0 {
		t.Errorf("Expected empty board, got %+v", st)
	}
	if len(st.Guests) != 1 || st.Guests[0] != "ann" {
		t.Errorf("Expected guests [ann], got %v", st.Guests)
	}

	t.Run("empty name sends snapshot without guest", func(t *testing.T) {
		anon := newFakeSubscriber(-1)
		connect(t, r, "S1", anon)
		if err := sess.Join(anon, ""); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		st := decodeSnapshot(t, anon.received()[0])
		if len(st.Guests) != 1 {
			t.Errorf("Expected guest list unchanged, got %v", st.Guests)
		}
	})

	t.Run("repeat join does not duplicate guest", func(t *testing.T) {
		if err := sess.Join(ann, "ann"); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		if got := sess.Snapshot().Guests; len(got) != 1 {
			t.Errorf("Expected 1 guest, got %v", got)
		}
	})

	t.Run("join requires attachment", func(t *testing.T) {
		stranger := newFakeSubscriber(-1)
		if err := sess.Join(stranger, "eve"); !errors.Is(err, ErrNotAttached) {
			t.Errorf("Expected ErrNotAttached, got %v", err)
		}
		if len(stranger.received()) != 0 {
			t.Error("Expected nothing sent to unattached subscriber")
		}
	})
}

func TestSession_PublishDoesNotEcho(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	b := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", a)
	connect(t, r, "S1", b)

	payload := json.RawMessage(`{"strokes":[{"toolKind":"pen","color":"#000","widthPx":2,"points":[{"x":1,"y":1}]}]}`)
	applied, err := sess.Publish(a, payload)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(applied) != 1 || applied[0] != state.FieldStrokes {
		t.Errorf("Expected [strokes] applied, got %v", applied)
	}

	if got := len(a.received()); got != 0 {
		t.Errorf("Sender received %d messages, expected none", got)
	}
	msgs := b.received()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message for peer, got %d", len(msgs))
	}
	fields := decodeUpdate(t, msgs[0])
	if _, ok := fields["strokes"]; !ok || len(fields) != 1 {
		t.Errorf("Expected payload forwarded unchanged, got %s", msgs[0])
	}

	if n := len(sess.Snapshot().Strokes); n != 1 {
		t.Errorf("Expected 1 stroke in state, got %d", n)
	}
}

func TestSession_PublishMerge(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", a)

	t.Run("disjoint fields both survive", func(t *testing.T) {
		if _, err := sess.Publish(a, json.RawMessage(`{"codeText":"x=1"}`)); err != nil {
			t.Fatal(err)
		}
		if _, err := sess.Publish(a, json.RawMessage(`{"zoomLevel":2}`)); err != nil {
			t.Fatal(err)
		}
		st := sess.Snapshot()
		if st.CodeText != "x=1" || st.ZoomLevel != 2 {
			t.Errorf("Expected codeText x=1 and zoom 2, got %q and %v", st.CodeText, st.ZoomLevel)
		}
	})

	t.Run("same field last applied wins", func(t *testing.T) {
		sess.Publish(a, json.RawMessage(`{"zoomLevel":3}`))
		sess.Publish(a, json.RawMessage(`{"zoomLevel":1.5}`))
		if z := sess.Snapshot().ZoomLevel; z != 1.5 {
			t.Errorf("Expected zoom 1.5, got %v", z)
		}
	})

	t.Run("empty list clears", func(t *testing.T) {
		sess.Publish(a, json.RawMessage(`{"textboxes":[{"id":"t1","x":0,"y":0,"width":10,"height":10,"text":"hi"}]}`))
		sess.Publish(a, json.RawMessage(`{"textboxes":[]}`))
		if n := len(sess.Snapshot().Textboxes); n != 0 {
			t.Errorf("Expected textboxes cleared, got %d", n)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		before := sess.Snapshot()
		_, err := sess.Publish(a, json.RawMessage(`{"strokes":"nope"}`))
		if !errors.Is(err, protocol.ErrMalformed) {
			t.Errorf("Expected ErrMalformed, got %v", err)
		}
		if after := sess.Snapshot(); after.ZoomLevel != before.ZoomLevel || after.CodeText != before.CodeText {
			t.Error("Expected state unchanged after malformed update")
		}
	})
}

func TestSession_PublishWithoutFieldsIsNotForwarded(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	b := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", a)
	connect(t, r, "S1", b)

	for _, payload := range []string{`{}`, `{"unknown":1}`, `{"zoomLevel":null}`} {
		applied, err := sess.Publish(a, json.RawMessage(payload))
		if err != nil {
			t.Errorf("Publish(%s) returned error: %v", payload, err)
		}
		if len(applied) != 0 {
			t.Errorf("Publish(%s) applied %v", payload, applied)
		}
	}
	if got := len(b.received()); got != 0 {
		t.Errorf("Expected no forwarded messages, got %d", got)
	}
	if z := sess.Snapshot().ZoomLevel; z != 1 {
		t.Errorf("Expected zoom to stay 1, got %v", z)
	}
}

func TestSession_InvalidZoomRejectsWholeUpdate(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	b := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", a)
	connect(t, r, "S1", b)

	for _, payload := range []string{`{"zoomLevel":-3,"codeText":"x"}`, `{"zoomLevel":0}`, `{"zoom":-1,"strokes":[]}`} {
		applied, err := sess.Publish(a, json.RawMessage(payload))
		if !errors.Is(err, protocol.ErrMalformed) || !errors.Is(err, state.ErrInvalidZoom) {
			t.Errorf("Publish(%s): expected malformed invalid zoom, got %v", payload, err)
		}
		if len(applied) != 0 {
			t.Errorf("Publish(%s) applied %v", payload, applied)
		}
	}

	if got := len(b.received()); got != 0 {
		t.Errorf("Expected nothing forwarded to peers, got %d messages", got)
	}
	st := sess.Snapshot()
	if st.ZoomLevel != 1 || st.CodeText != "" || len(st.Strokes) != 0 {
		t.Errorf("Expected board untouched, got zoom %v code %q strokes %d", st.ZoomLevel, st.CodeText, len(st.Strokes))
	}
}

func TestSession_PublishForwardsPayloadBytes(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	b := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", a)
	connect(t, r, "S1", b)

	payload := `{ "codeText" : "if a<b && c>d {}" }`
	if _, err := sess.Publish(a, json.RawMessage(payload)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs := b.received()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 forwarded message, got %d", len(msgs))
	}
	want := `{"type":"update","payload":` + payload + `}`
	if string(msgs[0]) != want {
		t.Errorf("Expected %s, got %s", want, msgs[0])
	}
	if sess.Snapshot().CodeText != "if a<b && c>d {}" {
		t.Errorf("Unexpected code text %q", sess.Snapshot().CodeText)
	}
}

func TestSession_SlowSubscriberIsDropped(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	slow := newFakeSubscriber(1)
	sess := connect(t, r, "S1", a)
	connect(t, r, "S1", slow)

	sess.Publish(a, json.RawMessage(`{"codeText":"1"}`))
	sess.Publish(a, json.RawMessage(`{"codeText":"2"}`))

	if sess.ConnectionCount() != 1 {
		t.Errorf("Expected slow subscriber detached, connections = %d", sess.ConnectionCount())
	}
	if slow.closeCount() != 1 {
		t.Errorf("Expected slow subscriber closed once, got %d", slow.closeCount())
	}

	sess.Publish(a, json.RawMessage(`{"codeText":"3"}`))
	if got := len(slow.received()); got != 1 {
		t.Errorf("Expected nothing sent after drop, got %d messages", got)
	}
}

func TestSession_Detach(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber(-1)
	b := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", a)
	connect(t, r, "S1", b)
	sess.Join(a, "ann")

	if !sess.Detach(a) {
		t.Fatal("Expected Detach to report removal")
	}
	if sess.Detach(a) {
		t.Error("Expected second Detach to be a no-op")
	}
	if a.closeCount() != 1 {
		t.Errorf("Expected Close called once, got %d", a.closeCount())
	}

	sess.Publish(b, json.RawMessage(`{"codeText":"after"}`))
	if got := len(a.received()); got != 1 {
		t.Errorf("Expected only the join snapshot for detached subscriber, got %d", got)
	}

	if !sess.Snapshot().HasGuest("ann") {
		t.Error("Expected guest to remain after disconnect")
	}
}

func TestSession_ConcurrentPublish(t *testing.T) {
	r := NewRegistry()
	observer := newFakeSubscriber(-1)
	sess := connect(t, r, "S1", observer)

	const writers = 8
	const perWriter = 25

	written := make(map[float64]bool)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		writer := newFakeSubscriber(-1)
		connect(t, r, "S1", writer)
		for j := 0; j < perWriter; j++ {
			written[float64(i*perWriter+j+1)] = true
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				zoom := i*perWriter + j + 1
				sess.Publish(writer, json.RawMessage(fmt.Sprintf(`{"zoomLevel":%d}`, zoom)))
			}
		}(i)
	}
	wg.Wait()

	msgs := observer.received()
	if len(msgs) != writers*perWriter {
		t.Fatalf("Expected %d messages, got %d", writers*perWriter, len(msgs))
	}
	var lastSeen struct {
		ZoomLevel float64 `json:"zoomLevel"`
	}
	env, err := protocol.Decode(msgs[len(msgs)-1])
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(env.Payload, &lastSeen); err != nil {
		t.Fatal(err)
	}

	late := newFakeSubscriber(-1)
	connect(t, r, "S1", late)
	if err := sess.Join(late, "late"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	st := decodeSnapshot(t, late.received()[0])

	if !written[st.ZoomLevel] {
		t.Errorf("Snapshot zoom %v was never written", st.ZoomLevel)
	}
	if st.ZoomLevel != lastSeen.ZoomLevel {
		t.Errorf("Snapshot zoom %v differs from last forwarded zoom %v", st.ZoomLevel, lastSeen.ZoomLevel)
	}
}
