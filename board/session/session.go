package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wricardo/collabboard/board/protocol"
	"github.com/wricardo/collabboard/board/state"
)

var ErrNotAttached = errors.New("subscriber not attached to session")

// Subscriber receives encoded messages for one participant.
type Subscriber interface {
	// Send queues msg without blocking and reports false if the
	// subscriber cannot take it.
	Send(msg []byte) bool

	// Close tells the subscriber it was removed from the session.
	// It is called exactly once per attachment.
	Close()
}

// Session is a named board and the participants connected to it
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	state        *state.SessionState
	subscribers  map[Subscriber]struct{}
	lastActiveAt time.Time
	retired      bool
	now          func() time.Time
}

// Summary is a point-in-time description of a session
type Summary struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Connections  int
	Guests       []string
	Strokes      int
	Textboxes    int
}

func newSession(id string, now func() time.Time) *Session {
	t := now()
	return &Session{
		ID:           id,
		CreatedAt:    t,
		state:        state.New(),
		subscribers:  make(map[Subscriber]struct{}),
		lastActiveAt: t,
		now:          now,
	}
}

// attach adds sub to the broadcast set. It fails once the session has been
// evicted from its registry.
func (s *Session) attach(sub Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return false
	}
	s.subscribers[sub] = struct{}{}
	s.lastActiveAt = s.now()
	return true
}

// Detach removes sub from the session and closes it. Nothing is sent to sub
// after Detach returns. Detaching twice is a no-op.
func (s *Session) Detach(sub Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(sub) {
		return false
	}
	s.lastActiveAt = s.now()
	return true
}

func (s *Session) removeLocked(sub Subscriber) bool {
	if _, ok := s.subscribers[sub]; !ok {
		return false
	}
	delete(s.subscribers, sub)
	sub.Close()
	return true
}

// Join records guestName and sends the full board state to sub alone.
func (s *Session) Join(sub Subscriber, guestName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[sub]; !ok {
		return ErrNotAttached
	}

	if s.state.AddGuest(guestName) {
		log.Printf("Guest %q joined session %s (guests: %d)", guestName, s.ID, len(s.state.Guests))
	}
	s.lastActiveAt = s.now()

	msg, err := protocol.EncodeUpdateOf(s.state.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if !sub.Send(msg) {
		s.removeLocked(sub)
		return fmt.Errorf("subscriber dropped snapshot for session %s", s.ID)
	}
	return nil
}

// Publish merges an update payload into the board and forwards the payload,
// unchanged, to every other subscriber. It returns the fields that were
// applied; when none were, nothing is forwarded. A payload with any invalid
// field is malformed and neither applied nor forwarded. Subscribers that
// cannot keep up are removed.
func (s *Session) Publish(sender Subscriber, payload json.RawMessage) ([]string, error) {
	patch, err := state.ParsePatch(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrMalformed, err)
	}
	if patch.Empty() {
		return nil, nil
	}

	msg, err := protocol.EncodeUpdate(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := s.state.Apply(patch)
	if len(applied) == 0 {
		return nil, nil
	}
	s.lastActiveAt = s.now()

	var slow []Subscriber
	for sub := range s.subscribers {
		if sub == sender {
			continue
		}
		if !sub.Send(msg) {
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		s.removeLocked(sub)
		log.Printf("Dropped slow subscriber from session %s (remaining: %d)", s.ID, len(s.subscribers))
	}

	return applied, nil
}

// Snapshot returns a copy of the current board state
func (s *Session) Snapshot() *state.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// ConnectionCount returns the number of attached subscribers
func (s *Session) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// LastActiveAt returns when the session last saw a join, update or membership change
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// Summary describes the session
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.lastActiveAt,
		Connections:  len(s.subscribers),
		Guests:       append([]string{}, s.state.Guests...),
		Strokes:      len(s.state.Strokes),
		Textboxes:    len(s.state.Textboxes),
	}
}

// retireIfIdle marks the session evicted when nobody is attached and it has
// been inactive since before cutoff.
func (s *Session) retireIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subscribers) > 0 || !s.lastActiveAt.Before(cutoff) {
		return false
	}
	s.retired = true
	return true
}
