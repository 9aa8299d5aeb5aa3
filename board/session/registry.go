package session

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// MaxSessionIDLength is the longest session ID the registry accepts, in bytes
const MaxSessionIDLength = 256

// Registry maps session IDs to live sessions
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// ValidateID checks that id can name a session. IDs are case-sensitive
// and must be usable as a single URL path segment.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidSessionID, MaxSessionIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: contains %q", ErrInvalidSessionID, r)
		}
		switch r {
		case '/', '?', '#':
			return fmt.Errorf("%w: contains %q", ErrInvalidSessionID, r)
		}
	}
	return nil
}

// NewID returns a random session ID
func NewID() string {
	return uuid.NewString()
}

// ResolveOrCreate returns the session for id, creating an empty one on
// first use. Concurrent callers with the same id get the same Session.
func (r *Registry) ResolveOrCreate(id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	sess, exists := r.sessions[id]
	r.mu.RUnlock()
	if exists {
		return sess, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, exists := r.sessions[id]; exists {
		return sess, nil
	}
	sess = newSession(id, r.now)
	r.sessions[id] = sess
	log.Printf("Created session %s (active sessions: %d)", id, len(r.sessions))
	return sess, nil
}

// Create registers a new empty session. An empty id gets a generated one.
func (r *Registry) Create(id string) (*Session, error) {
	if id == "" {
		id = NewID()
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, ErrSessionAlreadyExists
	}
	sess := newSession(id, r.now)
	r.sessions[id] = sess
	log.Printf("Created session %s (active sessions: %d)", id, len(r.sessions))
	return sess, nil
}

// Connect resolves the session for id and attaches sub to it. If the
// session is evicted between the lookup and the attach, a fresh one is
// resolved.
func (r *Registry) Connect(id string, sub Subscriber) (*Session, error) {
	for {
		sess, err := r.ResolveOrCreate(id)
		if err != nil {
			return nil, err
		}
		if sess.attach(sub) {
			return sess, nil
		}
	}
}

// Get returns an existing session
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns all sessions ordered by ID
func (r *Registry) List() []*Session {
	r.mu.RLock()
	result := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		result = append(result, sess)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle removes sessions with no subscribers that have been inactive
// for longer than maxIdle and returns how many were removed.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0

	for id, sess := range r.sessions {
		if sess.retireIfIdle(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		log.Printf("Evicted %d idle sessions (active sessions: %d)", removed, len(r.sessions))
	}
	return removed
}
