package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/protocol"
)

// Sink receives events for one connection. Deliver must not block; it reports
// false when the event was dropped.
type Sink interface {
	Deliver(evt protocol.Event) bool
}

// Session is one verified connection. Its board and locks live in the
// presence and lock tables.
type Session struct {
	ID       string
	Identity model.Identity
	OpenedAt time.Time
	sink     Sink
}

func (s *Session) Deliver(evt protocol.Event) bool {
	return s.sink.Deliver(evt)
}

type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Open registers a connection for a verified identity.
func (r *SessionRegistry) Open(who model.Identity, sink Sink) (*Session, error) {
	if err := who.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: session needs a sink", ErrValidation)
	}
	s := &Session{ID: uuid.NewString(), Identity: who, OpenedAt: time.Now(), sink: sink}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close forgets the session. Closing twice is a no-op.
func (r *SessionRegistry) Close(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
