package crop

import (
	"sync"
	"time"
)

// Sessions holds one crop session per admin session id. Each entry lives
// until its admin session expires; expired entries are swept on Get.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

type entry struct {
	session *Session
	expires time.Time
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*entry), now: time.Now}
}

// Get returns the session for id, creating an idle one if needed. expires is
// when the admin session ends.
func (r *Sessions) Get(id string, expires time.Time) *Session {
	r.mu.Lock()
	expired := r.sweep()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{session: NewSession()}
		r.sessions[id] = e
	}
	if expires.After(e.expires) {
		e.expires = expires
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Cancel()
	}
	return e.session
}

// Drop cancels and forgets the session for id.
func (r *Sessions) Drop(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.session.Cancel()
	}
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sweep forgets entries whose admin session has ended and returns their
// sessions. Callers hold mu.
func (r *Sessions) sweep() []*Session {
	now := r.now()
	var expired []*Session
	for id, e := range r.sessions {
		if !now.Before(e.expires) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	return expired
}
