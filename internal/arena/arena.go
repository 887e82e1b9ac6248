// Package arena is the session registry: sessions are modeled as an arena
// keyed by radar id, so buses and subscribers never hold a strong reference
// to a session directly. In Go there are no weak references, so the arena
// instead owns the one strong reference to each session and everything else
// (buses, HTTP handlers) holds only the radar id and looks the session up
// through the arena on each use — a lookup miss after Lost/removal is simply
// "not found", never a dangling pointer.
package arena

import "sync"

// Session is the minimal interface the arena needs; internal/session.Session
// satisfies it. Kept narrow so the arena package has no import-time
// dependency on the session package (avoiding an import cycle, since
// session registers itself with the arena on creation).
type Session interface {
	ID() string
}

// Arena is the single global registry of live radar sessions.
type Arena struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// New returns an empty Arena.
func New() *Arena {
	return &Arena{sessions: make(map[string]Session)}
}

// Put registers a session under its id, replacing any prior session with
// the same id: at most one active session owns a radar id at a time —
// callers are responsible for tearing down the old one first.
func (a *Arena) Put(s Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[s.ID()] = s
}

// Get looks up a session by id. The ok result is false once the session
// has been removed (e.g. after transitioning to Lost), which callers treat
// as "radar no longer present" rather than an error.
func (a *Arena) Get(id string) (Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[id]
	return s, ok
}

// Remove deregisters a session by id. It is a no-op if the id is not
// currently registered, which happens harmlessly when a new discovery has
// already replaced it.
func (a *Arena) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, id)
}

// All returns a snapshot slice of every currently registered session, safe
// to range over without holding the arena's lock (used by the
// /v2/api/radars listing).
func (a *Arena) All() []Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	return out
}
