package mcp

import "sync"

// SessionRegistry tracks the MCP sessions that asked to watch run snapshots.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]struct{})}
}

// Watch subscribes a session to snapshot notifications.
func (r *SessionRegistry) Watch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers[sessionID] = struct{}{}
}

// Unwatch removes a session. Safe to call for unknown sessions.
func (r *SessionRegistry) Unwatch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, sessionID)
}

// Watching reports whether the session is subscribed.
func (r *SessionRegistry) Watching(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watchers[sessionID]
	return ok
}

// Watchers returns a copy of the subscribed session IDs.
func (r *SessionRegistry) Watchers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.watchers))
	for id := range r.watchers {
		ids = append(ids, id)
	}
	return ids
}
