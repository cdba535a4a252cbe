// Package realtime tracks which authenticated users currently hold a live
// real-time connection. The registry is process-wide state created at server
// start; entries are added when the messaging layer completes an
// authenticated handshake and removed on disconnect or logout. It is purely
// ephemeral presence data and never a substitute for the persisted device
// session.
package realtime

import "sync"

// Registry maps user ids to their live connection identifier.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]string
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]string)}
}

// Register records a live connection for the user, replacing any previous
// one. A user has at most one tracked connection.
func (r *Registry) Register(userID int64, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = connID
}

// Unregister drops the user's connection entry. Unregistering an absent
// user is a no-op.
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, userID)
}

// Lookup returns the connection id for a user, if one is live.
func (r *Registry) Lookup(userID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.conns[userID]
	return connID, ok
}

// Count returns the number of users with a live connection.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
