// Package presence tracks which users hold a live connection right now.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Registry maps each online user to the connection that announced them.
// Only one connection per user is tracked; the latest SetOnline wins.
// The registry is in-memory and resets with the process.
type Registry struct {
	mu       sync.RWMutex
	owners   map[string]string    // userID -> connectionID
	lastSeen map[string]time.Time // userID -> offline stamp
	now      func() time.Time
}

// NewRegistry creates an empty registry using the wall clock.
func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock creates an empty registry with an injected clock.
func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		owners:   make(map[string]string),
		lastSeen: make(map[string]time.Time),
		now:      now,
	}
}

// SetOnline records connID as the user's live connection and clears lastSeen.
func (r *Registry) SetOnline(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[userID] = connID
	delete(r.lastSeen, userID)
}

// SetOffline removes the user's connection, stamps lastSeen and returns it.
// Calling it for an already-offline user only refreshes the stamp.
func (r *Registry) SetOffline(userID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markOffline(userID)
}

// Release takes the user offline only if connID still owns the entry.
//
//   - owner matches: offline, returns (stamp, true)
//   - user already offline: stamp refreshed, returns (stamp, false)
//   - a newer connection owns the user: untouched, returns (zero, false)
func (r *Registry) Release(userID, connID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, online := r.owners[userID]
	switch {
	case !online:
		return r.markOffline(userID), false
	case owner == connID:
		return r.markOffline(userID), true
	default:
		return time.Time{}, false
	}
}

func (r *Registry) markOffline(userID string) time.Time {
	stamp := r.now().UTC()
	delete(r.owners, userID)
	r.lastSeen[userID] = stamp
	return stamp
}

// IsOnline reports whether the user currently has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[userID]
	return ok
}

// Owner returns the connection currently representing the user.
func (r *Registry) Owner(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.owners[userID]
	return connID, ok
}

// LastSeen returns the in-memory offline stamp, if this process saw the user leave.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.lastSeen[userID]
	return ts, ok
}

// ListOnline returns the online user IDs in sorted order.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.owners))
	for userID := range r.owners {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
