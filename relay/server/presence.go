package server

import (
	"sort"
	"sync"
)

// PresenceRegistry is the set of currently connected usernames. Admission
// and removal are atomic with respect to each other and to snapshots: two
// concurrent admits for the same name yield exactly one acceptance.
type PresenceRegistry struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{users: make(map[string]struct{})}
}

// TryAdmit registers the username if it is not already present. On success
// it returns the alphabetical list of users that were online before the
// admit, captured in the same critical section so it can serve as the
// CONNECT_OK payload.
func (r *PresenceRegistry) TryAdmit(username string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.users[username]; taken {
		return nil, false
	}
	others := sortedKeys(r.users)
	r.users[username] = struct{}{}
	return others, true
}

// Remove releases the username. Removing an absent name is a no-op.
func (r *PresenceRegistry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, username)
}

// Snapshot returns all online usernames in alphabetical order.
func (r *PresenceRegistry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.users)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
