package client

import (
	"sort"
	"sync"

	"taskboard/domain"
	"taskboard/protocol"
)

// Replica is the client-side mirror of the board: an ordered task
// collection and a presence set, mutated only by decoded broadcast events.
// Local intents never touch it; they take effect when their echo returns
// from the relay, so the replica can never diverge from the total order.
type Replica struct {
	mu    sync.Mutex
	order []int
	tasks map[int]domain.Task
	users map[string]struct{}
}

func newReplica() *Replica {
	return &Replica{
		tasks: make(map[int]domain.Task),
		users: make(map[string]struct{}),
	}
}

// apply folds one broadcast event into the replica. Unknown event kinds
// are ignored.
func (r *Replica) apply(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Kind {
	case protocol.EventAdd, protocol.EventUpdate:
		if _, known := r.tasks[ev.Task.ID]; !known {
			r.order = append(r.order, ev.Task.ID)
		}
		r.tasks[ev.Task.ID] = ev.Task
	case protocol.EventDelete:
		if _, known := r.tasks[ev.Task.ID]; !known {
			return
		}
		delete(r.tasks, ev.Task.ID)
		for i, id := range r.order {
			if id == ev.Task.ID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	case protocol.EventUserJoined:
		r.users[ev.User] = struct{}{}
	case protocol.EventUserLeft:
		delete(r.users, ev.User)
	case protocol.EventOnlineUsers:
		r.replaceUsersLocked(ev.Users)
	}
}

// seed replaces the presence set wholesale; used once after a successful
// handshake.
func (r *Replica) seed(users []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceUsersLocked(users)
}

func (r *Replica) replaceUsersLocked(users []string) {
	r.users = make(map[string]struct{}, len(users))
	for _, u := range users {
		r.users[u] = struct{}{}
	}
}

// Tasks returns the mirrored collection in the relay's insertion order.
func (r *Replica) Tasks() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// Users returns the online usernames in alphabetical order.
func (r *Replica) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
