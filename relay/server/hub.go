package server

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/protocol"
)

// Tap observes every broadcast line after it has been enqueued to the
// active sessions. Taps run under the hub's dispatch lock and must not
// block; anything slow hands off to its own goroutine.
type Tap func(line string)

// Hub is the single ordering authority. Every accepted mutation or
// presence change is applied and fanned out inside one critical section,
// so all sessions observe the broadcast sequence in the same relative
// order, and the fan-out of an event completes before the next mutation
// can be applied.
type Hub struct {
	store    *TaskStore
	registry *PresenceRegistry
	logger   *log.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	taps     []Tap
}

func NewHub(store *TaskStore, registry *PresenceRegistry, logger *log.Logger) *Hub {
	return &Hub{
		store:    store,
		registry: registry,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}
}

// AddTap registers an observer for broadcast lines.
func (h *Hub) AddTap(tap Tap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taps = append(h.taps, tap)
}

// SessionCount returns the number of active sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Apply runs a mutation intent on behalf of author and broadcasts the
// canonical event to every active session, the originator included. A
// mutation referencing an unknown id is dropped without a broadcast.
func (h *Hub) Apply(author string, req protocol.Request) {
	metrics := newMutationMetrics(h.logger, string(req.Kind))

	h.mu.Lock()
	var event protocol.Event
	switch req.Kind {
	case protocol.RequestAdd:
		task := h.store.Add(req.Description, author)
		event = protocol.Event{Kind: protocol.EventAdd, Task: task}
	case protocol.RequestUpdate:
		task, err := h.store.Update(req.ID, req.Description, req.Completed, author)
		if err != nil {
			h.mu.Unlock()
			metrics.SetTaskID(req.ID)
			metrics.Log(outcomeNotFound)
			return
		}
		event = protocol.Event{Kind: protocol.EventUpdate, Task: task}
	case protocol.RequestDelete:
		if err := h.store.Delete(req.ID); err != nil {
			h.mu.Unlock()
			metrics.SetTaskID(req.ID)
			metrics.Log(outcomeNotFound)
			return
		}
		event = protocol.Event{Kind: protocol.EventDelete, Task: domain.Task{ID: req.ID}}
	default:
		h.mu.Unlock()
		metrics.Log(outcomeDropped)
		return
	}
	recipients := h.broadcastLocked(event.Encode(), nil)
	h.mu.Unlock()

	metrics.SetTaskID(event.Task.ID)
	metrics.SetRecipients(recipients)
	metrics.Log(outcomeApplied)
}

// admit registers the session. The CONNECT_OK payload, the replay of the
// current task collection and the USER_JOINED broadcast are captured under
// the hub lock, so the new session's event stream starts with a gap-free,
// duplicate-free prefix of the total order.
func (h *Hub) admit(sess *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	others, ok := h.registry.TryAdmit(sess.username)
	if !ok {
		return false
	}
	h.sessions[sess] = struct{}{}
	queued := sess.enqueue(protocol.Event{Kind: protocol.EventConnectOK, Users: others}.Encode())
	for _, task := range h.store.Snapshot() {
		queued = queued && sess.enqueue(protocol.Event{Kind: protocol.EventAdd, Task: task}.Encode())
	}
	if !queued {
		// The replica would start with a gap; treat it like any other
		// overflowing session.
		h.logger.WithField("username", sess.username).Warn("replay overflow, disconnecting session")
		go sess.Close()
	}
	h.broadcastLocked(protocol.Event{Kind: protocol.EventUserJoined, User: sess.username}.Encode(), sess)
	return true
}

// drop removes a closed session and announces its departure. It is
// idempotent; only the first call for an admitted session has effects.
func (h *Hub) drop(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sess]; !ok {
		return
	}
	delete(h.sessions, sess)
	h.registry.Remove(sess.username)
	sess.logger.Info("session closed")
	h.broadcastLocked(protocol.Event{Kind: protocol.EventUserLeft, User: sess.username}.Encode(), nil)
}

// broadcastLocked enqueues the line to every active session except skip and
// returns the recipient count. A session whose outbound buffer is full is
// treated as dead: it is closed asynchronously and takes its own departure
// path, so a slow or failed peer never stalls delivery to others.
func (h *Hub) broadcastLocked(line string, skip *Session) int {
	recipients := 0
	for sess := range h.sessions {
		if sess == skip {
			continue
		}
		if !sess.enqueue(line) {
			h.logger.WithFields(log.Fields{"conn": sess.id, "username": sess.username}).
				Warn("outbound buffer full, disconnecting slow session")
			go sess.Close()
			continue
		}
		recipients++
	}
	for _, tap := range h.taps {
		tap(line)
	}
	return recipients
}
