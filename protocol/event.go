package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"taskboard/domain"
)

// EventKind identifies a relay-to-client message.
type EventKind string

const (
	EventConnectOK    EventKind = "CONNECT_OK"
	EventConnectError EventKind = "CONNECT_ERROR"
	EventAdd          EventKind = "ADD"
	EventUpdate       EventKind = "UPDATE"
	EventDelete       EventKind = "DELETE"
	EventUserJoined   EventKind = "USER_JOINED"
	EventUserLeft     EventKind = "USER_LEFT"
	EventOnlineUsers  EventKind = "ONLINE_USERS"
)

// Event is a decoded relay-to-client message. Task is populated for ADD and
// UPDATE (only Task.ID for DELETE), User for USER_JOINED and USER_LEFT,
// Users for CONNECT_OK and ONLINE_USERS, Reason for CONNECT_ERROR.
type Event struct {
	Kind   EventKind
	Task   domain.Task
	User   string
	Users  []string
	Reason string
}

// ParseEvent decodes a relay-to-client line.
func ParseEvent(line string) (Event, error) {
	cmd, payload, found := strings.Cut(line, ":")
	if !found {
		return Event{}, ErrMalformed
	}
	switch EventKind(cmd) {
	case EventAdd, EventUpdate:
		task, err := parseTaskPayload(payload)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventKind(cmd), Task: task}, nil
	case EventDelete:
		id, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil {
			return Event{}, ErrMalformed
		}
		return Event{Kind: EventDelete, Task: domain.Task{ID: id}}, nil
	case EventUserJoined, EventUserLeft:
		if payload == "" {
			return Event{}, ErrMalformed
		}
		return Event{Kind: EventKind(cmd), User: payload}, nil
	case EventConnectOK, EventOnlineUsers:
		// An empty payload means no other users are online.
		return Event{Kind: EventKind(cmd), Users: splitUsers(payload)}, nil
	case EventConnectError:
		return Event{Kind: EventConnectError, Reason: payload}, nil
	}
	return Event{}, ErrMalformed
}

// parseTaskPayload decodes id:description:completed:lastModifiedBy. The id
// is read up to the first colon, lastModifiedBy and completed from the last
// two colons, and everything between them is the description, embedded
// colons included.
func parseTaskPayload(payload string) (domain.Task, error) {
	front, rest, ok := strings.Cut(payload, ":")
	if !ok {
		return domain.Task{}, ErrMalformed
	}
	id, err := strconv.Atoi(front)
	if err != nil {
		return domain.Task{}, ErrMalformed
	}
	last := strings.LastIndex(rest, ":")
	if last < 0 {
		return domain.Task{}, ErrMalformed
	}
	secondLast := strings.LastIndex(rest[:last], ":")
	if secondLast < 0 {
		return domain.Task{}, ErrMalformed
	}
	completed, err := parseCompleted(rest[secondLast+1 : last])
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:             id,
		Description:    rest[:secondLast],
		Completed:      completed,
		LastModifiedBy: rest[last+1:],
	}, nil
}

func splitUsers(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, ",")
}

// Encode renders the event as a wire line without the trailing newline.
func (e Event) Encode() string {
	switch e.Kind {
	case EventAdd, EventUpdate:
		return fmt.Sprintf("%s:%d:%s:%s:%s",
			e.Kind, e.Task.ID, e.Task.Description, formatCompleted(e.Task.Completed), e.Task.LastModifiedBy)
	case EventDelete:
		return fmt.Sprintf("%s:%d", EventDelete, e.Task.ID)
	case EventUserJoined, EventUserLeft:
		return string(e.Kind) + ":" + e.User
	case EventConnectOK, EventOnlineUsers:
		return string(e.Kind) + ":" + strings.Join(e.Users, ",")
	case EventConnectError:
		return string(EventConnectError) + ":" + e.Reason
	}
	return ""
}
