package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// RequestKind identifies a client-to-relay message.
type RequestKind string

const (
	RequestConnect RequestKind = "CONNECT"
	RequestAdd     RequestKind = "ADD"
	RequestUpdate  RequestKind = "UPDATE"
	RequestDelete  RequestKind = "DELETE"
)

// Request is a decoded client intent. Only the fields relevant to Kind are
// populated: Username for CONNECT, Description for ADD, ID plus Description
// plus Completed for UPDATE, ID for DELETE.
type Request struct {
	Kind        RequestKind
	Username    string
	ID          int
	Description string
	Completed   bool
}

// ParseRequest decodes a client-to-relay line.
func ParseRequest(line string) (Request, error) {
	cmd, payload, found := strings.Cut(line, ":")
	if !found {
		return Request{}, ErrMalformed
	}
	switch RequestKind(cmd) {
	case RequestConnect:
		return Request{Kind: RequestConnect, Username: payload}, nil
	case RequestAdd:
		if strings.TrimSpace(payload) == "" {
			return Request{}, ErrMalformed
		}
		return Request{Kind: RequestAdd, Description: payload}, nil
	case RequestUpdate:
		// Payload is id:description:completed. The id is anchored at the
		// front and the completed flag at the back so the description may
		// contain ':'.
		front, rest, ok := strings.Cut(payload, ":")
		if !ok {
			return Request{}, ErrMalformed
		}
		last := strings.LastIndex(rest, ":")
		if last < 0 {
			return Request{}, ErrMalformed
		}
		id, err := strconv.Atoi(strings.TrimSpace(front))
		if err != nil {
			return Request{}, ErrMalformed
		}
		completed, err := parseCompleted(rest[last+1:])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: RequestUpdate, ID: id, Description: rest[:last], Completed: completed}, nil
	case RequestDelete:
		id, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil {
			return Request{}, ErrMalformed
		}
		return Request{Kind: RequestDelete, ID: id}, nil
	}
	return Request{}, ErrMalformed
}

// Encode renders the request as a wire line without the trailing newline.
func (r Request) Encode() string {
	switch r.Kind {
	case RequestConnect:
		return string(RequestConnect) + ":" + r.Username
	case RequestAdd:
		return string(RequestAdd) + ":" + r.Description
	case RequestUpdate:
		return fmt.Sprintf("%s:%d:%s:%s", RequestUpdate, r.ID, r.Description, formatCompleted(r.Completed))
	case RequestDelete:
		return fmt.Sprintf("%s:%d", RequestDelete, r.ID)
	}
	return ""
}
