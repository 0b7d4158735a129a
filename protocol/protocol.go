// Package protocol implements the line-delimited text codec spoken between
// the relay and its clients. A message is a single line, fields separated
// by ':'. Because a task description may itself contain ':', task payloads
// are parsed from the edges: the id is read from the front, the completed
// flag and the last-modified-by username from the back, and whatever
// remains in the middle is the description. The codec is tolerant: a line
// that cannot be decoded yields ErrMalformed and is dropped by callers, it
// never terminates a session.
package protocol

import "errors"

// ErrMalformed is returned for any line that cannot be decoded.
var ErrMalformed = errors.New("malformed message")

func parseCompleted(token string) (bool, error) {
	// Only the literal tokens are accepted on the wire.
	switch token {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, ErrMalformed
}

func formatCompleted(completed bool) string {
	if completed {
		return "true"
	}
	return "false"
}
