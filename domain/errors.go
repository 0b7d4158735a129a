package domain

import "errors"

// ErrNotFound indicates that a mutation referenced a task id that is not in
// the collection. The intent is dropped without a broadcast; it is never
// surfaced to other sessions.
var ErrNotFound = errors.New("task not found")
