package domain

import (
	"fmt"
	"strings"
)

// MaxUsernameLen is the maximum length of a username in characters.
const MaxUsernameLen = 20

// NormalizeUsername trims the raw input and checks the format rules shared
// by the relay and the client: 1 to MaxUsernameLen characters, and neither
// ':' (the wire field delimiter) nor ',' (the online-user list separator)
// may appear. The returned name is the canonical form to admit or send.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("username cannot be empty")
	}
	if len(name) > MaxUsernameLen {
		return "", fmt.Errorf("username too long (max %d characters)", MaxUsernameLen)
	}
	if strings.ContainsAny(name, ":,") {
		return "", fmt.Errorf("username cannot contain ':' or ','")
	}
	return name, nil
}
