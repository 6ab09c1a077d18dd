// Package server defines shared helpers reused across connection, session
// and handler logic.
package server

import (
	"regexp"
	"strings"
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// validRoomName reports whether name can be used as a room identifier.
func validRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
