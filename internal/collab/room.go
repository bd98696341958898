// Package collab holds the canonical room identifier rules and the pure
// role-derivation logic shared by the token endpoint and the realtime layer.
package collab

import "strings"

// DefaultRoom is the room clients land in when they do not name one.
const DefaultRoom = "global"

// SessionPrefix marks rooms that are backed by a collaborative session
// entity owned by the external session service.
const SessionPrefix = "session:"

// IsSessionRoom reports whether a requested room refers to a session entity.
func IsSessionRoom(room string) bool {
	return strings.HasPrefix(room, SessionPrefix)
}

// SessionKey extracts the id-or-slug part of a session room request.
// Returns "" when the request carries no usable key.
func SessionKey(room string) string {
	return strings.TrimSpace(strings.TrimPrefix(room, SessionPrefix))
}

// CanonicalRoom builds the canonical identifier for a resolved session.
// Every downstream lookup (registry, history, snapshots) keys on this form,
// so slug- and id-addressed requests converge on one partition.
func CanonicalRoom(sessionID string) string {
	return SessionPrefix + sessionID
}

// NormalizeRoom canonicalizes a non-session room request. Empty requests
// fall back to the default room.
func NormalizeRoom(room string) string {
	room = strings.TrimSpace(room)
	if room == "" {
		return DefaultRoom
	}
	return room
}

// NormalizeEmail lowercases and trims an email for identity comparison.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
