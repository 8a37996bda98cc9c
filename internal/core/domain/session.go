package domain

import (
	"fmt"
	"time"
)

// Session pairs a host with at most one guest. GuestPeerID transitions
// empty -> set exactly once; Active becomes false when the host disconnects
// and never flips back.
type Session struct {
	ID          SessionID
	HostPeerID  PeerID
	GuestPeerID PeerID
	CreatedAt   time.Time
	Active      bool
	AuditLog    []AuditEntry
}

// AuditEntry records a registration or relay event on a session. Diagnostic
// only; nothing reads it to make protocol decisions.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	From      PeerID    `json:"from,omitempty"`
	To        PeerID    `json:"to,omitempty"`
}

// NewSessionID derives the session identifier from the host peer id and the
// creation time. Guests present this id verbatim when joining.
func NewSessionID(host PeerID, at time.Time) SessionID {
	return SessionID(fmt.Sprintf("%s_%d", host, at.UnixMilli()))
}

func (s *Session) HasGuest() bool {
	return s.GuestPeerID != ""
}

func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
