package domain

import "time"

type PeerID string

type SessionID string

// Role is fixed at registration time and never changes for the lifetime
// of a peer.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleGuest
}

// ConnectionHandle is the send side of the transport connection a peer
// registered on. The handle is owned exclusively by one peer and must be
// safe for concurrent use.
type ConnectionHandle interface {
	// Send marshals v as JSON and writes it as a single message.
	Send(v interface{}) error
	// SendRaw writes an already-encoded message without inspecting it.
	SendRaw(data []byte) error
	// Close tears the connection down, driving the normal disconnect path.
	Close() error
}

type Peer struct {
	ID           PeerID
	Role         Role
	SessionID    SessionID
	Conn         ConnectionHandle
	RegisteredAt time.Time
}
