package ports

import (
	"context"
	"time"

	"deskrelay/internal/core/domain"
)

// Stats is the aggregate view consumed by the monitoring surface.
type Stats struct {
	Peers          int
	TotalSessions  int
	ActiveSessions int
}

// Signaling is the connection lifecycle manager plus relay engine. It owns
// every mutation of the peer registry and session store; transports and the
// HTTP surface go through it instead of touching the repositories directly.
type Signaling interface {
	// RegisterHost atomically creates a session and the host peer bound to
	// conn, returning the new session.
	RegisterHost(ctx context.Context, peerID domain.PeerID, conn domain.ConnectionHandle) (*domain.Session, error)
	// RegisterGuest joins an existing session, notifying the host peer that
	// its guest arrived.
	RegisterGuest(ctx context.Context, peerID domain.PeerID, sessionID domain.SessionID, conn domain.ConnectionHandle) (*domain.Session, error)
	// Relay forwards frame verbatim to the recipient peer. A missing
	// recipient is an expected race and is dropped silently.
	Relay(ctx context.Context, kind string, sender, recipient domain.PeerID, sessionID domain.SessionID, frame []byte)
	// Disconnect tears down the peer and, for hosts, deactivates the session
	// and notifies a joined guest. Idempotent.
	Disconnect(ctx context.Context, peerID domain.PeerID) error

	// Read-only snapshots for the monitoring endpoints.
	Peers(ctx context.Context) ([]*domain.Peer, error)
	Sessions(ctx context.Context) ([]*domain.Session, error)
	SessionByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	Stats(ctx context.Context) (Stats, error)
}

// MetricsRecorder decouples the core from the Prometheus collector.
type MetricsRecorder interface {
	RecordPeerRegistered(role domain.Role)
	RecordRegistrationRejected(reason string)
	RecordPeerDisconnected(role domain.Role, connectedFor time.Duration)
	RecordSessionCreated()
	RecordSessionDeactivated()
	RecordSessionsReaped(count int)
	RecordMessageRelayed(kind string)
	RecordRelayDrop()
}
