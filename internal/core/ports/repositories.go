package ports

import (
	"context"
	"time"

	"deskrelay/internal/core/domain"
)

type PeerRegistry interface {
	// Register inserts the peer, failing with domain.ErrPeerIDTaken if the
	// id is already present. No side effect on failure.
	Register(ctx context.Context, peer *domain.Peer) error
	GetByID(ctx context.Context, id domain.PeerID) (*domain.Peer, error)
	// Remove is idempotent.
	Remove(ctx context.Context, id domain.PeerID) error
	List(ctx context.Context) ([]*domain.Peer, error)
	Count(ctx context.Context) (int, error)
}

type SessionStore interface {
	// CreateForHost generates the session id from the host peer id and the
	// current time, inserts the session and marks it active.
	CreateForHost(ctx context.Context, host domain.PeerID) (*domain.Session, error)
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	// JoinAsGuest sets the guest peer id exactly once, failing with
	// domain.ErrSessionNotFound or domain.ErrSessionFull.
	JoinAsGuest(ctx context.Context, id domain.SessionID, guest domain.PeerID) (*domain.Session, error)
	// Deactivate is a no-op on absent or already inactive sessions.
	Deactivate(ctx context.Context, id domain.SessionID) error
	// AppendAudit trims the session log to its bound; no-op if the session
	// is absent.
	AppendAudit(ctx context.Context, id domain.SessionID, entry domain.AuditEntry) error
	List(ctx context.Context) ([]*domain.Session, error)
	Count(ctx context.Context) (int, error)
	// SweepExpired removes every session older than maxAge, regardless of
	// activity, and reports how many were removed.
	SweepExpired(ctx context.Context, maxAge time.Duration) (int, error)
}
