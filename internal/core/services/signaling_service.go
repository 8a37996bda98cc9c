package services

import (
	"context"
	"sync"
	"time"

	"deskrelay/internal/core/domain"
	"deskrelay/internal/core/ports"

	"go.uber.org/zap"
)

// Rejection reasons reported to the metrics collector.
const (
	RejectDuplicatePeerID = "duplicate_peer_id"
	RejectSessionNotFound = "session_not_found"
	RejectSessionFull     = "session_full"
)

type guestConnectedMsg struct {
	Type        string        `json:"type"`
	GuestPeerID domain.PeerID `json:"guestPeerId"`
}

type hostDisconnectedMsg struct {
	Type string `json:"type"`
}

type signalingService struct {
	registry ports.PeerRegistry
	store    ports.SessionStore
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	// mu serializes every state transition so each network or timer event
	// runs to completion before the next one is handled. Check-and-mutate
	// sequences spanning both the registry and the store never interleave.
	mu sync.Mutex
}

func NewSignalingService(registry ports.PeerRegistry, store ports.SessionStore, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) ports.Signaling {
	return &signalingService{
		registry: registry,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *signalingService) RegisterHost(ctx context.Context, peerID domain.PeerID, conn domain.ConnectionHandle) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peerExists(ctx, peerID) {
		s.metrics.RecordRegistrationRejected(RejectDuplicatePeerID)
		return nil, domain.ErrPeerIDTaken
	}

	session, err := s.store.CreateForHost(ctx, peerID)
	if err != nil {
		return nil, err
	}

	peer := &domain.Peer{
		ID:           peerID,
		Role:         domain.RoleHost,
		SessionID:    session.ID,
		Conn:         conn,
		RegisteredAt: time.Now(),
	}
	if err := s.registry.Register(ctx, peer); err != nil {
		return nil, err
	}

	s.metrics.RecordPeerRegistered(domain.RoleHost)
	s.metrics.RecordSessionCreated()
	s.logger.Infow("host registered", "peer_id", peerID, "session_id", session.ID)
	return session, nil
}

func (s *signalingService) RegisterGuest(ctx context.Context, peerID domain.PeerID, sessionID domain.SessionID, conn domain.ConnectionHandle) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		s.metrics.RecordRegistrationRejected(RejectSessionNotFound)
		return nil, domain.ErrSessionNotFound
	}
	if session.HasGuest() {
		s.metrics.RecordRegistrationRejected(RejectSessionFull)
		return nil, domain.ErrSessionFull
	}
	if s.peerExists(ctx, peerID) {
		s.metrics.RecordRegistrationRejected(RejectDuplicatePeerID)
		return nil, domain.ErrPeerIDTaken
	}

	session, err = s.store.JoinAsGuest(ctx, sessionID, peerID)
	if err != nil {
		return nil, err
	}

	peer := &domain.Peer{
		ID:           peerID,
		Role:         domain.RoleGuest,
		SessionID:    sessionID,
		Conn:         conn,
		RegisteredAt: time.Now(),
	}
	if err := s.registry.Register(ctx, peer); err != nil {
		return nil, err
	}

	if host, err := s.registry.GetByID(ctx, session.HostPeerID); err == nil {
		if err := host.Conn.Send(guestConnectedMsg{Type: "guest-connected", GuestPeerID: peerID}); err != nil {
			s.logger.Warnw("failed to notify host of guest arrival",
				"host_peer_id", session.HostPeerID, "guest_peer_id", peerID, "error", err)
		}
	}

	s.metrics.RecordPeerRegistered(domain.RoleGuest)
	s.logger.Infow("guest registered", "peer_id", peerID, "session_id", sessionID)
	return session, nil
}

// Relay is pure store-and-forward: the frame is passed through unchanged and
// its payload is never inspected. A missing recipient is an expected race
// (it may have just disconnected) and is dropped without an error reply.
func (s *signalingService) Relay(ctx context.Context, kind string, sender, recipient domain.PeerID, sessionID domain.SessionID, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, err := s.registry.GetByID(ctx, recipient)
	if err != nil {
		s.metrics.RecordRelayDrop()
		s.logger.Warnw("relay target not found, dropping message",
			"kind", kind, "from", sender, "to", recipient)
		return
	}

	if err := peer.Conn.SendRaw(frame); err != nil {
		s.metrics.RecordRelayDrop()
		s.logger.Warnw("relay write failed",
			"kind", kind, "from", sender, "to", recipient, "error", err)
	} else {
		s.metrics.RecordMessageRelayed(kind)
		s.logger.Debugw("relayed message", "kind", kind, "from", sender, "to", recipient)
	}

	// Best effort: the session id in a handshake message may be stale.
	_ = s.store.AppendAudit(ctx, sessionID, domain.AuditEntry{
		Timestamp: time.Now(),
		Event:     kind,
		From:      sender,
		To:        recipient,
	})
}

func (s *signalingService) Disconnect(ctx context.Context, peerID domain.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, err := s.registry.GetByID(ctx, peerID)
	if err != nil {
		// Already torn down.
		return nil
	}

	if err := s.registry.Remove(ctx, peerID); err != nil {
		return err
	}

	if peer.Role == domain.RoleHost {
		s.deactivateSessionLocked(ctx, peer.SessionID)
	}
	// Guest disconnection is deliberately not reported to the host and does
	// not deactivate the session.

	s.metrics.RecordPeerDisconnected(peer.Role, time.Since(peer.RegisteredAt))
	s.logger.Infow("peer disconnected", "peer_id", peerID, "role", peer.Role)
	return nil
}

func (s *signalingService) deactivateSessionLocked(ctx context.Context, sessionID domain.SessionID) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return
	}

	_ = s.store.Deactivate(ctx, sessionID)
	s.metrics.RecordSessionDeactivated()

	if session.HasGuest() {
		if guest, err := s.registry.GetByID(ctx, session.GuestPeerID); err == nil {
			if err := guest.Conn.Send(hostDisconnectedMsg{Type: "host-disconnected"}); err != nil {
				s.logger.Warnw("failed to notify guest of host disconnect",
					"guest_peer_id", session.GuestPeerID, "session_id", sessionID, "error", err)
			}
		}
	}
	s.logger.Infow("session deactivated", "session_id", sessionID)
}

func (s *signalingService) Peers(ctx context.Context) ([]*domain.Peer, error) {
	return s.registry.List(ctx)
}

func (s *signalingService) Sessions(ctx context.Context) ([]*domain.Session, error) {
	return s.store.List(ctx)
}

func (s *signalingService) SessionByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.store.GetByID(ctx, id)
}

func (s *signalingService) Stats(ctx context.Context) (ports.Stats, error) {
	peers, err := s.registry.Count(ctx)
	if err != nil {
		return ports.Stats{}, err
	}
	sessions, err := s.store.List(ctx)
	if err != nil {
		return ports.Stats{}, err
	}

	active := 0
	for _, session := range sessions {
		if session.Active {
			active++
		}
	}
	return ports.Stats{
		Peers:          peers,
		TotalSessions:  len(sessions),
		ActiveSessions: active,
	}, nil
}

func (s *signalingService) peerExists(ctx context.Context, id domain.PeerID) bool {
	_, err := s.registry.GetByID(ctx, id)
	return err == nil
}
