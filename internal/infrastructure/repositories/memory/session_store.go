package memory

import (
	"context"
	"sync"
	"time"

	"deskrelay/internal/core/domain"
	"deskrelay/internal/core/ports"
)

// DefaultAuditLogLimit bounds the per-session audit log when no explicit
// limit is configured.
const DefaultAuditLogLimit = 100

type SessionStore struct {
	sessions   map[domain.SessionID]*domain.Session
	auditLimit int
	mu         sync.RWMutex
}

func NewSessionStore(auditLimit int) ports.SessionStore {
	if auditLimit <= 0 {
		auditLimit = DefaultAuditLogLimit
	}
	return &SessionStore{
		sessions:   make(map[domain.SessionID]*domain.Session),
		auditLimit: auditLimit,
	}
}

func (s *SessionStore) CreateForHost(ctx context.Context, host domain.PeerID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session := &domain.Session{
		ID:         domain.NewSessionID(host, now),
		HostPeerID: host,
		CreatedAt:  now,
		Active:     true,
	}
	s.appendAuditLocked(session, domain.AuditEntry{
		Timestamp: now,
		Event:     "host-registered",
		From:      host,
	})
	s.sessions[session.ID] = session
	return copySession(session), nil
}

func (s *SessionStore) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *SessionStore) JoinAsGuest(ctx context.Context, id domain.SessionID, guest domain.PeerID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	if session.HasGuest() {
		return nil, domain.ErrSessionFull
	}

	session.GuestPeerID = guest
	s.appendAuditLocked(session, domain.AuditEntry{
		Timestamp: time.Now(),
		Event:     "guest-registered",
		From:      guest,
	})
	return copySession(session), nil
}

func (s *SessionStore) Deactivate(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[id]; exists {
		session.Active = false
	}
	return nil
}

func (s *SessionStore) AppendAudit(ctx context.Context, id domain.SessionID, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil
	}
	s.appendAuditLocked(session, entry)
	return nil
}

func (s *SessionStore) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, copySession(session))
	}
	return sessions, nil
}

func (s *SessionStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions), nil
}

func (s *SessionStore) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, session := range s.sessions {
		if session.Age(now) > maxAge {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// appendAuditLocked keeps the log FIFO-bounded, evicting the oldest entry
// once the limit is reached.
func (s *SessionStore) appendAuditLocked(session *domain.Session, entry domain.AuditEntry) {
	session.AuditLog = append(session.AuditLog, entry)
	if len(session.AuditLog) > s.auditLimit {
		session.AuditLog = session.AuditLog[len(session.AuditLog)-s.auditLimit:]
	}
}

// copySession snapshots a session so readers outside the store lock never
// observe concurrent mutation.
func copySession(session *domain.Session) *domain.Session {
	out := *session
	out.AuditLog = make([]domain.AuditEntry, len(session.AuditLog))
	copy(out.AuditLog, session.AuditLog)
	return &out
}
