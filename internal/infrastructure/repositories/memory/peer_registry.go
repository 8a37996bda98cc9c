package memory

import (
	"context"
	"sync"
	"time"

	"deskrelay/internal/core/domain"
	"deskrelay/internal/core/ports"
)

type PeerRegistry struct {
	peers map[domain.PeerID]*domain.Peer
	mu    sync.RWMutex
}

func NewPeerRegistry() ports.PeerRegistry {
	return &PeerRegistry{
		peers: make(map[domain.PeerID]*domain.Peer),
	}
}

func (r *PeerRegistry) Register(ctx context.Context, peer *domain.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peer.ID]; exists {
		return domain.ErrPeerIDTaken
	}

	if peer.RegisteredAt.IsZero() {
		peer.RegisteredAt = time.Now()
	}
	r.peers[peer.ID] = peer
	return nil
}

func (r *PeerRegistry) GetByID(ctx context.Context, id domain.PeerID) (*domain.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, exists := r.peers[id]
	if !exists {
		return nil, domain.ErrPeerNotFound
	}
	return peer, nil
}

func (r *PeerRegistry) Remove(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.peers, id)
	return nil
}

func (r *PeerRegistry) List(ctx context.Context) ([]*domain.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*domain.Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, peer)
	}
	return peers, nil
}

func (r *PeerRegistry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers), nil
}
