package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"deskrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_CreateForHost(t *testing.T) {
	store := NewSessionStore(100)
	ctx := context.Background()

	session, err := store.CreateForHost(ctx, "host-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(session.ID), "host-1_"))
	assert.Equal(t, domain.PeerID("host-1"), session.HostPeerID)
	assert.Empty(t, session.GuestPeerID)
	assert.True(t, session.Active)
	require.Len(t, session.AuditLog, 1)
	assert.Equal(t, "host-registered", session.AuditLog[0].Event)
}

func TestSessionStore_JoinAsGuest(t *testing.T) {
	store := NewSessionStore(100)
	ctx := context.Background()

	session, err := store.CreateForHost(ctx, "H")
	require.NoError(t, err)

	joined, err := store.JoinAsGuest(ctx, session.ID, "G")
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("G"), joined.GuestPeerID)
	assert.Equal(t, domain.PeerID("H"), joined.HostPeerID)
}

func TestSessionStore_JoinUnknownSession(t *testing.T) {
	store := NewSessionStore(100)

	_, err := store.JoinAsGuest(context.Background(), "missing", "G")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_SecondGuestRejected(t *testing.T) {
	store := NewSessionStore(100)
	ctx := context.Background()

	session, err := store.CreateForHost(ctx, "H")
	require.NoError(t, err)
	_, err = store.JoinAsGuest(ctx, session.ID, "G1")
	require.NoError(t, err)

	_, err = store.JoinAsGuest(ctx, session.ID, "G2")
	assert.ErrorIs(t, err, domain.ErrSessionFull)

	// State is unchanged by the rejected join.
	got, err := store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("G1"), got.GuestPeerID)
}

func TestSessionStore_Deactivate(t *testing.T) {
	store := NewSessionStore(100)
	ctx := context.Background()

	session, err := store.CreateForHost(ctx, "H")
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, session.ID))
	got, err := store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// No-op on already inactive and on absent sessions.
	assert.NoError(t, store.Deactivate(ctx, session.ID))
	assert.NoError(t, store.Deactivate(ctx, "missing"))
}

func TestSessionStore_AuditLogBounded(t *testing.T) {
	store := NewSessionStore(100)
	ctx := context.Background()

	session, err := store.CreateForHost(ctx, "H")
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		require.NoError(t, store.AppendAudit(ctx, session.ID, domain.AuditEntry{
			Timestamp: time.Now(),
			Event:     fmt.Sprintf("event-%d", i),
		}))
	}

	got, err := store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got.AuditLog, 100)
	// Oldest entries were evicted first: the log starts at event-50.
	assert.Equal(t, "event-50", got.AuditLog[0].Event)
	assert.Equal(t, "event-149", got.AuditLog[99].Event)
}

func TestSessionStore_AuditIgnoresMissingSession(t *testing.T) {
	store := NewSessionStore(100)

	assert.NoError(t, store.AppendAudit(context.Background(), "missing", domain.AuditEntry{Event: "offer"}))
}

func TestSessionStore_SweepExpired(t *testing.T) {
	store := NewSessionStore(100)
	ctx := context.Background()

	first, err := store.CreateForHost(ctx, "H1")
	require.NoError(t, err)
	_, err = store.CreateForHost(ctx, "H2")
	require.NoError(t, err)

	// Deactivation does not protect a session from the sweep, and activity
	// does not either: the sweep is purely age-based.
	require.NoError(t, store.Deactivate(ctx, first.ID))

	removed, err := store.SweepExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	time.Sleep(5 * time.Millisecond)
	removed, err = store.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
