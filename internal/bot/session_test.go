package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTakeClears(t *testing.T) {
	s := NewSessionStore(time.Minute)
	s.Put(1, SessionAwaitPinExport, map[string]string{"wallet_id": "w1"})

	sess, ok := s.Take(1)
	require.True(t, ok)
	assert.Equal(t, SessionAwaitPinExport, sess.Kind)
	assert.Equal(t, "w1", sess.Data["wallet_id"])

	_, ok = s.Take(1)
	assert.False(t, ok)
}

func TestSessionExpires(t *testing.T) {
	s := NewSessionStore(10 * time.Millisecond)
	s.Put(1, SessionPendingWithdraw, nil)

	time.Sleep(20 * time.Millisecond)

	_, ok := s.Take(1)
	assert.False(t, ok)
}

func TestSessionOverwrites(t *testing.T) {
	s := NewSessionStore(time.Minute)
	s.Put(1, SessionPendingWithdraw, map[string]string{"amount": "0.5"})
	s.Put(1, SessionPendingRemoval, map[string]string{"wallet_id": "w2"})

	sess, ok := s.Take(1)
	require.True(t, ok)
	assert.Equal(t, SessionPendingRemoval, sess.Kind)
}

func TestSessionClearAndCleanup(t *testing.T) {
	s := NewSessionStore(10 * time.Millisecond)
	s.Put(1, SessionAwaitPinExport, nil)
	s.Put(2, SessionPendingWithdraw, nil)

	s.Clear(1)
	_, ok := s.Take(1)
	assert.False(t, ok)

	time.Sleep(20 * time.Millisecond)
	s.Cleanup()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.sessions)
}

func TestSessionsAreIndependentPerUser(t *testing.T) {
	s := NewSessionStore(time.Minute)
	s.Put(1, SessionAwaitPinExport, nil)
	s.Put(2, SessionPendingWithdraw, nil)

	sess, ok := s.Take(1)
	require.True(t, ok)
	assert.Equal(t, SessionAwaitPinExport, sess.Kind)

	sess, ok = s.Take(2)
	require.True(t, ok)
	assert.Equal(t, SessionPendingWithdraw, sess.Kind)
}
