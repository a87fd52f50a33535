package bot

import (
	"sync"
	"time"
)

// SessionKind identifies what the bot is waiting for from a user.
type SessionKind string

const (
	SessionAwaitPinExport  SessionKind = "await_pin_export"
	SessionPendingWithdraw SessionKind = "pending_withdraw"
	SessionPendingRemoval  SessionKind = "pending_removal"
)

// Session is a pending conversational step. Data carries step-specific
// payload such as the wallet ID an export was requested for.
type Session struct {
	Kind    SessionKind
	Data    map[string]string
	created time.Time
}

// SessionStore holds at most one pending session per user. A new session
// overwrites the previous one, and sessions expire after the TTL so a
// half-finished flow cannot linger. Safe for concurrent use.
type SessionStore struct {
	sessions map[int64]Session // telegram ID -> pending session
	ttl      time.Duration
	mu       sync.Mutex
}

// NewSessionStore creates a store whose sessions expire after ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]Session),
		ttl:      ttl,
	}
}

// Put records a pending session for the user, replacing any existing one.
func (s *SessionStore) Put(telegramID int64, kind SessionKind, data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[telegramID] = Session{
		Kind:    kind,
		Data:    data,
		created: time.Now(),
	}
}

// Take returns and clears the user's pending session. Expired sessions are
// treated as absent.
func (s *SessionStore) Take(telegramID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[telegramID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, telegramID)
	if time.Since(sess.created) >= s.ttl {
		return Session{}, false
	}
	return sess, true
}

// Clear drops the user's pending session, if any.
func (s *SessionStore) Clear(telegramID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, telegramID)
}

// Cleanup removes expired sessions. Called periodically from the bot loop to
// keep the map from growing unbounded.
func (s *SessionStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, sess := range s.sessions {
		if now.Sub(sess.created) >= s.ttl {
			delete(s.sessions, id)
		}
	}
}
