package replay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionTokenTTL is how long a replay session token (issued by
// /replay/auth) remains valid.
const SessionTokenTTL = 30 * time.Minute

type sessionEntry struct {
	userID    int32
	expiresAt time.Time
}

// SessionStore issues and validates the short-lived tokens that gate
// /replay/download and /replay/delete once a user has proven ownership via
// their identity bearer token at /replay/auth. Same bound-entry shape as
// internal/trust.TokenStore, scoped to the replay HTTP surface instead of
// the admin one. There is no periodic sweep: an expired token is removed
// only when Validate looks it up.
type SessionStore struct {
	mu     sync.Mutex
	tokens map[string]sessionEntry
}

// NewSessionStore builds an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{tokens: make(map[string]sessionEntry)}
}

// Issue mints a token bound to userID, valid for SessionTokenTTL.
func (s *SessionStore) Issue(userID int32) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = sessionEntry{userID: userID, expiresAt: time.Now().Add(SessionTokenTTL)}
	s.mu.Unlock()
	return token
}

// Validate reports the userID a live token was issued for. An expired or
// unknown token is rejected (and evicted, if expired).
func (s *SessionStore) Validate(token string) (userID int32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.tokens[token]
	if !found {
		return 0, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.tokens, token)
		return 0, false
	}
	return e.userID, true
}
