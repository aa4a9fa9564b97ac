package trust

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = 4 * time.Hour

type tempToken struct {
	boundIP   string
	expiresAt time.Time
}

// TokenStore holds TempAdminTokens issued by OTP verification, each bound
// to the IP that verified it.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tempToken
}

// NewTokenStore builds an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]tempToken)}
}

// Issue mints a new token bound to ip, valid for 4 hours.
func (s *TokenStore) Issue(ip string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = tempToken{boundIP: ip, expiresAt: time.Now().Add(tokenTTL)}
	s.mu.Unlock()
	return token
}

// Validate reports whether token is currently valid for a request from ip.
// A missing or expired token is evicted and rejected. The bound IP must
// match exactly, except that a loopback-bound token accepts any loopback
// presenting IP.
func (s *TokenStore) Validate(token, ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(t.expiresAt) {
		delete(s.tokens, token)
		return false
	}
	if t.boundIP == ip {
		return true
	}
	if isLoopback(t.boundIP) && isLoopback(ip) {
		return true
	}
	delete(s.tokens, token)
	return false
}

// TTLMillis is the token lifetime in milliseconds, as returned to the caller
// of the verify endpoint alongside the token itself.
func TTLMillis() int64 { return tokenTTL.Milliseconds() }

// Peek reports whether token currently names a live, unexpired entry,
// without binding the check to a requesting IP. Used by long-lived
// connections (the WebSocket admin feed) where there is no per-request
// address to compare against the token's bound IP.
func (s *TokenStore) Peek(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(t.expiresAt) {
		delete(s.tokens, token)
		return false
	}
	return true
}
