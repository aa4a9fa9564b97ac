// Package trust implements the admin surface's auxiliary credential stores:
// one-time passwords that bootstrap a temporary admin token, the temp tokens
// themselves, and an IP blacklist — all in-memory and timed rather than
// backed by persistent storage. Only the blacklist is swept on a schedule
// (RunSweep); OTP challenges and temp tokens are removed only when a lookup
// touches them.
package trust

import (
	"crypto/rand"
	"encoding/base64"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const otpTTL = 5 * time.Minute

// otpRequest is one outstanding, unverified OTP challenge.
type otpRequest struct {
	otp       string
	expiresAt time.Time
}

// OtpStore holds outstanding OTP challenges and issues TempAdminTokens on
// successful verification. Safe for concurrent use.
type OtpStore struct {
	mu      sync.Mutex
	pending map[string]otpRequest // ssid -> request
	tokens  *TokenStore
}

// NewOtpStore builds an OtpStore that issues tokens into tokens.
func NewOtpStore(tokens *TokenStore) *OtpStore {
	return &OtpStore{pending: make(map[string]otpRequest), tokens: tokens}
}

// CreateOtpRequest mints a new challenge and returns its session id and the
// one-time password the operator must read from the server log.
func (s *OtpStore) CreateOtpRequest() (ssid, otp string, err error) {
	ssid = uuid.NewString()
	otp, err = randomOtp()
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	s.pending[ssid] = otpRequest{otp: otp, expiresAt: time.Now().Add(otpTTL)}
	s.mu.Unlock()
	return ssid, otp, nil
}

// VerifyOtp consumes the pending challenge for ssid (it is single-use
// regardless of outcome) and, on a case-insensitive match within the TTL,
// issues a TempAdminToken bound to ip.
func (s *OtpStore) VerifyOtp(ssid, otp, ip string) (token string, ok bool) {
	s.mu.Lock()
	req, found := s.pending[ssid]
	delete(s.pending, ssid)
	s.mu.Unlock()

	if !found || time.Now().After(req.expiresAt) {
		return "", false
	}
	if !strings.EqualFold(req.otp, otp) {
		return "", false
	}
	return s.tokens.Issue(ip), true
}

func randomOtp() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	enc := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf[:])
	return strings.ToLower(enc[:6]), nil
}

// isLoopback reports whether ip (a string form, not necessarily parseable
// for malformed input) names a loopback address.
func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
