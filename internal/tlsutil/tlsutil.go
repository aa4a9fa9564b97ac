// Package tlsutil provides a self-signed TLS bootstrap for the admin HTTP
// surface when no certificate is configured.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// renewBefore is how far ahead of a certificate's expiry GetCertificate
// replaces it with a freshly generated one. The coordination server is a
// long-running process (unlike a short-lived CLI invocation), so a
// certificate baked once at startup would eventually lapse mid-process and
// lock operators out of the admin surface without a restart.
const renewBefore = time.Hour

// SelfSigned builds a tls.Config for a self-signed ECDSA P-256 certificate
// bound to hostname (and "localhost"), each generated certificate valid for
// validity. Unlike a single certificate baked in at call time, the returned
// config regenerates its certificate on demand as it approaches expiry, so a
// long-running server never needs restarting just to roll its TLS cert.
// SelfSigned itself returns the fingerprint of the first certificate,
// suitable for operators to compare out-of-band at startup.
func SelfSigned(validity time.Duration, hostname string) (*tls.Config, string, error) {
	c := &rotatingCert{hostname: hostname, validity: validity}
	if _, err := c.currentLocked(); err != nil {
		return nil, "", err
	}

	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return c.current()
		},
	}, c.fingerprint, nil
}

// rotatingCert holds the active certificate plus enough state to know when
// it needs replacing.
type rotatingCert struct {
	hostname string
	validity time.Duration

	mu          sync.Mutex
	cert        *tls.Certificate
	fingerprint string
}

func (c *rotatingCert) current() (*tls.Certificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *rotatingCert) currentLocked() (*tls.Certificate, error) {
	if c.cert != nil && time.Now().Before(c.cert.Leaf.NotAfter.Add(-renewBefore)) {
		return c.cert, nil
	}

	cert, fingerprint, err := generateCertificate(c.validity, c.hostname)
	if err != nil {
		return nil, err
	}
	c.cert = cert
	c.fingerprint = fingerprint
	return cert, nil
}

// generateCertificate builds one self-signed ECDSA P-256 certificate/key
// pair plus its SHA-256 fingerprint.
func generateCertificate(validity time.Duration, hostname string) (*tls.Certificate, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("tlsutil: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("tlsutil: generate serial: %w", err)
	}

	cn := "dotphira-mp"
	if hostname != "" {
		cn = hostname
	}
	sans := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		sans = append(sans, hostname)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("tlsutil: create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("tlsutil: parse certificate: %w", err)
	}

	fp := sha256.Sum256(certDER)
	fingerprint := hex.EncodeToString(fp[:])

	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}
	return &tlsCert, fingerprint, nil
}
