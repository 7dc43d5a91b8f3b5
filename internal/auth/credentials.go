package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// CredentialVerifier authenticates a login attempt and resolves its role.
// Subject management lives outside this service; this interface is the seam
// where a real user directory plugs in.
type CredentialVerifier interface {
	Verify(name, secret string) (role string, ok bool)
}

// StaticCredentials is an env-configured credential table, enough to
// bootstrap tokens for operators and tests.
type StaticCredentials struct {
	entries map[string]staticEntry
}

type staticEntry struct {
	secretHash [32]byte
	role       string
}

// NewStaticCredentials builds an empty table.
func NewStaticCredentials() *StaticCredentials {
	return &StaticCredentials{entries: make(map[string]staticEntry)}
}

// Add registers a credential. Secrets are held hashed.
func (c *StaticCredentials) Add(name, secret, role string) {
	name = strings.TrimSpace(name)
	if name == "" || secret == "" {
		return
	}
	c.entries[name] = staticEntry{
		secretHash: sha256.Sum256([]byte(secret)),
		role:       strings.TrimSpace(strings.ToLower(role)),
	}
}

// Len reports the number of registered credentials.
func (c *StaticCredentials) Len() int { return len(c.entries) }

// Verify checks the secret in constant time and returns the stored role.
func (c *StaticCredentials) Verify(name, secret string) (string, bool) {
	entry, ok := c.entries[strings.TrimSpace(name)]
	if !ok {
		return "", false
	}
	sum := sha256.Sum256([]byte(secret))
	if subtle.ConstantTimeCompare(entry.secretHash[:], sum[:]) != 1 {
		return "", false
	}
	return entry.role, true
}
