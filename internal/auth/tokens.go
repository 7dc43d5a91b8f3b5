package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "artreg"

// Token is the stored view of an issued credential. The signed string given
// to the client carries the jti that keys this record; the record, not the
// signature, is what tracks the usage budget.
type Token struct {
	ID            string
	SubjectID     string
	Role          string
	RemainingUses int
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Grant is the outcome of a successful validate-and-consume call.
type Grant struct {
	SubjectID     string
	Role          string
	Permissions   PermissionSet
	RemainingUses int
}

// Claims carried inside the signed token string.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenStore owns the token records. All mutation happens under one mutex so
// the check-decrement-delete sequence for a single token is a single
// critical section; two concurrent callers can never both spend the last use.
type TokenStore struct {
	mu        sync.Mutex
	records   map[string]*Token
	bySubject map[string]map[string]struct{}

	secret   []byte
	maxUses  int
	lifetime time.Duration
	now      func() time.Time
}

// StoreOption configures TokenStore behavior.
type StoreOption func(*TokenStore)

// WithMaxUses overrides the per-token usage budget.
func WithMaxUses(n int) StoreOption {
	return func(s *TokenStore) {
		if n > 0 {
			s.maxUses = n
		}
	}
}

// WithLifetime overrides the per-token wall-clock lifetime.
func WithLifetime(d time.Duration) StoreOption {
	return func(s *TokenStore) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) StoreOption {
	return func(s *TokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenStore constructs a store signing tokens with the given secret.
func NewTokenStore(secret string, opts ...StoreOption) (*TokenStore, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	s := &TokenStore{
		records:   make(map[string]*Token),
		bySubject: make(map[string]map[string]struct{}),
		secret:    []byte(secret),
		maxUses:   1000,
		lifetime:  10 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a token for the subject and returns the signed string
// alongside the stored record.
func (s *TokenStore) Issue(subjectID, role string) (string, Token, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", Token{}, errors.New("auth: subject is required")
	}
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return "", Token{}, errors.New("auth: role is required")
	}

	jti, err := newTokenID()
	if err != nil {
		return "", Token{}, err
	}
	now := s.now().UTC()
	rec := &Token{
		ID:            jti,
		SubjectID:     subjectID,
		Role:          role,
		RemainingUses: s.maxUses,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.lifetime),
	}

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Token{}, fmt.Errorf("auth: sign token: %w", err)
	}

	s.mu.Lock()
	s.records[jti] = rec
	if s.bySubject[subjectID] == nil {
		s.bySubject[subjectID] = make(map[string]struct{})
	}
	s.bySubject[subjectID][jti] = struct{}{}
	s.mu.Unlock()

	return signed, *rec, nil
}

// ValidateAndConsume verifies the token and spends one use. The call that
// observes the budget reaching zero, or the lifetime elapsed, deletes the
// record in the same step. A well-signed token whose record is gone reports
// exhaustion; expiry is reported whenever the deadline has passed,
// regardless of remaining uses.
func (s *TokenStore) ValidateAndConsume(token string) (Grant, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Grant{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[claims.ID]
	if !ok {
		// Signature checked out, so this jti existed once. Either it ran
		// out of uses or it was revoked; both end the same way.
		if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
			return Grant{}, ErrTokenExpired
		}
		return Grant{}, ErrTokenExhausted
	}
	if !now.Before(rec.ExpiresAt) {
		s.deleteLocked(rec)
		return Grant{}, ErrTokenExpired
	}
	if rec.RemainingUses <= 0 {
		s.deleteLocked(rec)
		return Grant{}, ErrTokenExhausted
	}
	rec.RemainingUses--
	remaining := rec.RemainingUses
	if remaining == 0 {
		s.deleteLocked(rec)
	}
	return Grant{
		SubjectID:     rec.SubjectID,
		Role:          rec.Role,
		Permissions:   PermissionsForRole(rec.Role),
		RemainingUses: remaining,
	}, nil
}

// Revoke removes the token unconditionally (logout). Revoking an unknown or
// already-spent token is not an error.
func (s *TokenStore) Revoke(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[claims.ID]; ok {
		s.deleteLocked(rec)
	}
	return nil
}

// RevokeAll removes every token owned by the subject (account deletion).
// It returns the number of tokens removed.
func (s *TokenStore) RevokeAll(subjectID string) int {
	subjectID = strings.TrimSpace(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.bySubject[subjectID]
	for jti := range ids {
		delete(s.records, jti)
	}
	delete(s.bySubject, subjectID)
	return len(ids)
}

// Len reports the number of live token records.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *TokenStore) deleteLocked(rec *Token) {
	delete(s.records, rec.ID)
	if owned := s.bySubject[rec.SubjectID]; owned != nil {
		delete(owned, rec.ID)
		if len(owned) == 0 {
			delete(s.bySubject, rec.SubjectID)
		}
	}
}

// parse verifies the signature and issuer but leaves expiry to the record,
// so that an expired token can still be reported as expired (and revoked)
// rather than rejected opaquely by the JWT layer.
func (s *TokenStore) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// newTokenID returns 256 bits of entropy in hex.
func newTokenID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
