package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmflow/auth-service/internal/core/port"
)

// DefaultSessionTTL is the validity window of a session token.
const DefaultSessionTTL = 30 * 24 * time.Hour

var (
	// ErrInvalidToken indicates the token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpiredToken indicates the token is past its expiry.
	ErrExpiredToken = errors.New("jwt: token expired")
	// ErrSecretMissing indicates no signing secret was configured.
	ErrSecretMissing = errors.New("jwt: signing secret is required")
)

// SessionClaims carries the account identifier of a bearer token.
type SessionClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// SessionTokenIssuer signs HS256 bearer tokens with a server-held secret.
type SessionTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ port.TokenIssuer = (*SessionTokenIssuer)(nil)

// NewSessionTokenIssuer constructs an issuer. A non-positive ttl falls back to DefaultSessionTTL.
func NewSessionTokenIssuer(secret string, ttl time.Duration) (*SessionTokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (s *SessionTokenIssuer) WithClock(clock func() time.Time) *SessionTokenIssuer {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue signs a token for accountID and returns it with its expiry.
func (s *SessionTokenIssuer) Issue(accountID string) (string, time.Time, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", time.Time{}, fmt.Errorf("account id is required")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		ID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates the token and returns the account identifier it was issued for.
func (s *SessionTokenIssuer) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.ID) == "" {
		return "", ErrInvalidToken
	}

	return claims.ID, nil
}
