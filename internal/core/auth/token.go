package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/minisuite/minisuite/internal/core"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 7 * 24 * time.Hour

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 32

// ErrInvalidToken covers every verification failure: bad signature, tampering,
// unexpected algorithm, malformed input and expiry are not distinguished.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the signed token payload.
type Claims struct {
	Role  core.Role `json:"role"`
	Email string    `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens with one process-wide secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithTTL overrides DefaultTokenTTL.
func WithTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) TokenOption {
	return func(m *TokenManager) { m.issuer = strings.TrimSpace(issuer) }
}

// WithClock replaces time.Now, used for expiry tests.
func WithClock(clock func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewTokenManager validates the secret and builds a manager.
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}

	m := &TokenManager{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the lifetime of issued tokens.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for user and returns it with its expiry.
func (m *TokenManager) Issue(user core.User) (string, time.Time, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := m.clock().UTC().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		Role:  user.Role,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (m *TokenManager) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}
