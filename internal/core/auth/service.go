package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/store"
)

var (
	// ErrInvalidCredentials is returned for both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTooManyAttempts is returned when the login throttle rejects an attempt.
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// UserStore is the persistence the auth flow needs. Lookups return (nil, nil)
// when no user matches.
type UserStore interface {
	CreateUser(ctx context.Context, user *core.User) error
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      core.User `json:"user"`
}

// Service implements registration and credential issuance.
type Service struct {
	users    UserStore
	tokens   *TokenManager
	throttle *Throttle

	// dummyHash is verified against when the email is unknown so both failure
	// paths cost one key derivation.
	dummyHash string
}

// NewService wires the auth flow. throttle may be nil.
func NewService(users UserStore, tokens *TokenManager, throttle *Throttle) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if tokens == nil {
		return nil, errors.New("token manager is required")
	}

	dummy, err := HashPassword("minisuite-unknown-user")
	if err != nil {
		return nil, err
	}

	return &Service{users: users, tokens: tokens, throttle: throttle, dummyHash: dummy}, nil
}

// Tokens exposes the manager used to verify bearer tokens.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Register creates a user with the default role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*core.User, error) {
	email := store.NormalizeEmail(in.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &core.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Role:         core.RoleUser,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	return user, nil
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = store.NormalizeEmail(email)

	if !s.throttle.Allow(email) {
		return nil, ErrTooManyAttempts
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil && !errors.Is(err, ErrMalformedHash) {
		return nil, err
	}
	if user == nil || !ok {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, err
	}
	s.throttle.Reset(email)

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}
