package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/auth"
	apperrors "github.com/minisuite/minisuite/internal/errors"
	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/server/middleware"
	"github.com/minisuite/minisuite/internal/validation"
)

// RegisterRequest is the body accepted by POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

// LoginRequest is the body accepted by POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User core.User `json:"user"`
}

// MeResponse is returned by GET /api/auth/me.
type MeResponse struct {
	User   core.User  `json:"user"`
	Claims ClaimsView `json:"claims"`
}

// ClaimsView is the caller-visible part of the verified token.
type ClaimsView struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Role      core.Role `json:"role"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

// UserLookup resolves token subjects to users. Missing users yield (nil, nil).
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*core.User, error)
}

// AuthHandler serves registration, login and the current-user endpoint.
type AuthHandler struct {
	Service *auth.Service
	Users   UserLookup
}

// Register creates an account. Expects middleware.Body[RegisterRequest] upstream.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) error {
	req, ok := validation.BodyFrom[RegisterRequest](r.Context())
	if !ok {
		return apperrors.NewInternalError("register body missing from context")
	}

	user, err := h.Service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		metrics.RecordAuthOutcome("register", "conflict")
		return apperrors.NewConflictError("Email already registered")
	case err != nil:
		metrics.RecordAuthOutcome("register", "error")
		return apperrors.WrapDatabaseError(r.Context(), err, "register user")
	}

	metrics.RecordAuthOutcome("register", "ok")
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("user registered",
			zap.String("user_id", user.ID),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
		)
	}

	writeJSON(w, http.StatusCreated, UserResponse{User: *user})
	return nil
}

// Login verifies credentials and issues a token. Expects middleware.Body[LoginRequest].
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) error {
	req, ok := validation.BodyFrom[LoginRequest](r.Context())
	if !ok {
		return apperrors.NewInternalError("login body missing from context")
	}

	result, err := h.Service.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		metrics.RecordAuthOutcome("login", "invalid")
		return apperrors.NewUnauthorizedError("Invalid credentials")
	case errors.Is(err, auth.ErrTooManyAttempts):
		metrics.RecordAuthOutcome("login", "throttled")
		return apperrors.NewRateLimitedError(apperrors.MessageTooManyRequests)
	case err != nil:
		metrics.RecordAuthOutcome("login", "error")
		return apperrors.WrapInternal(r.Context(), err, "login")
	}

	metrics.RecordAuthOutcome("login", "ok")
	writeJSON(w, http.StatusOK, result)
	return nil
}

// Me returns the authenticated user. Expects middleware.Authenticate upstream.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) error {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return apperrors.NewUnauthorizedError(apperrors.MessageUnauthorized)
	}

	user, err := h.Users.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		return apperrors.WrapDatabaseError(r.Context(), err, "load current user")
	}
	if user == nil {
		return apperrors.NewNotFoundError("User not found")
	}

	view := ClaimsView{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}
	if claims.IssuedAt != nil {
		view.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		view.ExpiresAt = claims.ExpiresAt.Unix()
	}

	writeJSON(w, http.StatusOK, MeResponse{User: *user, Claims: view})
	return nil
}
