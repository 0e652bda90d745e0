package handlers

import (
	"context"
	"net/http"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/core/store"
	apperrors "github.com/minisuite/minisuite/internal/errors"
	"github.com/minisuite/minisuite/internal/validation"
)

// ListUsersQuery is the query accepted by GET /api/admin/users.
type ListUsersQuery struct {
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `query:"offset" validate:"min=0"`
	Role   string `query:"role" validate:"omitempty,oneof=user admin"`
}

// ListUsersResponse is a page of users.
type ListUsersResponse struct {
	Users  []core.User `json:"users"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// RateLimitQuery is the query accepted by GET /api/admin/rate-limits.
type RateLimitQuery struct {
	Prefix string `query:"prefix" validate:"max=128"`
}

// RateLimitResponse lists live buckets.
type RateLimitResponse struct {
	Backend string            `json:"backend"`
	Buckets []core.RateBucket `json:"buckets"`
}

// UserLister pages through users.
type UserLister interface {
	ListUsers(ctx context.Context, q store.UserQuery) ([]core.User, error)
}

// AdminHandler serves the admin-only endpoints.
type AdminHandler struct {
	Users   UserLister
	Buckets ratelimit.Inspector
	Backend string
}

// ListUsers pages through accounts. Expects middleware.Query[ListUsersQuery].
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) error {
	q, ok := validation.QueryFrom[ListUsersQuery](r.Context())
	if !ok {
		return apperrors.NewInternalError("user query missing from context")
	}
	if q.Limit == 0 {
		q.Limit = store.DefaultUserListLimit
	}

	users, err := h.Users.ListUsers(r.Context(), store.UserQuery{
		Limit:  q.Limit,
		Offset: q.Offset,
		Role:   core.Role(q.Role),
	})
	if err != nil {
		return apperrors.WrapDatabaseError(r.Context(), err, "list users")
	}
	if users == nil {
		users = []core.User{}
	}

	writeJSON(w, http.StatusOK, ListUsersResponse{Users: users, Limit: q.Limit, Offset: q.Offset})
	return nil
}

// ListRateLimits reports buckets held by the configured counter backend.
func (h *AdminHandler) ListRateLimits(w http.ResponseWriter, r *http.Request) error {
	q, ok := validation.QueryFrom[RateLimitQuery](r.Context())
	if !ok {
		return apperrors.NewInternalError("rate limit query missing from context")
	}
	if h.Buckets == nil {
		return apperrors.NewServiceUnavailableError("rate limit backend does not support inspection")
	}

	buckets, err := h.Buckets.List(r.Context(), q.Prefix)
	if err != nil {
		return apperrors.WrapInternal(r.Context(), err, "list rate limit buckets")
	}
	if buckets == nil {
		buckets = []core.RateBucket{}
	}

	writeJSON(w, http.StatusOK, RateLimitResponse{Backend: h.Backend, Buckets: buckets})
	return nil
}
