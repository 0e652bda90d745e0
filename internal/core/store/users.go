package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minisuite/minisuite/internal/core"
)

var (
	// ErrNotFound is returned when an update targets a row that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

const (
	DefaultUserListLimit = 20
	MaxUserListLimit     = 100
)

// UserQuery filters ListUsers.
type UserQuery struct {
	Limit  int
	Offset int
	Role   core.Role
}

func (q UserQuery) normalized() UserQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultUserListLimit
	}
	if q.Limit > MaxUserListLimit {
		q.Limit = MaxUserListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new user. ID and CreatedAt are filled when empty.
func (s *Store) CreateUser(ctx context.Context, user *core.User) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if user == nil {
		return errors.New("user is required")
	}

	user.Email = NormalizeEmail(user.Email)
	if user.Email == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(user.PasswordHash) == "" {
		return errors.New("password hash is required")
	}
	if user.Role == "" {
		user.Role = core.RoleUser
	}
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role: %s", user.Role)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, strings.TrimSpace(user.Name), string(user.Role), user.PasswordHash, user.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// GetUserByEmail returns the user with the given email, or nil when none exists.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	return s.getUser(ctx, "email = ?", email)
}

// GetUserByID returns the user with the given id, or nil when none exists.
func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("user id is required")
	}
	return s.getUser(ctx, "id = ?", id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*core.User, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, created_at
		FROM users
		WHERE `+where, arg)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return user, nil
}

// ListUsers returns users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context, q UserQuery) ([]core.User, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q = q.normalized()

	where := ""
	args := []any{}
	if q.Role != "" {
		where = "WHERE role = ?"
		args = append(args, string(q.Role))
	}
	args = append(args, q.Limit, q.Offset)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, email, name, role, password_hash, created_at
		FROM users
		%s
		ORDER BY created_at, email
		LIMIT ? OFFSET ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	users := []core.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}

// SetUserRole changes the role of the user with the given email.
func (s *Store) SetUserRole(ctx context.Context, email string, role core.Role) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	email = NormalizeEmail(email)
	result, err := s.DB.ExecContext(ctx, `UPDATE users SET role = ? WHERE email = ?`, string(role), email)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*core.User, error) {
	var (
		user      core.User
		role      string
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	user.Role = core.Role(role)
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

// isUniqueViolation matches the constraint message shared by sqlite and libsql.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT FAILED")
}
