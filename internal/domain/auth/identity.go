// Package auth defines the authenticated identity consumed from the
// identity layer and the role capability model.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role enumerates the access levels an authenticated user can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates a raw role claim.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// Identity is the authenticated {userID, role} pair attached to each request.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity holds the admin capability.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// User is the slice of the identity layer's user record that the ledgers
// need: coupon issuance resolves target users by email.
type User struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// ErrUserNotFound is returned when a user id or email cannot be resolved.
var ErrUserNotFound = errors.New("user not found")

// Repository resolves users owned by the identity layer.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// identityKey is the context key under which the request identity is stored.
type identityKey struct{}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the request identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
