package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "ward_identity"

// Identity is the authenticated caller attached to each request.
type Identity struct {
	UserID      uuid.UUID     `json:"id"`
	Username    string        `json:"username"`
	RoleID      uuid.UUID     `json:"role_id"`
	RoleName    string        `json:"role"`
	Permissions PermissionSet `json:"-"`
	Active      bool          `json:"-"`

	TokenID        string    `json:"-"`
	TokenExpiresAt time.Time `json:"-"`
}

// IdentityResolver loads the user behind a token, with the permissions of
// the user's role. An inactive role resolves to an empty permission set.
// A missing user is reported as an apperr NotFound.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID uuid.UUID) (*Identity, error)
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ActorFromContext returns the authenticated user id for audit columns,
// or nil outside an authenticated request (seeding, migrations).
func ActorFromContext(ctx context.Context) *uuid.UUID {
	id := IdentityFromContext(ctx)
	if id == nil {
		return nil
	}
	uid := id.UserID
	return &uid
}

func UserIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UserID.String()
	}
	return ""
}
