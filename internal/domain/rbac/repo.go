package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/lifecycle"
)

type Repository interface {
	Create(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	// GetByName matches exactly and ignores state.
	GetByName(ctx context.Context, name string) (*Role, error)
	Update(ctx context.Context, role *Role) error
	SetPermissions(ctx context.Context, id uuid.UUID, perms []auth.Permission, actor *uuid.UUID) error
	SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Role, int, error)
}

// UserCounter reports how many users reference a role, in any state.
type UserCounter interface {
	CountByRole(ctx context.Context, roleID uuid.UUID) (int, error)
}
