package staff

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/ward/pkg/lifecycle"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// ExistsByEmail and ExistsByPhone look at users in any state other
	// than exclude.
	ExistsByEmail(ctx context.Context, email string, exclude uuid.UUID) (bool, error)
	ExistsByPhone(ctx context.Context, phone string, exclude uuid.UUID) (bool, error)
	Update(ctx context.Context, u *User) error
	SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	CountByRole(ctx context.Context, roleID uuid.UUID) (int, error)
}
