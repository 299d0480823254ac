package branding

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, l *Logo) error
	GetByID(ctx context.Context, id uuid.UUID) (*Logo, error)
	Update(ctx context.Context, l *Logo) error
	// Deactivate reports false when no row has the id.
	Deactivate(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error)
	ListActive(ctx context.Context) ([]*Logo, error)
}
