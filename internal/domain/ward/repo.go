package ward

import (
	"context"

	"github.com/google/uuid"
)

type CareUnitRepository interface {
	Create(ctx context.Context, cu *CareUnit) error
	GetByID(ctx context.Context, id uuid.UUID) (*CareUnit, error)
	Update(ctx context.Context, cu *CareUnit) error
	// Deactivate marks the unit inactive and reports whether it exists.
	// Deactivating an inactive unit succeeds.
	Deactivate(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error)
	ListActive(ctx context.Context, limit, offset int) ([]*CareUnit, int, error)
}

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	GetInUnit(ctx context.Context, unitID, id uuid.UUID) (*Bed, error)
	Update(ctx context.Context, b *Bed) error
	ListActiveByUnit(ctx context.Context, unitID uuid.UUID) ([]*Bed, error)

	// Claim marks an active, free bed of the unit occupied in one
	// conditional write. It reports false when the bed was not claimable.
	Claim(ctx context.Context, unitID, bedID uuid.UUID, actor *uuid.UUID) (bool, error)
	Release(ctx context.Context, bedID uuid.UUID, actor *uuid.UUID) error

	DeactivateByUnit(ctx context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error)
}

// CatalogRepository stores one kind of catalog item.
type CatalogRepository interface {
	Kind() CatalogKind
	Create(ctx context.Context, item *CatalogItem) error
	GetInUnit(ctx context.Context, unitID, id uuid.UUID) (*CatalogItem, error)
	Update(ctx context.Context, item *CatalogItem) error
	ListActiveByUnit(ctx context.Context, unitID uuid.UUID) ([]*CatalogItem, error)
	DeactivateByUnit(ctx context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error)
}
