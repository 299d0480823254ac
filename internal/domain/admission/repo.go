package admission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ward/internal/domain/ward"
	"github.com/ehr/ward/pkg/lifecycle"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetView(ctx context.Context, id uuid.UUID) (*PatientView, error)
	// ListActive returns active patients, newest first.
	ListActive(ctx context.Context, limit, offset int) ([]*PatientView, int, error)
	Update(ctx context.Context, p *Patient) error
	// MarkDischarged sets discharged_at only when it is unset and reports
	// whether it did.
	MarkDischarged(ctx context.Context, id uuid.UUID, at time.Time, actor *uuid.UUID) (bool, error)
	SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error
}

// CareUnitReader and BedStore are the ward repositories admission writes
// through.
type CareUnitReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ward.CareUnit, error)
}

type BedStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ward.Bed, error)
	Claim(ctx context.Context, unitID, bedID uuid.UUID, actor *uuid.UUID) (bool, error)
	Release(ctx context.Context, bedID uuid.UUID, actor *uuid.UUID) error
}
