package ward

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

const (
	careUnitNameMaxLen = 100
	bedNameMaxLen      = 100
	itemNameMaxLen     = 150
	descriptionMaxLen  = 500
)

type CareUnit struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"careUnit"`
	Description *string         `json:"description,omitempty"`
	State       lifecycle.State `json:"state"`
	CreatedBy   *uuid.UUID      `json:"createdBy,omitempty"`
	UpdatedBy   *uuid.UUID      `json:"updatedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Bed belongs to one care unit. Occupied is only changed by the admission
// workflow.
type Bed struct {
	ID          uuid.UUID       `json:"id"`
	CareUnitID  uuid.UUID       `json:"careUnit"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Occupied    bool            `json:"isOccupied"`
	State       lifecycle.State `json:"state"`
	CreatedBy   *uuid.UUID      `json:"createdBy,omitempty"`
	UpdatedBy   *uuid.UUID      `json:"updatedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CatalogKind selects one of the per-unit supply lists.
type CatalogKind string

const (
	KindFluid      CatalogKind = "fluid"
	KindMedication CatalogKind = "medication"
)

func (k CatalogKind) label() string {
	if k == KindMedication {
		return "Medication"
	}
	return "Fluid"
}

// CatalogItem is a fluid or medication stocked by a care unit.
type CatalogItem struct {
	ID         uuid.UUID       `json:"id"`
	Kind       CatalogKind     `json:"kind"`
	CareUnitID uuid.UUID       `json:"careUnit"`
	Name       string          `json:"name"`
	State      lifecycle.State `json:"state"`
	CreatedBy  *uuid.UUID      `json:"createdBy,omitempty"`
	UpdatedBy  *uuid.UUID      `json:"updatedBy,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// CareUnitUpdate, BedUpdate and ItemUpdate are partial updates; nil fields
// are left unchanged.
type CareUnitUpdate struct {
	Name        *string          `json:"careUnit"`
	Description *string          `json:"description"`
	State       *lifecycle.State `json:"state"`
}

type BedUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	State       *lifecycle.State `json:"state"`
}

type ItemUpdate struct {
	Name  *string          `json:"name"`
	State *lifecycle.State `json:"state"`
}

func validateName(field, name string, max int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("%s is required", field)
	}
	if len([]rune(name)) > max {
		return "", apperr.Validation("%s cannot exceed %d characters", field, max)
	}
	return name, nil
}

func validateDescription(desc *string) (*string, error) {
	if desc == nil {
		return nil, nil
	}
	d := strings.TrimSpace(*desc)
	if len([]rune(d)) > descriptionMaxLen {
		return nil, apperr.Validation("Description cannot exceed %d characters", descriptionMaxLen)
	}
	return &d, nil
}

func validateState(s *lifecycle.State) error {
	if s != nil && !s.Valid() {
		return apperr.Validation("Invalid state %q", *s)
	}
	return nil
}
