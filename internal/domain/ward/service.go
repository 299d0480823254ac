package ward

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/internal/platform/events"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

const msgCareUnitNotFound = "Care unit not found"

type Service struct {
	units   CareUnitRepository
	beds    BedRepository
	catalog map[CatalogKind]CatalogRepository
	cascade *Cascade
	events  *events.Emitter
	logger  zerolog.Logger
}

func NewService(units CareUnitRepository, beds BedRepository, fluids, medications CatalogRepository, cascade *Cascade, logger zerolog.Logger) *Service {
	return &Service{
		units: units,
		beds:  beds,
		catalog: map[CatalogKind]CatalogRepository{
			fluids.Kind():      fluids,
			medications.Kind(): medications,
		},
		cascade: cascade,
		logger:  logger.With().Str("component", "ward").Logger(),
	}
}

// SetEmitter attaches an optional event emitter.
func (s *Service) SetEmitter(e *events.Emitter) {
	s.events = e
}

// -- Care units --

func (s *Service) CreateCareUnit(ctx context.Context, cu *CareUnit) error {
	name, err := validateName("Care unit name", cu.Name, careUnitNameMaxLen)
	if err != nil {
		return err
	}
	if cu.Description, err = validateDescription(cu.Description); err != nil {
		return err
	}
	cu.Name = name
	cu.State = lifecycle.Active
	cu.CreatedBy = auth.ActorFromContext(ctx)
	cu.UpdatedBy = cu.CreatedBy
	if err := s.units.Create(ctx, cu); err != nil {
		return fmt.Errorf("create care unit: %w", err)
	}
	return nil
}

// GetCareUnit returns the unit in any state.
func (s *Service) GetCareUnit(ctx context.Context, id uuid.UUID) (*CareUnit, error) {
	cu, err := s.units.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound(msgCareUnitNotFound)
		}
		return nil, fmt.Errorf("get care unit: %w", err)
	}
	return cu, nil
}

func (s *Service) ListCareUnits(ctx context.Context, limit, offset int) ([]*CareUnit, int, error) {
	return s.units.ListActive(ctx, limit, offset)
}

// UpdateCareUnit patches a unit. Switching it to inactive runs the same
// cascade as DeleteCareUnit.
func (s *Service) UpdateCareUnit(ctx context.Context, id uuid.UUID, upd CareUnitUpdate) (*CareUnit, error) {
	if err := validateState(upd.State); err != nil {
		return nil, err
	}
	cu, err := s.GetCareUnit(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if cu.Name, err = validateName("Care unit name", *upd.Name, careUnitNameMaxLen); err != nil {
			return nil, err
		}
	}
	if upd.Description != nil {
		if cu.Description, err = validateDescription(upd.Description); err != nil {
			return nil, err
		}
	}
	deactivate := upd.State != nil && *upd.State == lifecycle.Inactive && cu.State.IsActive()
	if upd.State != nil && !deactivate {
		cu.State = *upd.State
	}

	cu.UpdatedBy = auth.ActorFromContext(ctx)
	if err := s.units.Update(ctx, cu); err != nil {
		return nil, fmt.Errorf("update care unit: %w", err)
	}
	if deactivate {
		if _, err := s.DeleteCareUnit(ctx, id); err != nil {
			return nil, err
		}
		cu.State = lifecycle.Inactive
	}
	return cu, nil
}

// DeleteCareUnit runs the care unit cascade. Patients are left untouched.
func (s *Service) DeleteCareUnit(ctx context.Context, id uuid.UUID) (*CascadeReport, error) {
	actor := auth.ActorFromContext(ctx)
	report, err := s.cascade.Run(ctx, id, actor)
	if err != nil {
		return report, err
	}
	s.events.Emit(ctx, events.New(events.CareUnitDeleted, actor, map[string]interface{}{
		"care_unit_id": id,
		"beds":         report.Affected(StepBeds),
		"fluids":       report.Affected(StepFluids),
		"medications":  report.Affected(StepMedications),
	}))
	return report, nil
}

// activeUnit loads a unit that nested resources may be read or written
// under.
func (s *Service) activeUnit(ctx context.Context, id uuid.UUID) (*CareUnit, error) {
	cu, err := s.GetCareUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cu.State.IsActive() {
		return nil, apperr.NotFound(msgCareUnitNotFound)
	}
	return cu, nil
}

// -- Beds --

func bedConflict() error {
	return apperr.Conflict("Bed with this name already exists in this care unit")
}

func (s *Service) CreateBed(ctx context.Context, unitID uuid.UUID, b *Bed) error {
	if _, err := s.activeUnit(ctx, unitID); err != nil {
		return err
	}
	name, err := validateName("Bed name", b.Name, bedNameMaxLen)
	if err != nil {
		return err
	}
	if b.Description, err = validateDescription(b.Description); err != nil {
		return err
	}

	b.Name = name
	b.CareUnitID = unitID
	b.Occupied = false
	b.State = lifecycle.Active
	b.CreatedBy = auth.ActorFromContext(ctx)
	b.UpdatedBy = b.CreatedBy
	if err := s.beds.Create(ctx, b); err != nil {
		if db.IsUniqueViolation(err, constraintBedName) {
			return bedConflict()
		}
		return fmt.Errorf("create bed: %w", err)
	}
	return nil
}

func (s *Service) GetBed(ctx context.Context, unitID, id uuid.UUID) (*Bed, error) {
	if _, err := s.activeUnit(ctx, unitID); err != nil {
		return nil, err
	}
	b, err := s.beds.GetInUnit(ctx, unitID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("Bed not found")
		}
		return nil, fmt.Errorf("get bed: %w", err)
	}
	return b, nil
}

func (s *Service) ListBeds(ctx context.Context, unitID uuid.UUID) ([]*Bed, error) {
	if _, err := s.activeUnit(ctx, unitID); err != nil {
		return nil, err
	}
	beds, err := s.beds.ListActiveByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("list beds: %w", err)
	}
	if beds == nil {
		beds = []*Bed{}
	}
	return beds, nil
}

func (s *Service) UpdateBed(ctx context.Context, unitID, id uuid.UUID, upd BedUpdate) (*Bed, error) {
	if err := validateState(upd.State); err != nil {
		return nil, err
	}
	b, err := s.GetBed(ctx, unitID, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if b.Name, err = validateName("Bed name", *upd.Name, bedNameMaxLen); err != nil {
			return nil, err
		}
	}
	if upd.Description != nil {
		if b.Description, err = validateDescription(upd.Description); err != nil {
			return nil, err
		}
	}
	if upd.State != nil {
		b.State = *upd.State
	}
	if err := s.saveBed(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) DeleteBed(ctx context.Context, unitID, id uuid.UUID) error {
	b, err := s.GetBed(ctx, unitID, id)
	if err != nil {
		return err
	}
	if b.Occupied {
		s.logger.Warn().Str("bed_id", id.String()).Msg("deactivating an occupied bed")
	}
	b.State = lifecycle.Inactive
	return s.saveBed(ctx, b)
}

func (s *Service) saveBed(ctx context.Context, b *Bed) error {
	b.UpdatedBy = auth.ActorFromContext(ctx)
	if err := s.beds.Update(ctx, b); err != nil {
		if db.IsUniqueViolation(err, constraintBedName) {
			return bedConflict()
		}
		if db.IsNotFound(err) {
			return apperr.NotFound("Bed not found")
		}
		return fmt.Errorf("update bed: %w", err)
	}
	return nil
}

// -- Fluids and medications --

func (s *Service) catalogRepo(kind CatalogKind) (CatalogRepository, error) {
	repo, ok := s.catalog[kind]
	if !ok {
		return nil, apperr.Validation("Unknown catalog %q", kind)
	}
	return repo, nil
}

func (s *Service) CreateItem(ctx context.Context, kind CatalogKind, unitID uuid.UUID, rawName string) (*CatalogItem, error) {
	repo, err := s.catalogRepo(kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeUnit(ctx, unitID); err != nil {
		return nil, err
	}
	name, err := validateName(kind.label()+" name", rawName, itemNameMaxLen)
	if err != nil {
		return nil, err
	}

	actor := auth.ActorFromContext(ctx)
	item := &CatalogItem{
		Kind:       kind,
		CareUnitID: unitID,
		Name:       name,
		State:      lifecycle.Active,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	if err := repo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, CatalogNameConstraint(kind)) {
			return nil, apperr.Conflict("%s already exists in this care unit", kind.label())
		}
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, kind CatalogKind, unitID, id uuid.UUID) (*CatalogItem, error) {
	repo, err := s.catalogRepo(kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeUnit(ctx, unitID); err != nil {
		return nil, err
	}
	item, err := repo.GetInUnit(ctx, unitID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("%s not found", kind.label())
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, kind CatalogKind, unitID uuid.UUID) ([]*CatalogItem, error) {
	repo, err := s.catalogRepo(kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeUnit(ctx, unitID); err != nil {
		return nil, err
	}
	items, err := repo.ListActiveByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	if items == nil {
		items = []*CatalogItem{}
	}
	return items, nil
}

func (s *Service) UpdateItem(ctx context.Context, kind CatalogKind, unitID, id uuid.UUID, upd ItemUpdate) (*CatalogItem, error) {
	if err := validateState(upd.State); err != nil {
		return nil, err
	}
	item, err := s.GetItem(ctx, kind, unitID, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if item.Name, err = validateName(kind.label()+" name", *upd.Name, itemNameMaxLen); err != nil {
			return nil, err
		}
	}
	if upd.State != nil {
		item.State = *upd.State
	}
	if err := s.saveItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, kind CatalogKind, unitID, id uuid.UUID) error {
	item, err := s.GetItem(ctx, kind, unitID, id)
	if err != nil {
		return err
	}
	item.State = lifecycle.Inactive
	return s.saveItem(ctx, item)
}

func (s *Service) saveItem(ctx context.Context, item *CatalogItem) error {
	repo, err := s.catalogRepo(item.Kind)
	if err != nil {
		return err
	}
	item.UpdatedBy = auth.ActorFromContext(ctx)
	if err := repo.Update(ctx, item); err != nil {
		if db.IsUniqueViolation(err, CatalogNameConstraint(item.Kind)) {
			return apperr.Conflict("%s already exists in this care unit", item.Kind.label())
		}
		if db.IsNotFound(err) {
			return apperr.NotFound("%s not found", item.Kind.label())
		}
		return fmt.Errorf("update %s: %w", item.Kind, err)
	}
	return nil
}
