package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/domain/ward"
	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/internal/platform/events"
	"github.com/ehr/ward/internal/platform/telemetry"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

const (
	msgPatientNotFound    = "Patient not found"
	msgCareUnitNotFound   = "Care unit not found"
	msgBedNotFound        = "Bed not found in this care unit"
	msgBedOccupied        = "Selected bed is already occupied"
	msgTargetBedOccupied  = "Target bed is already occupied"
	msgAlreadyDischarged  = "Patient already discharged"
	msgDischargeBeforeAdm = "Discharge date cannot be before admission date"
)

// Recorder counts workflow outcomes, typically telemetry.Metrics.
type Recorder interface {
	Admission(outcome string)
	Transfer(outcome string)
	Discharge(outcome string)
}

type Service struct {
	repo   Repository
	units  CareUnitReader
	beds   BedStore
	tx     db.TxRunner
	events *events.Emitter
	rec    Recorder
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, units CareUnitReader, beds BedStore, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		units:  units,
		beds:   beds,
		tx:     tx,
		logger: logger.With().Str("component", "admission").Logger(),
		now:    time.Now,
	}
}

func (s *Service) SetEmitter(e *events.Emitter) {
	s.events = e
}

func (s *Service) SetRecorder(r Recorder) {
	s.rec = r
}

// Admit places a new patient in an empty bed. The bed claim and the patient
// insert commit together.
func (s *Service) Admit(ctx context.Context, a Admission) (*PatientView, error) {
	now := s.now().UTC()
	if err := a.normalize(now); err != nil {
		s.record(Recorder.Admission, err)
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)

	p := &Patient{
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		DateOfBirth: a.DateOfBirth,
		Gender:      a.Gender,
		Phone:       a.Phone,
		Email:       a.Email,
		CareUnitID:  a.CareUnitID,
		BedID:       a.BedID,
		AdmittedAt:  now,
		State:       lifecycle.Active,
		CreatedBy:   actor,
		UpdatedBy:   actor,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		bed, err := s.resolvePlacement(ctx, a.CareUnitID, a.BedID)
		if err != nil {
			return err
		}
		if bed.Occupied {
			return apperr.Conflict(msgBedOccupied)
		}
		if err := s.claim(ctx, a.CareUnitID, a.BedID, actor, msgBedOccupied); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	})
	s.record(Recorder.Admission, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("care_unit_id", p.CareUnitID.String()).
		Str("bed_id", p.BedID.String()).
		Msg("patient admitted")
	s.events.Emit(ctx, events.New(events.PatientAdmitted, actor, map[string]interface{}{
		"patient_id":   p.ID,
		"care_unit_id": p.CareUnitID,
		"bed_id":       p.BedID,
	}))
	return s.GetPatient(ctx, p.ID)
}

// Update patches demographics, moves the patient when the patch names a
// care unit or bed, and discharges it when the patch sets DischargedAt.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*PatientView, error) {
	now := s.now().UTC()
	actor := auth.ActorFromContext(ctx)

	var (
		fromBed     uuid.UUID
		transferred bool
		discharged  bool
		p           *Patient
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.activePatient(ctx, id); err != nil {
			return err
		}
		if err := patch.applyDemographics(p, now); err != nil {
			return err
		}
		fromBed = p.BedID

		if patch.moves() {
			if transferred, err = s.move(ctx, p, patch, actor); err != nil {
				return err
			}
		}

		if patch.DischargedAt != nil {
			at := patch.DischargedAt.UTC()
			if at.Before(p.AdmittedAt) {
				return apperr.Validation(msgDischargeBeforeAdm)
			}
			if p.DischargedAt == nil {
				if err := s.discharge(ctx, p, at, actor); err != nil {
					return err
				}
				discharged = true
			}
			p.DischargedAt = &at
		}

		p.UpdatedBy = actor
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return nil
	})
	if patch.moves() {
		s.record(Recorder.Transfer, err)
	}
	if patch.DischargedAt != nil {
		s.record(Recorder.Discharge, err)
	}
	if err != nil {
		return nil, err
	}

	if transferred {
		s.logger.Info().
			Str("patient_id", id.String()).
			Str("from_bed_id", fromBed.String()).
			Str("to_bed_id", p.BedID.String()).
			Msg("patient transferred")
		s.events.Emit(ctx, events.New(events.PatientTransferred, actor, map[string]interface{}{
			"patient_id":   id,
			"from_bed_id":  fromBed,
			"to_bed_id":    p.BedID,
			"care_unit_id": p.CareUnitID,
		}))
	}
	if discharged {
		s.emitDischarge(ctx, p, actor)
	}
	return s.GetPatient(ctx, id)
}

// move rewrites the patient's placement. It reports whether the bed
// changed; only then is occupancy touched.
func (s *Service) move(ctx context.Context, p *Patient, patch Patch, actor *uuid.UUID) (bool, error) {
	unitID, bedID := p.CareUnitID, p.BedID
	if patch.CareUnitID != nil {
		unitID = *patch.CareUnitID
	}
	if patch.BedID != nil {
		bedID = *patch.BedID
	}
	if unitID == p.CareUnitID && bedID == p.BedID {
		return false, nil
	}

	bed, err := s.resolvePlacement(ctx, unitID, bedID)
	if err != nil {
		return false, err
	}
	if bedID == p.BedID {
		p.CareUnitID = unitID
		return false, nil
	}
	if p.DischargedAt != nil {
		return false, apperr.Conflict(msgAlreadyDischarged)
	}
	if bed.Occupied {
		return false, apperr.Conflict(msgTargetBedOccupied)
	}
	if err := s.claim(ctx, unitID, bedID, actor, msgTargetBedOccupied); err != nil {
		return false, err
	}
	if err := s.beds.Release(ctx, p.BedID, actor); err != nil {
		return false, fmt.Errorf("release bed: %w", err)
	}
	p.CareUnitID, p.BedID = unitID, bedID
	return true, nil
}

// Discharge ends an admission now and frees the bed. Deleted patients that
// were still admitted can be discharged so their bed does not stay taken.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*PatientView, error) {
	at := s.now().UTC()
	actor := auth.ActorFromContext(ctx)

	var p *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.repo.GetForUpdate(ctx, id); err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound(msgPatientNotFound)
			}
			return fmt.Errorf("get patient: %w", err)
		}
		if p.DischargedAt != nil {
			return apperr.Conflict(msgAlreadyDischarged)
		}
		return s.discharge(ctx, p, at, actor)
	})
	s.record(Recorder.Discharge, err)
	if err != nil {
		return nil, err
	}
	s.emitDischarge(ctx, p, actor)
	return s.GetPatient(ctx, id)
}

func (s *Service) discharge(ctx context.Context, p *Patient, at time.Time, actor *uuid.UUID) error {
	ok, err := s.repo.MarkDischarged(ctx, p.ID, at, actor)
	if err != nil {
		return fmt.Errorf("discharge patient: %w", err)
	}
	if !ok {
		return apperr.Conflict(msgAlreadyDischarged)
	}
	if err := s.beds.Release(ctx, p.BedID, actor); err != nil {
		return fmt.Errorf("release bed: %w", err)
	}
	p.DischargedAt = &at
	return nil
}

func (s *Service) emitDischarge(ctx context.Context, p *Patient, actor *uuid.UUID) {
	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("bed_id", p.BedID.String()).
		Msg("patient discharged")
	s.events.Emit(ctx, events.New(events.PatientDischarged, actor, map[string]interface{}{
		"patient_id":    p.ID,
		"care_unit_id":  p.CareUnitID,
		"bed_id":        p.BedID,
		"discharged_at": p.DischargedAt,
	}))
}

// SoftDelete deactivates the patient record. Bed occupancy is left as is.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound(msgPatientNotFound)
		}
		return fmt.Errorf("get patient: %w", err)
	}
	if !p.State.IsActive() {
		return nil
	}
	if err := s.repo.SetState(ctx, id, lifecycle.Inactive, auth.ActorFromContext(ctx)); err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if p.DischargedAt == nil {
		s.logger.Warn().
			Str("patient_id", id.String()).
			Str("bed_id", p.BedID.String()).
			Msg("admitted patient deleted, bed stays occupied")
	}
	return nil
}

// GetPatient returns the patient in any state.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*PatientView, error) {
	v, err := s.repo.GetView(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound(msgPatientNotFound)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return v, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*PatientView, int, error) {
	return s.repo.ListActive(ctx, limit, offset)
}

func (s *Service) activePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound(msgPatientNotFound)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if !p.State.IsActive() {
		return nil, apperr.NotFound(msgPatientNotFound)
	}
	return p, nil
}

// resolvePlacement checks that the unit is active and the bed is active
// and belongs to it.
func (s *Service) resolvePlacement(ctx context.Context, unitID, bedID uuid.UUID) (*ward.Bed, error) {
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil && !db.IsNotFound(err) {
		return nil, fmt.Errorf("get care unit: %w", err)
	}
	if unit == nil || !unit.State.IsActive() {
		return nil, apperr.NotFound(msgCareUnitNotFound)
	}

	bed, err := s.beds.GetByID(ctx, bedID)
	if err != nil && !db.IsNotFound(err) {
		return nil, fmt.Errorf("get bed: %w", err)
	}
	if bed == nil || !bed.State.IsActive() || bed.CareUnitID != unitID {
		return nil, apperr.NotFound(msgBedNotFound)
	}
	return bed, nil
}

// claim marks the bed occupied. A lost race is reported as a conflict
// unless the bed disappeared in the meantime.
func (s *Service) claim(ctx context.Context, unitID, bedID uuid.UUID, actor *uuid.UUID, occupiedMsg string) error {
	ok, err := s.beds.Claim(ctx, unitID, bedID, actor)
	if err != nil {
		return fmt.Errorf("claim bed: %w", err)
	}
	if ok {
		return nil
	}
	bed, err := s.beds.GetByID(ctx, bedID)
	if err != nil && !db.IsNotFound(err) {
		return fmt.Errorf("get bed: %w", err)
	}
	if bed == nil || !bed.State.IsActive() || bed.CareUnitID != unitID {
		return apperr.NotFound(msgBedNotFound)
	}
	return apperr.Conflict("%s", occupiedMsg)
}

func (s *Service) record(count func(Recorder, string), err error) {
	if s.rec == nil {
		return
	}
	count(s.rec, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case apperr.Is(err, apperr.KindConflict):
		return telemetry.OutcomeConflict
	case apperr.Is(err, apperr.KindUnexpected):
		return telemetry.OutcomeError
	default:
		return telemetry.OutcomeRejected
	}
}
