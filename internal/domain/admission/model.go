package admission

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

const (
	nameMaxLen  = 100
	phoneMaxLen = 20
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Status is derived from state and discharge time.
type Status string

const (
	StatusAdmitted   Status = "admitted"
	StatusDischarged Status = "discharged"
	StatusDeleted    Status = "deleted"
)

type Patient struct {
	ID           uuid.UUID       `json:"id"`
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	DateOfBirth  *time.Time      `json:"dateOfBirth,omitempty"`
	Gender       Gender          `json:"gender"`
	Phone        *string         `json:"phone,omitempty"`
	Email        *string         `json:"email,omitempty"`
	CareUnitID   uuid.UUID       `json:"careUnitId"`
	BedID        uuid.UUID       `json:"bedId"`
	AdmittedAt   time.Time       `json:"admittedAt"`
	DischargedAt *time.Time      `json:"dischargedAt,omitempty"`
	State        lifecycle.State `json:"state"`
	CreatedBy    *uuid.UUID      `json:"createdById,omitempty"`
	UpdatedBy    *uuid.UUID      `json:"updatedById,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (p *Patient) Status() Status {
	switch {
	case !p.State.IsActive():
		return StatusDeleted
	case p.DischargedAt != nil:
		return StatusDischarged
	default:
		return StatusAdmitted
	}
}

// Ref is the summary form of a referenced row.
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// PatientView is a patient with its care unit, bed and creator resolved.
type PatientView struct {
	*Patient
	Status    Status `json:"status"`
	CareUnit  *Ref   `json:"careUnit,omitempty"`
	Bed       *Ref   `json:"bed,omitempty"`
	CreatedBy *Ref   `json:"createdBy,omitempty"`
}

// Admission is a validated admit request.
type Admission struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Gender      Gender
	Phone       *string
	Email       *string
	CareUnitID  uuid.UUID
	BedID       uuid.UUID
}

// Patch is a partial patient update. Naming a care unit and/or bed moves
// the patient; setting DischargedAt on an admitted patient discharges it.
type Patch struct {
	FirstName    *string
	LastName     *string
	DateOfBirth  *time.Time
	Gender       *Gender
	Phone        *string
	Email        *string
	CareUnitID   *uuid.UUID
	BedID        *uuid.UUID
	DischargedAt *time.Time
}

func (p Patch) moves() bool {
	return p.CareUnitID != nil || p.BedID != nil
}

func requiredName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.Validation("%s is required", field)
	}
	if len([]rune(v)) > nameMaxLen {
		return "", apperr.Validation("%s cannot exceed %d characters", field, nameMaxLen)
	}
	return v, nil
}

func optional(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

func validatePhone(v *string) (*string, error) {
	v = optional(v)
	if v != nil && len([]rune(*v)) > phoneMaxLen {
		return nil, apperr.Validation("Phone cannot exceed %d characters", phoneMaxLen)
	}
	return v, nil
}

func normalizeEmail(v *string) (*string, error) {
	v = optional(v)
	if v == nil {
		return nil, nil
	}
	s := strings.ToLower(*v)
	if !strings.Contains(s, "@") {
		return nil, apperr.Validation("Please provide a valid email")
	}
	return &s, nil
}

func validateBirthDate(dob *time.Time, now time.Time) error {
	if dob != nil && dob.After(now) {
		return apperr.Validation("Date of birth cannot be in the future")
	}
	return nil
}

// normalize validates the demographic fields of a.
func (a *Admission) normalize(now time.Time) error {
	var err error
	if a.FirstName, err = requiredName("First name", a.FirstName); err != nil {
		return err
	}
	if a.LastName, err = requiredName("Last name", a.LastName); err != nil {
		return err
	}
	if !a.Gender.Valid() {
		return apperr.Validation("Gender must be one of male, female, other")
	}
	if a.Phone, err = validatePhone(a.Phone); err != nil {
		return err
	}
	if a.Email, err = normalizeEmail(a.Email); err != nil {
		return err
	}
	return validateBirthDate(a.DateOfBirth, now)
}

// applyDemographics copies the demographic fields of patch onto p.
func (patch Patch) applyDemographics(p *Patient, now time.Time) error {
	var err error
	if patch.FirstName != nil {
		if p.FirstName, err = requiredName("First name", *patch.FirstName); err != nil {
			return err
		}
	}
	if patch.LastName != nil {
		if p.LastName, err = requiredName("Last name", *patch.LastName); err != nil {
			return err
		}
	}
	if patch.Gender != nil {
		if !patch.Gender.Valid() {
			return apperr.Validation("Gender must be one of male, female, other")
		}
		p.Gender = *patch.Gender
	}
	if patch.Phone != nil {
		if p.Phone, err = validatePhone(patch.Phone); err != nil {
			return err
		}
	}
	if patch.Email != nil {
		if p.Email, err = normalizeEmail(patch.Email); err != nil {
			return err
		}
	}
	if patch.DateOfBirth != nil {
		if err := validateBirthDate(patch.DateOfBirth, now); err != nil {
			return err
		}
		p.DateOfBirth = patch.DateOfBirth
	}
	return nil
}
