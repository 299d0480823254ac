package rbac

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

// System role names. Both are created at startup and are read-only.
const (
	AdminRoleName = "Admin"
	StaffRoleName = "Staff"
)

const (
	nameMinLen        = 2
	nameMaxLen        = 50
	descriptionMaxLen = 200
)

// Role is a named bundle of permissions assigned to staff users.
type Role struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Permissions []auth.Permission `json:"permissions"`
	IsSystem    bool              `json:"isSystemRole"`
	State       lifecycle.State   `json:"state"`
	CreatedBy   *uuid.UUID        `json:"createdBy,omitempty"`
	UpdatedBy   *uuid.UUID        `json:"updatedBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// EffectivePermissions is what the access guard grants for this role. An
// inactive role grants nothing.
func (r *Role) EffectivePermissions() auth.PermissionSet {
	if r == nil || !r.State.IsActive() {
		return auth.NewPermissionSet()
	}
	return auth.NewPermissionSet(r.Permissions...)
}

// RoleUpdate is a partial update. Nil fields are left unchanged.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions []auth.Permission
	State       *lifecycle.State
}

func validateName(name string) error {
	if n := len([]rune(name)); n < nameMinLen || n > nameMaxLen {
		return apperr.Validation("Role name must be between %d and %d characters", nameMinLen, nameMaxLen)
	}
	return nil
}

func validateDescription(desc *string) error {
	if desc != nil && len([]rune(*desc)) > descriptionMaxLen {
		return apperr.Validation("Description cannot exceed %d characters", descriptionMaxLen)
	}
	return nil
}
