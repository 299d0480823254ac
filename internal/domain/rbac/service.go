package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

type Service struct {
	repo   Repository
	users  UserCounter
	logger zerolog.Logger
}

func NewService(repo Repository, users UserCounter, logger zerolog.Logger) *Service {
	return &Service{repo: repo, users: users, logger: logger.With().Str("component", "rbac").Logger()}
}

func (s *Service) CreateRole(ctx context.Context, role *Role) error {
	if err := validateName(role.Name); err != nil {
		return err
	}
	if err := validateDescription(role.Description); err != nil {
		return err
	}
	if err := s.ensureNameFree(ctx, role.Name, uuid.Nil); err != nil {
		return err
	}

	role.IsSystem = false
	if role.State == "" {
		role.State = lifecycle.Active
	}
	role.CreatedBy = auth.ActorFromContext(ctx)
	role.UpdatedBy = role.CreatedBy
	if err := s.repo.Create(ctx, role); err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("Role with this name already exists")
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("Role not found")
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context, limit, offset int) ([]*Role, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, upd RoleUpdate) (*Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, apperr.InvalidOperation("Cannot update system roles")
	}

	if upd.Name != nil && *upd.Name != role.Name {
		if err := validateName(*upd.Name); err != nil {
			return nil, err
		}
		if err := s.ensureNameFree(ctx, *upd.Name, role.ID); err != nil {
			return nil, err
		}
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		if err := validateDescription(upd.Description); err != nil {
			return nil, err
		}
		role.Description = upd.Description
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions
	}
	if upd.State != nil {
		if !upd.State.Valid() {
			return nil, apperr.Validation("Invalid state %q", *upd.State)
		}
		role.State = *upd.State
	}

	role.UpdatedBy = auth.ActorFromContext(ctx)
	if err := s.repo.Update(ctx, role); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Role with this name already exists")
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	return role, nil
}

// DeleteRole soft-deletes a role that no user references.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperr.InvalidOperation("Cannot delete system roles")
	}

	count, err := s.users.CountByRole(ctx, id)
	if err != nil {
		return fmt.Errorf("count role users: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("Cannot delete role that is assigned to users").
			WithDetail("user_count", count)
	}

	if err := s.repo.SetState(ctx, id, lifecycle.Inactive, auth.ActorFromContext(ctx)); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	s.logger.Info().Str("role_id", id.String()).Str("role", role.Name).Msg("role deactivated")
	return nil
}

func (s *Service) GetPermissions(ctx context.Context, id uuid.UUID) ([]auth.Permission, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.Permissions == nil {
		return []auth.Permission{}, nil
	}
	return role.Permissions, nil
}

// SetPermissions replaces the permission list of a custom role. Callers
// pass values already checked against the closed set.
func (s *Service) SetPermissions(ctx context.Context, id uuid.UUID, perms []auth.Permission) (*Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, apperr.InvalidOperation("Cannot update system roles")
	}

	actor := auth.ActorFromContext(ctx)
	if err := s.repo.SetPermissions(ctx, id, perms, actor); err != nil {
		return nil, fmt.Errorf("set role permissions: %w", err)
	}
	role.Permissions = perms
	role.UpdatedBy = actor
	role.UpdatedAt = time.Now().UTC()
	return role, nil
}

// EnsureSystemRoles creates the Admin and Staff roles when missing and
// resets their permissions when they drifted.
func (s *Service) EnsureSystemRoles(ctx context.Context) (map[string]*Role, error) {
	wanted := map[string][]auth.Permission{
		AdminRoleName: auth.AllPermissions(),
		StaffRoleName: {auth.CareUnitRead, auth.UserRead},
	}
	descriptions := map[string]string{
		AdminRoleName: "Full system access",
		StaffRoleName: "Read access to care units and users",
	}

	out := make(map[string]*Role, len(wanted))
	for _, name := range []string{AdminRoleName, StaffRoleName} {
		perms := wanted[name]
		role, err := s.repo.GetByName(ctx, name)
		switch {
		case db.IsNotFound(err):
			desc := descriptions[name]
			role = &Role{
				Name:        name,
				Description: &desc,
				Permissions: perms,
				IsSystem:    true,
				State:       lifecycle.Active,
			}
			if err := s.repo.Create(ctx, role); err != nil {
				return nil, fmt.Errorf("create system role %s: %w", name, err)
			}
			s.logger.Info().Str("role", name).Msg("system role created")
		case err != nil:
			return nil, fmt.Errorf("load system role %s: %w", name, err)
		case !samePermissions(role.Permissions, perms) || !role.IsSystem || !role.State.IsActive():
			role.Permissions = perms
			role.IsSystem = true
			role.State = lifecycle.Active
			if err := s.repo.Update(ctx, role); err != nil {
				return nil, fmt.Errorf("reset system role %s: %w", name, err)
			}
			s.logger.Warn().Str("role", name).Msg("system role reset")
		}
		out[name] = role
	}
	return out, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.repo.GetByName(ctx, name)
	switch {
	case db.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("lookup role name: %w", err)
	case existing.ID != self:
		return apperr.Conflict("Role with this name already exists")
	}
	return nil
}

func samePermissions(a, b []auth.Permission) bool {
	if len(a) != len(b) {
		return false
	}
	set := auth.NewPermissionSet(a...)
	for _, p := range b {
		if !set.Has(p) {
			return false
		}
	}
	return true
}
