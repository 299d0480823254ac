package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/domain/rbac"
	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

// RoleLookup is the part of the role service users depend on.
type RoleLookup interface {
	GetRole(ctx context.Context, id uuid.UUID) (*rbac.Role, error)
}

// LoginRecorder counts login outcomes.
type LoginRecorder interface {
	Login(outcome string)
}

type Service struct {
	repo        Repository
	roles       RoleLookup
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	metrics     LoginRecorder
	logger      zerolog.Logger
}

func NewService(repo Repository, roles RoleLookup, tokens *auth.TokenIssuer, revocations auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		roles:       roles,
		tokens:      tokens,
		revocations: revocations,
		logger:      logger.With().Str("component", "staff").Logger(),
	}
}

// SetLoginRecorder attaches an optional login metrics sink.
func (s *Service) SetLoginRecorder(m LoginRecorder) {
	s.metrics = m
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	u := &User{
		Username:       username,
		FirstName:      normalizeOptional(in.FirstName),
		LastName:       normalizeOptional(in.LastName),
		Phone:          normalizeOptional(in.Phone),
		Specialization: normalizeOptional(in.Specialization),
		State:          lifecycle.Active,
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	u.Email = email
	if err := validateProfile(u); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, apperr.Conflict("Username already exists")
	} else if !db.IsNotFound(err) {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	if err := s.ensureContactFree(ctx, u.Email, u.Phone, uuid.Nil); err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, in.RoleID)
	if err != nil {
		return nil, err
	}
	u.RoleID = role.ID

	if u.PasswordHash, err = auth.HashPassword(in.Password); err != nil {
		return nil, err
	}
	u.CreatedBy = auth.ActorFromContext(ctx)
	u.UpdatedBy = u.CreatedBy
	if err := s.repo.Create(ctx, u); err != nil {
		if cerr := conflictFor(err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	u.Role = role
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = s.roleOf(ctx, u.RoleID)
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	users, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	roles := make(map[uuid.UUID]*rbac.Role)
	for _, u := range users {
		role, ok := roles[u.RoleID]
		if !ok {
			role = s.roleOf(ctx, u.RoleID)
			roles[u.RoleID] = role
		}
		u.Role = role
	}
	return users, total, nil
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if upd.FirstName != nil {
		u.FirstName = normalizeOptional(upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = normalizeOptional(upd.LastName)
	}
	if upd.Specialization != nil {
		u.Specialization = normalizeOptional(upd.Specialization)
	}

	var newEmail, newPhone *string
	if upd.Email != nil {
		email, err := normalizeEmail(upd.Email)
		if err != nil {
			return nil, err
		}
		if email != nil && (u.Email == nil || *u.Email != *email) {
			newEmail = email
		}
		u.Email = email
	}
	if upd.Phone != nil {
		phone := normalizeOptional(upd.Phone)
		if phone != nil && (u.Phone == nil || *u.Phone != *phone) {
			newPhone = phone
		}
		u.Phone = phone
	}
	if err := validateProfile(u); err != nil {
		return nil, err
	}
	if err := s.ensureContactFree(ctx, newEmail, newPhone, u.ID); err != nil {
		return nil, err
	}

	if upd.RoleID != nil {
		role, err := s.resolveRole(ctx, *upd.RoleID)
		if err != nil {
			return nil, err
		}
		u.RoleID = role.ID
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		if u.PasswordHash, err = auth.HashPassword(*upd.Password); err != nil {
			return nil, err
		}
	}
	if upd.State != nil {
		if !upd.State.Valid() {
			return nil, apperr.Validation("Invalid state %q", *upd.State)
		}
		u.State = *upd.State
	}

	u.UpdatedBy = auth.ActorFromContext(ctx)
	if err := s.repo.Update(ctx, u); err != nil {
		if cerr := conflictFor(err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	u.Role = s.roleOf(ctx, u.RoleID)
	return u, nil
}

// DeleteUser deactivates the account. Existing tokens stop resolving on
// their next request.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := s.repo.SetState(ctx, id, lifecycle.Inactive, auth.ActorFromContext(ctx))
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("User not found")
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info().Str("user_id", id.String()).Msg("user deactivated")
	return nil
}

// ResolveIdentity implements auth.IdentityResolver.
func (s *Service) ResolveIdentity(ctx context.Context, userID uuid.UUID) (*auth.Identity, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	id := &auth.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		RoleID:      u.RoleID,
		Permissions: auth.NewPermissionSet(),
		Active:      u.State.IsActive(),
	}
	role, err := s.roles.GetRole(ctx, u.RoleID)
	switch {
	case err == nil:
		id.RoleName = role.Name
		id.Permissions = role.EffectivePermissions()
	case apperr.Is(err, apperr.KindNotFound):
		s.logger.Warn().Str("user_id", u.ID.String()).Str("role_id", u.RoleID.String()).Msg("user references a missing role")
	default:
		return nil, fmt.Errorf("resolve role: %w", err)
	}
	return id, nil
}

// EnsureDefaultAdmin creates the admin account bound to the Admin role
// unless a user with that name already exists.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, adminRole *rbac.Role, password string) (bool, error) {
	if _, err := s.repo.GetByUsername(ctx, DefaultAdminUsername); err == nil {
		return false, nil
	} else if !db.IsNotFound(err) {
		return false, fmt.Errorf("lookup admin user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	u := &User{
		Username:     DefaultAdminUsername,
		PasswordHash: hash,
		RoleID:       adminRole.ID,
		State:        lifecycle.Active,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err, constraintUsername) {
			return false, nil
		}
		return false, fmt.Errorf("create admin user: %w", err)
	}
	s.logger.Info().Str("username", u.Username).Msg("default admin user created")
	return true, nil
}

func (s *Service) resolveRole(ctx context.Context, raw string) (*rbac.Role, error) {
	roleID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, apperr.Validation("Invalid role ID")
	}
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("Invalid role ID")
		}
		return nil, err
	}
	if !role.State.IsActive() {
		return nil, apperr.Validation("Invalid role ID")
	}
	return role, nil
}

// roleOf returns the user's role for display, or nil when it is gone.
func (s *Service) roleOf(ctx context.Context, id uuid.UUID) *rbac.Role {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.logger.Error().Err(err).Str("role_id", id.String()).Msg("load role")
		}
		return nil
	}
	return role
}

func (s *Service) ensureContactFree(ctx context.Context, email, phone *string, self uuid.UUID) error {
	if email != nil {
		taken, err := s.repo.ExistsByEmail(ctx, *email, self)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return apperr.Conflict("Email already in use")
		}
	}
	if phone != nil {
		taken, err := s.repo.ExistsByPhone(ctx, *phone, self)
		if err != nil {
			return fmt.Errorf("check phone: %w", err)
		}
		if taken {
			return apperr.Conflict("Phone already in use")
		}
	}
	return nil
}

// conflictFor maps a unique violation raced past the pre-checks.
func conflictFor(err error) error {
	switch {
	case db.IsUniqueViolation(err, constraintUsername):
		return apperr.Conflict("Username already exists")
	case db.IsUniqueViolation(err, constraintEmail):
		return apperr.Conflict("Email already in use")
	case db.IsUniqueViolation(err, constraintPhone):
		return apperr.Conflict("Phone already in use")
	}
	return nil
}
