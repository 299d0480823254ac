package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	roles map[uuid.UUID]*Role
}

func newMockRepo() *mockRepo {
	return &mockRepo{roles: make(map[uuid.UUID]*Role)}
}

func (m *mockRepo) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role.ID = uuid.New()
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) GetByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) Update(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return pgx.ErrNoRows
	}
	role.UpdatedAt = time.Now()
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *mockRepo) SetPermissions(_ context.Context, id uuid.UUID, perms []auth.Permission, actor *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return pgx.ErrNoRows
	}
	r.Permissions = perms
	r.UpdatedBy = actor
	return nil
}

func (m *mockRepo) SetState(_ context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return pgx.ErrNoRows
	}
	r.State = state
	r.UpdatedBy = actor
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Role, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Role
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockUsers struct {
	counts map[uuid.UUID]int
	err    error
}

func (m *mockUsers) CountByRole(_ context.Context, roleID uuid.UUID) (int, error) {
	return m.counts[roleID], m.err
}

// -- Tests --

func newTestService() (*Service, *mockRepo, *mockUsers) {
	repo := newMockRepo()
	users := &mockUsers{counts: make(map[uuid.UUID]int)}
	return NewService(repo, users, zerolog.Nop()), repo, users
}

func messageOf(err error) string {
	if ae, ok := apperr.As(err); ok {
		return ae.Message
	}
	return ""
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{
		UserID:      uuid.New(),
		Username:    "admin",
		Permissions: auth.NewPermissionSet(auth.AdminAll),
		Active:      true,
	})
}

func TestService_CreateRole(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Nurse", Permissions: []auth.Permission{auth.CareUnitRead}, IsSystem: true}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if role.IsSystem {
		t.Error("created roles must never be system roles")
	}
	if role.State != lifecycle.Active {
		t.Errorf("expected active, got %s", role.State)
	}
	if role.CreatedBy == nil {
		t.Error("expected created_by from the caller")
	}
}

func TestService_CreateRole_DuplicateName(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	if err := svc.CreateRole(ctx, &Role{Name: "Nurse"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.CreateRole(ctx, &Role{Name: "Nurse"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if msg := messageOf(err); msg != "Role with this name already exists" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestService_CreateRole_NamesAreCaseSensitive(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	if err := svc.CreateRole(ctx, &Role{Name: "Nurse"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateRole(ctx, &Role{Name: "nurse"}); err != nil {
		t.Errorf("expected a differently cased name to be accepted, got %v", err)
	}
}

func TestService_CreateRole_InactiveNameStillTaken(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Porter"}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatal(err)
	}
	repo.roles[role.ID].State = lifecycle.Inactive

	if err := svc.CreateRole(ctx, &Role{Name: "Porter"}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestService_CreateRole_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	long := string(make([]byte, 201))

	tests := []struct {
		name string
		role *Role
	}{
		{"short name", &Role{Name: "A"}},
		{"long name", &Role{Name: "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"}},
		{"long description", &Role{Name: "Valid", Description: &long}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.CreateRole(adminCtx(), tt.role); !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_GetRole_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetRole(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_UpdateRole(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Nurse"}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatal(err)
	}

	name := "Senior Nurse"
	updated, err := svc.UpdateRole(ctx, role.ID, RoleUpdate{
		Name:        &name,
		Permissions: []auth.Permission{auth.CareUnitRead, auth.CareUnitUpdate},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != name {
		t.Errorf("expected %q, got %q", name, updated.Name)
	}
	if len(updated.Permissions) != 2 {
		t.Errorf("expected 2 permissions, got %v", updated.Permissions)
	}
}

func TestService_UpdateRole_RenameConflict(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	a := &Role{Name: "Nurse"}
	b := &Role{Name: "Doctor"}
	for _, r := range []*Role{a, b} {
		if err := svc.CreateRole(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	name := "Nurse"
	_, err := svc.UpdateRole(ctx, b.ID, RoleUpdate{Name: &name})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// keeping its own name is not a conflict
	same := "Doctor"
	if _, err := svc.UpdateRole(ctx, b.ID, RoleUpdate{Name: &same}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestService_SystemRolesAreReadOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	roles, err := svc.EnsureSystemRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	admin := roles[AdminRoleName]

	name := "Root"
	if _, err := svc.UpdateRole(ctx, admin.ID, RoleUpdate{Name: &name}); !apperr.Is(err, apperr.KindInvalidOperation) {
		t.Errorf("update: expected invalid operation, got %v", err)
	}
	if _, err := svc.SetPermissions(ctx, admin.ID, nil); !apperr.Is(err, apperr.KindInvalidOperation) {
		t.Errorf("set permissions: expected invalid operation, got %v", err)
	}
	err = svc.DeleteRole(ctx, admin.ID)
	if !apperr.Is(err, apperr.KindInvalidOperation) {
		t.Errorf("delete: expected invalid operation, got %v", err)
	}
	if msg := messageOf(err); msg != "Cannot delete system roles" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestService_DeleteRole(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Temp"}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.roles[role.ID].State != lifecycle.Inactive {
		t.Error("expected role to be soft deleted")
	}
}

func TestService_DeleteRole_InUse(t *testing.T) {
	svc, repo, users := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Busy"}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatal(err)
	}
	users.counts[role.ID] = 3

	err := svc.DeleteRole(ctx, role.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	ae, _ := apperr.As(err)
	if ae.Details["user_count"] != 3 {
		t.Errorf("expected user_count 3, got %v", ae.Details["user_count"])
	}
	if repo.roles[role.ID].State != lifecycle.Active {
		t.Error("role must stay active")
	}
}

func TestService_DeleteRole_CountError(t *testing.T) {
	svc, _, users := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Busy"}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatal(err)
	}
	users.err = errors.New("connection reset")

	if err := svc.DeleteRole(ctx, role.ID); err == nil || apperr.KindOf(err) != apperr.KindUnexpected {
		t.Errorf("expected unexpected error, got %v", err)
	}
}

func TestService_Permissions(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	role := &Role{Name: "Clerk"}
	if err := svc.CreateRole(ctx, role); err != nil {
		t.Fatal(err)
	}

	perms, err := svc.GetPermissions(ctx, role.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perms == nil || len(perms) != 0 {
		t.Errorf("expected empty non-nil permissions, got %v", perms)
	}

	if _, err := svc.SetPermissions(ctx, role.ID, []auth.Permission{auth.UserRead}); err != nil {
		t.Fatal(err)
	}
	perms, _ = svc.GetPermissions(ctx, role.ID)
	if len(perms) != 1 || perms[0] != auth.UserRead {
		t.Errorf("expected [user:read], got %v", perms)
	}

	if _, err := svc.GetPermissions(ctx, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_EnsureSystemRoles(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	roles, err := svc.EnsureSystemRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	admin, staff := roles[AdminRoleName], roles[StaffRoleName]
	if !admin.IsSystem || !staff.IsSystem {
		t.Error("expected both roles to be system roles")
	}
	if len(admin.Permissions) != len(auth.AllPermissions()) {
		t.Errorf("admin should hold every permission, got %v", admin.Permissions)
	}
	staffSet := staff.EffectivePermissions()
	if !staffSet.Has(auth.CareUnitRead) || !staffSet.Has(auth.UserRead) || len(staffSet) != 2 {
		t.Errorf("unexpected staff permissions %v", staff.Permissions)
	}

	// drift is repaired and nothing is duplicated
	repo.roles[staff.ID].Permissions = []auth.Permission{auth.AdminAll}
	again, err := svc.EnsureSystemRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.roles) != 2 {
		t.Errorf("expected 2 roles, got %d", len(repo.roles))
	}
	if again[StaffRoleName].EffectivePermissions().Has(auth.AdminAll) {
		t.Error("expected staff permissions to be reset")
	}
}

func TestRole_EffectivePermissions_Inactive(t *testing.T) {
	role := &Role{Permissions: []auth.Permission{auth.AdminAll}, State: lifecycle.Inactive}
	if len(role.EffectivePermissions()) != 0 {
		t.Error("inactive roles must grant nothing")
	}
	var nilRole *Role
	if len(nilRole.EffectivePermissions()) != 0 {
		t.Error("nil role must grant nothing")
	}
}
