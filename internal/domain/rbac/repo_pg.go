package rbac

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/pkg/lifecycle"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const roleCols = `id, name, description, permissions, is_system, state,
	created_by, updated_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, role *Role) error {
	role.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO role (id, name, description, permissions, is_system, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at`,
		role.ID, role.Name, role.Description, permissionStrings(role.Permissions),
		role.IsSystem, role.State, role.CreatedBy,
	).Scan(&role.CreatedAt, &role.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	return scanRole(r.conn(ctx).QueryRow(ctx, `SELECT `+roleCols+` FROM role WHERE id = $1`, id))
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*Role, error) {
	return scanRole(r.conn(ctx).QueryRow(ctx, `SELECT `+roleCols+` FROM role WHERE name = $1`, name))
}

func (r *repoPG) Update(ctx context.Context, role *Role) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE role SET name = $2, description = $3, permissions = $4, is_system = $5,
			state = $6, updated_by = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		role.ID, role.Name, role.Description, permissionStrings(role.Permissions), role.IsSystem,
		role.State, role.UpdatedBy,
	).Scan(&role.UpdatedAt)
}

func (r *repoPG) SetPermissions(ctx context.Context, id uuid.UUID, perms []auth.Permission, actor *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE role SET permissions = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		id, permissionStrings(perms), actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE role SET state = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		id, state, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Role, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM role`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+roleCols+` FROM role ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

func scanRole(row pgx.Row) (*Role, error) {
	var (
		role  Role
		perms []string
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.IsSystem, &role.State,
		&role.CreatedBy, &role.UpdatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	// unknown stored values are never granted
	for _, p := range perms {
		if perm := auth.Permission(p); perm.Valid() {
			role.Permissions = append(role.Permissions, perm)
		}
	}
	return &role, nil
}

func permissionStrings(perms []auth.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
