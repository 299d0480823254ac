package branding

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

const logoSelect = `SELECT l.id, l.name, l.image_url, l.state, l.created_by, l.updated_by,
	l.created_at, l.updated_at, cu.username, uu.username
	FROM hospital_logo l
	LEFT JOIN staff_user cu ON cu.id = l.created_by
	LEFT JOIN staff_user uu ON uu.id = l.updated_by`

func (r *repoPG) Create(ctx context.Context, l *Logo) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital_logo (id, name, image_url, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING created_at, updated_at`,
		l.ID, l.Name, l.ImageURL, l.State, l.CreatedBy,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Logo, error) {
	return scanLogo(r.conn(ctx).QueryRow(ctx, logoSelect+` WHERE l.id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, l *Logo) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE hospital_logo SET name = $2, image_url = $3, state = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		l.ID, l.Name, l.ImageURL, l.State, l.UpdatedBy,
	).Scan(&l.UpdatedAt)
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospital_logo SET state = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		id, lifecycle.Inactive, actor)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Logo, error) {
	rows, err := r.conn(ctx).Query(ctx, logoSelect+` WHERE l.state = $1 ORDER BY l.created_at DESC`, lifecycle.Active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Logo
	for rows.Next() {
		l, err := scanLogo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLogo(row pgx.Row) (*Logo, error) {
	var l Logo
	if err := row.Scan(&l.ID, &l.Name, &l.ImageURL, &l.State, &l.CreatedBy, &l.UpdatedBy,
		&l.CreatedAt, &l.UpdatedAt, &l.CreatedByName, &l.UpdatedByName); err != nil {
		return nil, err
	}
	return &l, nil
}
