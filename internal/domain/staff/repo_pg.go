package staff

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/pkg/lifecycle"
)

// Constraint names from the staff_user migration.
const (
	constraintUsername = "staff_user_username_key"
	constraintEmail    = "staff_user_email_key"
	constraintPhone    = "staff_user_phone_key"
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

const userCols = `id, username, password_hash, first_name, last_name, email, phone,
	specialization, role_id, state, created_by, updated_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff_user (id, username, password_hash, first_name, last_name, email, phone,
			specialization, role_id, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Email, u.Phone,
		u.Specialization, u.RoleID, u.State, u.CreatedBy,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE id = $1`, id))
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE username = $1`, username))
}

func (r *repoPG) ExistsByEmail(ctx context.Context, email string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM staff_user WHERE email = $1 AND id <> $2)`, email, exclude,
	).Scan(&exists)
	return exists, err
}

func (r *repoPG) ExistsByPhone(ctx context.Context, phone string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM staff_user WHERE phone = $1 AND id <> $2)`, phone, exclude,
	).Scan(&exists)
	return exists, err
}

func (r *repoPG) Update(ctx context.Context, u *User) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE staff_user SET password_hash = $2, first_name = $3, last_name = $4, email = $5,
			phone = $6, specialization = $7, role_id = $8, state = $9, updated_by = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.PasswordHash, u.FirstName, u.LastName, u.Email,
		u.Phone, u.Specialization, u.RoleID, u.State, u.UpdatedBy,
	).Scan(&u.UpdatedAt)
}

func (r *repoPG) SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE staff_user SET state = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		id, state, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff_user`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userCols+` FROM staff_user ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *repoPG) CountByRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff_user WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email, &u.Phone,
		&u.Specialization, &u.RoleID, &u.State, &u.CreatedBy, &u.UpdatedBy, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
