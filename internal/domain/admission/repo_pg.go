package admission

import (
	"context"
	"time"

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

const patientCols = `p.id, p.first_name, p.last_name, p.date_of_birth, p.gender, p.phone, p.email,
	p.care_unit_id, p.bed_id, p.admitted_at, p.discharged_at, p.state,
	p.created_by, p.updated_by, p.created_at, p.updated_at`

const viewSelect = `SELECT ` + patientCols + `, cu.name, b.name, u.username
	FROM patient p
	JOIN care_unit cu ON cu.id = p.care_unit_id
	JOIN bed b ON b.id = p.bed_id
	LEFT JOIN staff_user u ON u.id = p.created_by`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, date_of_birth, gender, phone, email,
			care_unit_id, bed_id, admitted_at, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email,
		p.CareUnitID, p.BedID, p.AdmittedAt, p.State, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient p WHERE p.id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient p WHERE p.id = $1 FOR UPDATE`, id))
}

func (r *repoPG) GetView(ctx context.Context, id uuid.UUID) (*PatientView, error) {
	return scanView(r.conn(ctx).QueryRow(ctx, viewSelect+` WHERE p.id = $1`, id))
}

func (r *repoPG) ListActive(ctx context.Context, limit, offset int) ([]*PatientView, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient WHERE state = $1`, lifecycle.Active).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, viewSelect+`
		WHERE p.state = $1 ORDER BY p.created_at DESC LIMIT $2 OFFSET $3`,
		lifecycle.Active, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*PatientView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET first_name = $2, last_name = $3, date_of_birth = $4, gender = $5,
			phone = $6, email = $7, care_unit_id = $8, bed_id = $9, discharged_at = $10,
			updated_by = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Phone, p.Email, p.CareUnitID, p.BedID, p.DischargedAt, p.UpdatedBy,
	).Scan(&p.UpdatedAt)
}

func (r *repoPG) MarkDischarged(ctx context.Context, id uuid.UUID, at time.Time, actor *uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET discharged_at = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1 AND discharged_at IS NULL`,
		id, at, actor)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET state = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		id, state, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func patientDest(p *Patient) []interface{} {
	return []interface{}{
		&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.Phone, &p.Email,
		&p.CareUnitID, &p.BedID, &p.AdmittedAt, &p.DischargedAt, &p.State,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt,
	}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(patientDest(&p)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanView(row pgx.Row) (*PatientView, error) {
	var (
		p                 Patient
		unitName, bedName string
		creator           *string
	)
	dest := append(patientDest(&p), &unitName, &bedName, &creator)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	v := &PatientView{
		Patient:  &p,
		Status:   p.Status(),
		CareUnit: &Ref{ID: p.CareUnitID, Name: unitName},
		Bed:      &Ref{ID: p.BedID, Name: bedName},
	}
	if p.CreatedBy != nil && creator != nil {
		v.CreatedBy = &Ref{ID: *p.CreatedBy, Name: *creator}
	}
	return v, nil
}
