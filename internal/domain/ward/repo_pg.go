package ward

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/pkg/lifecycle"
)

// -- Care units --

type careUnitRepoPG struct {
	pool *pgxpool.Pool
}

func NewCareUnitRepo(pool *pgxpool.Pool) CareUnitRepository {
	return &careUnitRepoPG{pool: pool}
}

func (r *careUnitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const careUnitCols = `id, name, description, state, created_by, updated_by, created_at, updated_at`

func (r *careUnitRepoPG) Create(ctx context.Context, cu *CareUnit) error {
	cu.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO care_unit (id, name, description, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING created_at, updated_at`,
		cu.ID, cu.Name, cu.Description, cu.State, cu.CreatedBy,
	).Scan(&cu.CreatedAt, &cu.UpdatedAt)
}

func (r *careUnitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CareUnit, error) {
	var cu CareUnit
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+careUnitCols+` FROM care_unit WHERE id = $1`, id).
		Scan(&cu.ID, &cu.Name, &cu.Description, &cu.State, &cu.CreatedBy, &cu.UpdatedBy, &cu.CreatedAt, &cu.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cu, nil
}

func (r *careUnitRepoPG) Update(ctx context.Context, cu *CareUnit) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE care_unit SET name = $2, description = $3, state = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		cu.ID, cu.Name, cu.Description, cu.State, cu.UpdatedBy,
	).Scan(&cu.UpdatedAt)
}

func (r *careUnitRepoPG) Deactivate(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE care_unit SET state = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		id, lifecycle.Inactive, actor)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *careUnitRepoPG) ListActive(ctx context.Context, limit, offset int) ([]*CareUnit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM care_unit WHERE state = $1`, lifecycle.Active).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+careUnitCols+` FROM care_unit
		WHERE state = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, lifecycle.Active, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var units []*CareUnit
	for rows.Next() {
		var cu CareUnit
		if err := rows.Scan(&cu.ID, &cu.Name, &cu.Description, &cu.State,
			&cu.CreatedBy, &cu.UpdatedBy, &cu.CreatedAt, &cu.UpdatedAt); err != nil {
			return nil, 0, err
		}
		units = append(units, &cu)
	}
	return units, total, rows.Err()
}

// -- Beds --

// Unique index over (care_unit_id, name) of active beds.
const constraintBedName = "bed_unit_name_active_key"

type bedRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedRepo(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bedCols = `id, care_unit_id, name, description, is_occupied, state,
	created_by, updated_by, created_at, updated_at`

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed (id, care_unit_id, name, description, is_occupied, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at`,
		b.ID, b.CareUnitID, b.Name, b.Description, b.Occupied, b.State, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1`, id))
}

func (r *bedRepoPG) GetInUnit(ctx context.Context, unitID, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bedCols+` FROM bed WHERE id = $1 AND care_unit_id = $2`, id, unitID))
}

// Update writes name, description and state. Occupancy is left to Claim
// and Release.
func (r *bedRepoPG) Update(ctx context.Context, b *Bed) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE bed SET name = $2, description = $3, state = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING is_occupied, updated_at`,
		b.ID, b.Name, b.Description, b.State, b.UpdatedBy,
	).Scan(&b.Occupied, &b.UpdatedAt)
}

func (r *bedRepoPG) ListActiveByUnit(ctx context.Context, unitID uuid.UUID) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bedCols+` FROM bed
		WHERE care_unit_id = $1 AND state = $2 ORDER BY created_at DESC`, unitID, lifecycle.Active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beds []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		beds = append(beds, b)
	}
	return beds, rows.Err()
}

func (r *bedRepoPG) Claim(ctx context.Context, unitID, bedID uuid.UUID, actor *uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed SET is_occupied = TRUE, updated_by = $3, updated_at = NOW()
		WHERE id = $1 AND care_unit_id = $2 AND state = $4 AND NOT is_occupied`,
		bedID, unitID, actor, lifecycle.Active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bedRepoPG) Release(ctx context.Context, bedID uuid.UUID, actor *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed SET is_occupied = FALSE, updated_by = $2, updated_at = NOW() WHERE id = $1`,
		bedID, actor)
	return err
}

func (r *bedRepoPG) DeactivateByUnit(ctx context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed SET state = $2, updated_by = $3, updated_at = NOW()
		WHERE care_unit_id = $1 AND state = $4`,
		unitID, lifecycle.Inactive, actor, lifecycle.Active)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.CareUnitID, &b.Name, &b.Description, &b.Occupied, &b.State,
		&b.CreatedBy, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// -- Fluids and medications --

// catalogRepoPG serves the fluid and medication tables, which share a
// layout.
type catalogRepoPG struct {
	pool  *pgxpool.Pool
	kind  CatalogKind
	table string
}

func NewFluidRepo(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepoPG{pool: pool, kind: KindFluid, table: "fluid"}
}

func NewMedicationRepo(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepoPG{pool: pool, kind: KindMedication, table: "medication"}
}

// CatalogNameConstraint is the unique index over active names of a unit.
func CatalogNameConstraint(kind CatalogKind) string {
	return string(kind) + "_unit_name_active_key"
}

func (r *catalogRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *catalogRepoPG) Kind() CatalogKind { return r.kind }

const catalogCols = `id, care_unit_id, name, state, created_by, updated_by, created_at, updated_at`

func (r *catalogRepoPG) Create(ctx context.Context, item *CatalogItem) error {
	item.ID = uuid.New()
	item.Kind = r.kind
	return r.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, care_unit_id, name, state, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING created_at, updated_at`, r.table),
		item.ID, item.CareUnitID, item.Name, item.State, item.CreatedBy,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

func (r *catalogRepoPG) GetInUnit(ctx context.Context, unitID, id uuid.UUID) (*CatalogItem, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND care_unit_id = $2`, catalogCols, r.table), id, unitID))
}

func (r *catalogRepoPG) Update(ctx context.Context, item *CatalogItem) error {
	return r.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		UPDATE %s SET name = $2, state = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, r.table),
		item.ID, item.Name, item.State, item.UpdatedBy,
	).Scan(&item.UpdatedAt)
}

func (r *catalogRepoPG) ListActiveByUnit(ctx context.Context, unitID uuid.UUID) ([]*CatalogItem, error) {
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM %s
		WHERE care_unit_id = $1 AND state = $2 ORDER BY created_at DESC`, catalogCols, r.table),
		unitID, lifecycle.Active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CatalogItem
	for rows.Next() {
		item, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *catalogRepoPG) DeactivateByUnit(ctx context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET state = $2, updated_by = $3, updated_at = NOW()
		WHERE care_unit_id = $1 AND state = $4`, r.table),
		unitID, lifecycle.Inactive, actor, lifecycle.Active)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *catalogRepoPG) scan(row pgx.Row) (*CatalogItem, error) {
	item := CatalogItem{Kind: r.kind}
	err := row.Scan(&item.ID, &item.CareUnitID, &item.Name, &item.State,
		&item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
