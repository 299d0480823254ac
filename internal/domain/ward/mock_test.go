package ward

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/ward/pkg/lifecycle"
)

func uniqueErr(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// -- Care units --

type mockUnits struct {
	mu    sync.Mutex
	units map[uuid.UUID]*CareUnit
	err   error
}

func newMockUnits() *mockUnits {
	return &mockUnits{units: make(map[uuid.UUID]*CareUnit)}
}

func (m *mockUnits) Create(_ context.Context, cu *CareUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cu.ID = uuid.New()
	cu.CreatedAt = time.Now()
	cu.UpdatedAt = cu.CreatedAt
	cp := *cu
	m.units[cu.ID] = &cp
	return nil
}

func (m *mockUnits) GetByID(_ context.Context, id uuid.UUID) (*CareUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cu, ok := m.units[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *cu
	return &cp, nil
}

func (m *mockUnits) Update(_ context.Context, cu *CareUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.units[cu.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *cu
	m.units[cu.ID] = &cp
	return nil
}

func (m *mockUnits) Deactivate(_ context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	cu, ok := m.units[id]
	if !ok {
		return false, nil
	}
	cu.State = lifecycle.Inactive
	cu.UpdatedBy = actor
	return true, nil
}

func (m *mockUnits) ListActive(_ context.Context, limit, offset int) ([]*CareUnit, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CareUnit
	for _, cu := range m.units {
		if cu.State.IsActive() {
			cp := *cu
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

// -- Beds --

type mockBeds struct {
	mu            sync.Mutex
	beds          map[uuid.UUID]*Bed
	deactivateErr error
}

func newMockBeds() *mockBeds {
	return &mockBeds{beds: make(map[uuid.UUID]*Bed)}
}

func (m *mockBeds) nameTaken(b *Bed) bool {
	for _, other := range m.beds {
		if other.ID != b.ID && other.CareUnitID == b.CareUnitID && other.Name == b.Name &&
			other.State.IsActive() && b.State.IsActive() {
			return true
		}
	}
	return false
}

func (m *mockBeds) Create(_ context.Context, b *Bed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	if m.nameTaken(b) {
		return uniqueErr(constraintBedName)
	}
	cp := *b
	m.beds[b.ID] = &cp
	return nil
}

func (m *mockBeds) GetByID(_ context.Context, id uuid.UUID) (*Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *mockBeds) GetInUnit(_ context.Context, unitID, id uuid.UUID) (*Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[id]
	if !ok || b.CareUnitID != unitID {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *mockBeds) Update(_ context.Context, b *Bed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.beds[b.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if m.nameTaken(b) {
		return uniqueErr(constraintBedName)
	}
	cur.Name, cur.Description, cur.State, cur.UpdatedBy = b.Name, b.Description, b.State, b.UpdatedBy
	cur.UpdatedAt = time.Now()
	b.Occupied, b.UpdatedAt = cur.Occupied, cur.UpdatedAt
	return nil
}

func (m *mockBeds) ListActiveByUnit(_ context.Context, unitID uuid.UUID) ([]*Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Bed
	for _, b := range m.beds {
		if b.CareUnitID == unitID && b.State.IsActive() {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockBeds) Claim(_ context.Context, unitID, bedID uuid.UUID, actor *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[bedID]
	if !ok || b.CareUnitID != unitID || !b.State.IsActive() || b.Occupied {
		return false, nil
	}
	b.Occupied = true
	b.UpdatedBy = actor
	return true, nil
}

func (m *mockBeds) Release(_ context.Context, bedID uuid.UUID, actor *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.beds[bedID]; ok {
		b.Occupied = false
		b.UpdatedBy = actor
	}
	return nil
}

func (m *mockBeds) DeactivateByUnit(_ context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return 0, m.deactivateErr
	}
	var n int64
	for _, b := range m.beds {
		if b.CareUnitID == unitID && b.State.IsActive() {
			b.State = lifecycle.Inactive
			b.UpdatedBy = actor
			b.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// -- Catalog --

type mockCatalog struct {
	mu            sync.Mutex
	kind          CatalogKind
	items         map[uuid.UUID]*CatalogItem
	deactivateErr error
}

func newMockCatalog(kind CatalogKind) *mockCatalog {
	return &mockCatalog{kind: kind, items: make(map[uuid.UUID]*CatalogItem)}
}

func (m *mockCatalog) Kind() CatalogKind { return m.kind }

func (m *mockCatalog) nameTaken(item *CatalogItem) bool {
	for _, other := range m.items {
		if other.ID != item.ID && other.CareUnitID == item.CareUnitID && other.Name == item.Name &&
			other.State.IsActive() && item.State.IsActive() {
			return true
		}
	}
	return false
}

func (m *mockCatalog) Create(_ context.Context, item *CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = uuid.New()
	item.Kind = m.kind
	if m.nameTaken(item) {
		return uniqueErr(CatalogNameConstraint(m.kind))
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockCatalog) GetInUnit(_ context.Context, unitID, id uuid.UUID) (*CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.CareUnitID != unitID {
		return nil, pgx.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (m *mockCatalog) Update(_ context.Context, item *CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return pgx.ErrNoRows
	}
	if m.nameTaken(item) {
		return uniqueErr(CatalogNameConstraint(m.kind))
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockCatalog) ListActiveByUnit(_ context.Context, unitID uuid.UUID) ([]*CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CatalogItem
	for _, item := range m.items {
		if item.CareUnitID == unitID && item.State.IsActive() {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCatalog) DeactivateByUnit(_ context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return 0, m.deactivateErr
	}
	var n int64
	for _, item := range m.items {
		if item.CareUnitID == unitID && item.State.IsActive() {
			item.State = lifecycle.Inactive
			item.UpdatedBy = actor
			item.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

var errStore = errors.New("connection refused")
