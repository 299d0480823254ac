package admission

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/ward/internal/domain/ward"
	"github.com/ehr/ward/pkg/lifecycle"
)

type txKey struct{}

func inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// fakeTx marks the context the way db.TxRunner does and counts commits.
type fakeTx struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(context.WithValue(ctx, txKey{}, true))
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.rollbacks++
	} else {
		f.commits++
	}
	return err
}

var errStore = errors.New("store unavailable")

// -- Patients --

type mockRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	units    *mockUnits
	beds     *mockBeds
	writes   int
	outOfTx  int
}

func newMockRepo(units *mockUnits, beds *mockBeds) *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient), units: units, beds: beds}
}

func (m *mockRepo) write(ctx context.Context) {
	m.writes++
	if !inTx(ctx) {
		m.outOfTx++
	}
}

func (m *mockRepo) Create(ctx context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(ctx)
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) GetView(ctx context.Context, id uuid.UUID) (*PatientView, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.view(p), nil
}

func (m *mockRepo) view(p *Patient) *PatientView {
	v := &PatientView{Patient: p, Status: p.Status()}
	if cu, ok := m.units.get(p.CareUnitID); ok {
		v.CareUnit = &Ref{ID: cu.ID, Name: cu.Name}
	}
	if b, ok := m.beds.get(p.BedID); ok {
		v.Bed = &Ref{ID: b.ID, Name: b.Name}
	}
	return v
}

func (m *mockRepo) ListActive(_ context.Context, limit, offset int) ([]*PatientView, int, error) {
	m.mu.Lock()
	var active []*Patient
	for _, p := range m.patients {
		if p.State.IsActive() {
			cp := *p
			active = append(active, &cp)
		}
	}
	m.mu.Unlock()

	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	total := len(active)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	var out []*PatientView
	for _, p := range active[offset:end] {
		out = append(out, m.view(p))
	}
	return out, total, nil
}

func (m *mockRepo) Update(ctx context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(ctx)
	if _, ok := m.patients[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) MarkDischarged(ctx context.Context, id uuid.UUID, at time.Time, actor *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(ctx)
	p, ok := m.patients[id]
	if !ok || p.DischargedAt != nil {
		return false, nil
	}
	p.DischargedAt = &at
	p.UpdatedBy = actor
	return true, nil
}

func (m *mockRepo) SetState(ctx context.Context, id uuid.UUID, state lifecycle.State, actor *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(ctx)
	p, ok := m.patients[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.State = state
	p.UpdatedBy = actor
	return nil
}

// -- Care units and beds --

type mockUnits struct {
	mu    sync.Mutex
	units map[uuid.UUID]*ward.CareUnit
}

func newMockUnits() *mockUnits {
	return &mockUnits{units: make(map[uuid.UUID]*ward.CareUnit)}
}

func (m *mockUnits) add(name string, state lifecycle.State) *ward.CareUnit {
	m.mu.Lock()
	defer m.mu.Unlock()
	cu := &ward.CareUnit{ID: uuid.New(), Name: name, State: state}
	m.units[cu.ID] = cu
	cp := *cu
	return &cp
}

func (m *mockUnits) get(id uuid.UUID) (*ward.CareUnit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cu, ok := m.units[id]
	if !ok {
		return nil, false
	}
	cp := *cu
	return &cp, true
}

func (m *mockUnits) GetByID(_ context.Context, id uuid.UUID) (*ward.CareUnit, error) {
	cu, ok := m.get(id)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cu, nil
}

// mockBeds applies Claim atomically under its mutex, like the conditional
// UPDATE it stands in for.
type mockBeds struct {
	mu       sync.Mutex
	beds     map[uuid.UUID]*ward.Bed
	claimErr error
	claims   int
	outOfTx  int
}

func newMockBeds() *mockBeds {
	return &mockBeds{beds: make(map[uuid.UUID]*ward.Bed)}
}

func (m *mockBeds) add(unitID uuid.UUID, name string) *ward.Bed {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &ward.Bed{ID: uuid.New(), CareUnitID: unitID, Name: name, State: lifecycle.Active}
	m.beds[b.ID] = b
	cp := *b
	return &cp
}

func (m *mockBeds) get(id uuid.UUID) (*ward.Bed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[id]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

func (m *mockBeds) occupied(id uuid.UUID) bool {
	b, _ := m.get(id)
	return b != nil && b.Occupied
}

func (m *mockBeds) setOccupied(id uuid.UUID, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beds[id].Occupied = v
}

func (m *mockBeds) deactivate(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beds[id].State = lifecycle.Inactive
}

func (m *mockBeds) GetByID(_ context.Context, id uuid.UUID) (*ward.Bed, error) {
	b, ok := m.get(id)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return b, nil
}

func (m *mockBeds) Claim(ctx context.Context, unitID, bedID uuid.UUID, actor *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.claims++
	if !inTx(ctx) {
		m.outOfTx++
	}
	b, ok := m.beds[bedID]
	if !ok || b.CareUnitID != unitID || !b.State.IsActive() || b.Occupied {
		return false, nil
	}
	b.Occupied = true
	b.UpdatedBy = actor
	return true, nil
}

func (m *mockBeds) Release(ctx context.Context, bedID uuid.UUID, actor *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !inTx(ctx) {
		m.outOfTx++
	}
	if b, ok := m.beds[bedID]; ok {
		b.Occupied = false
		b.UpdatedBy = actor
	}
	return nil
}
