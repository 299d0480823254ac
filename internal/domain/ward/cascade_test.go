package ward

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

func seedUnit(t *testing.T, f *fixture) (*CareUnit, []*Bed) {
	t.Helper()
	cu := f.unit(t, "ICU")
	beds := []*Bed{f.bed(t, cu.ID, "B1"), f.bed(t, cu.ID, "B2")}
	ctx := adminCtx()
	if _, err := f.svc.CreateItem(ctx, KindFluid, cu.ID, "Saline"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CreateItem(ctx, KindMedication, cu.ID, "Heparin"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CreateItem(ctx, KindMedication, cu.ID, "Insulin"); err != nil {
		t.Fatal(err)
	}
	return cu, beds
}

func TestCascade_DeactivatesEverything(t *testing.T) {
	f := newFixture()
	cu, beds := seedUnit(t, f)
	other := f.unit(t, "ER")
	otherBed := f.bed(t, other.ID, "B1")

	report, err := f.svc.DeleteCareUnit(adminCtx(), cu.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.units.units[cu.ID].State != lifecycle.Inactive {
		t.Error("expected care unit to be inactive")
	}
	for _, b := range beds {
		if f.beds.beds[b.ID].State != lifecycle.Inactive {
			t.Errorf("bed %s still active", b.Name)
		}
	}
	for _, item := range f.medications.items {
		if item.State != lifecycle.Inactive {
			t.Errorf("medication %s still active", item.Name)
		}
	}
	if f.beds.beds[otherBed.ID].State != lifecycle.Active {
		t.Error("beds of other units must not be touched")
	}

	want := map[string]int64{StepCareUnit: 1, StepBeds: 2, StepFluids: 1, StepMedications: 2}
	if len(report.Steps) != len(want) {
		t.Fatalf("expected %d steps, got %+v", len(want), report.Steps)
	}
	if report.Steps[0].Step != StepCareUnit {
		t.Errorf("expected the care unit step first, got %s", report.Steps[0].Step)
	}
	for step, n := range want {
		if got := report.Affected(step); got != n {
			t.Errorf("%s: expected %d affected, got %d", step, n, got)
		}
		if f.steps.outcome(step) != "success" {
			t.Errorf("%s: expected success metric, got %q", step, f.steps.outcome(step))
		}
	}
}

func TestCascade_NotFound(t *testing.T) {
	f := newFixture()
	report, err := f.svc.DeleteCareUnit(adminCtx(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) || messageOf(err) != "Care unit not found" {
		t.Errorf("expected Care unit not found, got %v", err)
	}
	if report != nil {
		t.Errorf("expected no report, got %+v", report)
	}
}

func TestCascade_IsIdempotent(t *testing.T) {
	f := newFixture()
	cu, _ := seedUnit(t, f)

	if _, err := f.svc.DeleteCareUnit(adminCtx(), cu.ID); err != nil {
		t.Fatal(err)
	}
	report, err := f.svc.DeleteCareUnit(adminCtx(), cu.ID)
	if err != nil {
		t.Fatalf("re-running the cascade should succeed, got %v", err)
	}
	if report.Affected(StepBeds) != 0 || report.Affected(StepMedications) != 0 {
		t.Errorf("expected nothing left to deactivate, got %+v", report.Steps)
	}
}

func TestCascade_SkipsInactiveChildren(t *testing.T) {
	f := newFixture()
	cu, beds := seedUnit(t, f)
	closed := beds[1]
	if err := f.svc.DeleteBed(adminCtx(), cu.ID, closed.ID); err != nil {
		t.Fatal(err)
	}
	before := *f.beds.beds[closed.ID]
	if before.UpdatedBy == nil || before.UpdatedAt.IsZero() {
		t.Fatalf("expected the bed deactivation to be stamped, got %+v", before)
	}

	report, err := f.svc.DeleteCareUnit(adminCtx(), cu.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := report.Affected(StepBeds); got != 1 {
		t.Errorf("expected only the active bed to be counted, got %d", got)
	}
	after := f.beds.beds[closed.ID]
	if *after.UpdatedBy != *before.UpdatedBy || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("inactive bed was rewritten: before %v/%v, after %v/%v",
			*before.UpdatedBy, before.UpdatedAt, *after.UpdatedBy, after.UpdatedAt)
	}
	if f.beds.beds[beds[0].ID].State != lifecycle.Inactive {
		t.Error("expected the active bed to be deactivated")
	}
}

func TestCascade_PartialFailureIsReported(t *testing.T) {
	f := newFixture()
	cu, beds := seedUnit(t, f)
	f.fluids.deactivateErr = errStore

	report, err := f.svc.DeleteCareUnit(adminCtx(), cu.ID)
	if !apperr.Is(err, apperr.KindUnexpected) {
		t.Fatalf("expected unexpected error, got %v", err)
	}
	if report == nil {
		t.Fatal("expected a report on partial failure")
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Step != StepFluids || failed[0].Err() == nil {
		t.Fatalf("expected only the fluids step to fail, got %+v", failed)
	}

	// siblings of the failed step still ran
	for _, b := range beds {
		if f.beds.beds[b.ID].State != lifecycle.Inactive {
			t.Errorf("bed %s should be inactive", b.Name)
		}
	}
	if report.Affected(StepMedications) != 2 {
		t.Errorf("expected medications to be deactivated, got %+v", report.Steps)
	}
	if f.steps.outcome(StepFluids) != "error" {
		t.Errorf("expected fluids error metric, got %q", f.steps.outcome(StepFluids))
	}

	// fixing the store and re-running completes the cascade
	f.fluids.deactivateErr = nil
	report, err = f.svc.DeleteCareUnit(adminCtx(), cu.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Affected(StepFluids) != 1 {
		t.Errorf("expected the retry to deactivate the fluid, got %+v", report.Steps)
	}
}

func TestCascade_CareUnitStepFailure(t *testing.T) {
	f := newFixture()
	cu, beds := seedUnit(t, f)
	f.units.err = errStore

	cascade := NewCascade(f.units, f.beds, f.fluids, f.medications, f.svc.logger)
	report, err := cascade.Run(context.Background(), cu.ID, nil)
	if !apperr.Is(err, apperr.KindUnexpected) {
		t.Fatalf("expected unexpected error, got %v", err)
	}
	if len(report.Steps) != 1 || report.Steps[0].Step != StepCareUnit {
		t.Errorf("expected only the care unit step, got %+v", report.Steps)
	}
	if f.beds.beds[beds[0].ID].State != lifecycle.Active {
		t.Error("children must not be touched when the unit step fails")
	}
}
