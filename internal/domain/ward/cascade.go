package ward

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/ward/internal/platform/telemetry"
	"github.com/ehr/ward/pkg/apperr"
)

// Cascade step names, in execution order.
const (
	StepCareUnit    = "care_unit"
	StepBeds        = "beds"
	StepFluids      = "fluids"
	StepMedications = "medications"
)

// CascadeRecorder counts per-step outcomes. Child steps report from their
// own goroutines, so implementations must be safe for concurrent use.
type CascadeRecorder interface {
	CascadeStep(step, outcome string)
}

// StepResult is the outcome of one cascade step.
type StepResult struct {
	Step     string `json:"step"`
	Affected int64  `json:"affected"`
	Error    string `json:"error,omitempty"`
	err      error
}

func (s StepResult) Err() error { return s.err }

// CascadeReport lists every step that ran. A step missing from the report
// did not run.
type CascadeReport struct {
	CareUnitID uuid.UUID    `json:"careUnitId"`
	Steps      []StepResult `json:"steps"`
}

// Failed returns the steps that ended in error.
func (r *CascadeReport) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Affected returns the rows changed by step, or 0 when it did not run.
func (r *CascadeReport) Affected(step string) int64 {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Affected
		}
	}
	return 0
}

// Cascade soft-deletes a care unit and then its beds, fluids and
// medications. Every step is idempotent, so a partially failed run can be
// repeated. Child steps do not share a transaction: one failing leaves the
// others applied, and the report says which.
type Cascade struct {
	units       CareUnitRepository
	beds        BedRepository
	fluids      CatalogRepository
	medications CatalogRepository
	metrics     CascadeRecorder
	logger      zerolog.Logger
}

func NewCascade(units CareUnitRepository, beds BedRepository, fluids, medications CatalogRepository, logger zerolog.Logger) *Cascade {
	return &Cascade{
		units:       units,
		beds:        beds,
		fluids:      fluids,
		medications: medications,
		logger:      logger.With().Str("component", "cascade").Logger(),
	}
}

func (c *Cascade) SetRecorder(m CascadeRecorder) {
	c.metrics = m
}

type childStep struct {
	name string
	run  func(ctx context.Context, unitID uuid.UUID, actor *uuid.UUID) (int64, error)
}

// Run executes the cascade. It fails NotFound when the unit does not
// exist and Unexpected when any step fails; the report is returned in
// both the success and failure cases once the first step has run.
func (c *Cascade) Run(ctx context.Context, unitID uuid.UUID, actor *uuid.UUID) (*CascadeReport, error) {
	report := &CascadeReport{CareUnitID: unitID}

	found, err := c.units.Deactivate(ctx, unitID, actor)
	if err != nil {
		report.Steps = append(report.Steps, c.result(StepCareUnit, 0, err))
		c.log(report)
		return report, apperr.Unexpected(fmt.Errorf("deactivate care unit: %w", err), "Server error")
	}
	if !found {
		return nil, apperr.NotFound("Care unit not found")
	}
	report.Steps = append(report.Steps, c.result(StepCareUnit, 1, nil))

	children := []childStep{
		{StepBeds, c.beds.DeactivateByUnit},
		{StepFluids, c.fluids.DeactivateByUnit},
		{StepMedications, c.medications.DeactivateByUnit},
	}
	results := make([]StepResult, len(children))

	// A plain Group: one step failing must not cancel its siblings.
	var g errgroup.Group
	for i, step := range children {
		i, step := i, step
		g.Go(func() error {
			n, err := step.run(ctx, unitID, actor)
			if err != nil {
				err = fmt.Errorf("deactivate %s: %w", step.name, err)
			}
			results[i] = c.result(step.name, n, err)
			return err
		})
	}
	groupErr := g.Wait()

	report.Steps = append(report.Steps, results...)
	c.log(report)
	if groupErr != nil {
		return report, apperr.Unexpected(groupErr, "Server error")
	}
	return report, nil
}

func (c *Cascade) result(step string, affected int64, err error) StepResult {
	outcome := telemetry.OutcomeSuccess
	res := StepResult{Step: step, Affected: affected, err: err}
	if err != nil {
		outcome = telemetry.OutcomeError
		res.Error = err.Error()
	}
	if c.metrics != nil {
		c.metrics.CascadeStep(step, outcome)
	}
	return res
}

func (c *Cascade) log(report *CascadeReport) {
	failed := report.Failed()
	evt := c.logger.Info()
	if len(failed) > 0 {
		evt = c.logger.Error()
	}
	arr := zerolog.Arr()
	for _, s := range report.Steps {
		arr.Dict(zerolog.Dict().Str("step", s.Step).Int64("affected", s.Affected).Str("error", s.Error))
	}
	evt.Str("care_unit_id", report.CareUnitID.String()).
		Array("steps", arr).
		Int("failed_steps", len(failed)).
		Msg("care unit cascade")
}
