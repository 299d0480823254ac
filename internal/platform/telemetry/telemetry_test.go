package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ehr/ward/pkg/apperr"
)

func TestMetrics_WorkflowCounters(t *testing.T) {
	m := New()
	m.Admission(OutcomeSuccess)
	m.Admission(OutcomeSuccess)
	m.Admission(OutcomeConflict)
	m.CascadeStep("beds", OutcomeSuccess)

	if got := testutil.ToFloat64(m.admissions.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Errorf("expected 2 successful admissions, got %v", got)
	}
	if got := testutil.ToFloat64(m.admissions.WithLabelValues(OutcomeConflict)); got != 1 {
		t.Errorf("expected 1 conflicting admission, got %v", got)
	}
	if got := testutil.ToFloat64(m.cascadeStep.WithLabelValues("beds", OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 beds step, got %v", got)
	}
}

func TestMetrics_MiddlewareUsesRouteAndErrorStatus(t *testing.T) {
	m := New()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/abc", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/patients/:id")

	m.Middleware()(func(c echo.Context) error {
		return apperr.NotFound("Patient not found")
	})(c)

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/patients/:id", "404"))
	if got != 1 {
		t.Errorf("expected one 404 sample for the route, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Discharge(OutcomeSuccess)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	if err := m.Handler()(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "ward_discharges_total") {
		t.Error("expected ward_discharges_total in exposition")
	}
}
