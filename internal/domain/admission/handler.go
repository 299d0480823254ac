package admission

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient endpoints. They sit behind
// authentication only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.GET("", h.ListPatients)
	g.GET("/:id", h.GetPatient)
	g.POST("/admit", h.AdmitPatient)
	g.PUT("/:id", h.UpdatePatient)
	g.POST("/:id/discharge", h.DischargePatient)
	g.DELETE("/:id", h.DeletePatient)
}

// date accepts a calendar date or a full RFC 3339 timestamp.
type date struct {
	time.Time
}

func (d *date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return apperr.Validation("Invalid date %q", s)
}

func (d *date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

type admitRequest struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	DateOfBirth *date   `json:"dateOfBirth"`
	Gender      Gender  `json:"gender"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	CareUnit    string  `json:"careUnit"`
	Bed         string  `json:"bed"`
}

type updateRequest struct {
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	DateOfBirth  *date   `json:"dateOfBirth"`
	Gender       *Gender `json:"gender"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email"`
	CareUnit     *string `json:"careUnit"`
	Bed          *string `json:"bed"`
	DischargedAt *date   `json:"dischargedAt"`
}

func (h *Handler) AdmitPatient(c echo.Context) error {
	var req admitRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	unitID, err := parseRef(req.CareUnit, "Care unit is required", "Invalid care unit ID")
	if err != nil {
		return err
	}
	bedID, err := parseRef(req.Bed, "Bed is required", "Invalid bed ID")
	if err != nil {
		return err
	}
	v, err := h.svc.Admit(c.Request().Context(), Admission{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth.ptr(),
		Gender:      req.Gender,
		Phone:       req.Phone,
		Email:       req.Email,
		CareUnitID:  unitID,
		BedID:       bedID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if patients == nil {
		patients = []*PatientView{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	patch := Patch{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DateOfBirth:  req.DateOfBirth.ptr(),
		Gender:       req.Gender,
		Phone:        req.Phone,
		Email:        req.Email,
		DischargedAt: req.DischargedAt.ptr(),
	}
	if req.CareUnit != nil {
		unitID, err := parseRef(*req.CareUnit, "Care unit is required", "Invalid care unit ID")
		if err != nil {
			return err
		}
		patch.CareUnitID = &unitID
	}
	if req.Bed != nil {
		bedID, err := parseRef(*req.Bed, "Bed is required", "Invalid bed ID")
		if err != nil {
			return err
		}
		patch.BedID = &bedID
	}
	v, err := h.svc.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DischargePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Discharge(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Patient discharged successfully",
		"patient": v,
	})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.SoftDelete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}

// bind surfaces date parse failures as-is and anything else as a generic
// body error.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		if ae, ok := apperr.As(err); ok {
			return ae
		}
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid patient ID")
	}
	return id, nil
}

func parseRef(v, requiredMsg, invalidMsg string) (uuid.UUID, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return uuid.Nil, apperr.Validation("%s", requiredMsg)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s", invalidMsg)
	}
	return id, nil
}
