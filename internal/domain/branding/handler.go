package branding

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireAdmin()
	g := api.Group("/logos")
	g.GET("", h.ListLogos)
	g.GET("/:id", h.GetLogo)
	g.POST("", h.CreateLogo, admin)
	g.PUT("/:id", h.UpdateLogo, admin)
	g.DELETE("/:id", h.DeleteLogo, admin)
}

type createRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

func (h *Handler) CreateLogo(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	l, err := h.svc.CreateLogo(c.Request().Context(), req.Name, req.ImageURL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLogo(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLogo(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLogos(c echo.Context) error {
	logos, err := h.svc.ListLogos(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, logos)
}

func (h *Handler) UpdateLogo(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var upd LogoUpdate
	if err := c.Bind(&upd); err != nil {
		return apperr.Validation("Invalid request body")
	}
	l, err := h.svc.UpdateLogo(c.Request().Context(), id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLogo(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLogo(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Logo deleted successfully"})
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid logo ID")
	}
	return id, nil
}
