package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	cu := api.Group("/care-units")
	cu.GET("", h.ListCareUnits, auth.RequirePermission(auth.CareUnitRead))
	cu.GET("/:careUnitId", h.GetCareUnit, auth.RequirePermission(auth.CareUnitRead))
	cu.POST("", h.CreateCareUnit, auth.RequirePermission(auth.CareUnitCreate))
	cu.PUT("/:careUnitId", h.UpdateCareUnit, auth.RequirePermission(auth.CareUnitUpdate))
	cu.DELETE("/:careUnitId", h.DeleteCareUnit, auth.RequirePermission(auth.CareUnitDelete))

	// Nested resources: any authenticated user reads, the admin gate writes.
	admin := auth.RequireAdmin()
	beds := cu.Group("/:careUnitId/beds")
	beds.GET("", h.ListBeds)
	beds.GET("/:id", h.GetBed)
	beds.POST("", h.CreateBed, admin)
	beds.PUT("/:id", h.UpdateBed, admin)
	beds.DELETE("/:id", h.DeleteBed, admin)

	for path, kind := range map[string]CatalogKind{"/:careUnitId/fluids": KindFluid, "/:careUnitId/medications": KindMedication} {
		g := cu.Group(path)
		g.GET("", h.listItems(kind))
		g.GET("/:id", h.getItem(kind))
		g.POST("", h.createItem(kind), admin)
		g.PUT("/:id", h.updateItem(kind), admin)
		g.DELETE("/:id", h.deleteItem(kind), admin)
	}
}

// -- Care units --

type careUnitRequest struct {
	Name        string  `json:"careUnit"`
	Description *string `json:"description"`
}

func (h *Handler) CreateCareUnit(c echo.Context) error {
	var req careUnitRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	cu := &CareUnit{Name: req.Name, Description: req.Description}
	if err := h.svc.CreateCareUnit(c.Request().Context(), cu); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cu)
}

func (h *Handler) GetCareUnit(c echo.Context) error {
	id, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
	if err != nil {
		return err
	}
	cu, err := h.svc.GetCareUnit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cu)
}

func (h *Handler) ListCareUnits(c echo.Context) error {
	pg := pagination.FromContext(c)
	units, total, err := h.svc.ListCareUnits(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(units, total, pg))
}

func (h *Handler) UpdateCareUnit(c echo.Context) error {
	id, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
	if err != nil {
		return err
	}
	var upd CareUnitUpdate
	if err := c.Bind(&upd); err != nil {
		return apperr.Validation("Invalid request body")
	}
	cu, err := h.svc.UpdateCareUnit(c.Request().Context(), id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cu)
}

func (h *Handler) DeleteCareUnit(c echo.Context) error {
	id, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
	if err != nil {
		return err
	}
	report, err := h.svc.DeleteCareUnit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Care unit and its beds, fluids, medications deleted successfully",
		"cascade": report,
	})
}

// -- Beds --

type bedRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) CreateBed(c echo.Context) error {
	unitID, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
	if err != nil {
		return err
	}
	var req bedRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	b := &Bed{Name: req.Name, Description: req.Description}
	if err := h.svc.CreateBed(c.Request().Context(), unitID, b); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBed(c echo.Context) error {
	unitID, id, err := nestedIDs(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), unitID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBeds(c echo.Context) error {
	unitID, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
	if err != nil {
		return err
	}
	beds, err := h.svc.ListBeds(c.Request().Context(), unitID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) UpdateBed(c echo.Context) error {
	unitID, id, err := nestedIDs(c)
	if err != nil {
		return err
	}
	var upd BedUpdate
	if err := c.Bind(&upd); err != nil {
		return apperr.Validation("Invalid request body")
	}
	b, err := h.svc.UpdateBed(c.Request().Context(), unitID, id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	unitID, id, err := nestedIDs(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), unitID, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Bed deleted successfully"})
}

// -- Fluids and medications --

type itemRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createItem(kind CatalogKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		unitID, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
		if err != nil {
			return err
		}
		var req itemRequest
		if err := c.Bind(&req); err != nil {
			return apperr.Validation("Invalid request body")
		}
		item, err := h.svc.CreateItem(c.Request().Context(), kind, unitID, req.Name)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, item)
	}
}

func (h *Handler) getItem(kind CatalogKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		unitID, id, err := nestedIDs(c)
		if err != nil {
			return err
		}
		item, err := h.svc.GetItem(c.Request().Context(), kind, unitID, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, item)
	}
}

func (h *Handler) listItems(kind CatalogKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		unitID, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
		if err != nil {
			return err
		}
		items, err := h.svc.ListItems(c.Request().Context(), kind, unitID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, items)
	}
}

func (h *Handler) updateItem(kind CatalogKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		unitID, id, err := nestedIDs(c)
		if err != nil {
			return err
		}
		var upd ItemUpdate
		if err := c.Bind(&upd); err != nil {
			return apperr.Validation("Invalid request body")
		}
		item, err := h.svc.UpdateItem(c.Request().Context(), kind, unitID, id, upd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, item)
	}
}

func (h *Handler) deleteItem(kind CatalogKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		unitID, id, err := nestedIDs(c)
		if err != nil {
			return err
		}
		if err := h.svc.DeleteItem(c.Request().Context(), kind, unitID, id); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"message": kind.label() + " deleted successfully"})
	}
}

func parseUUID(c echo.Context, param, msg string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, apperr.Validation("%s", msg)
	}
	return id, nil
}

func nestedIDs(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	unitID, err := parseUUID(c, "careUnitId", "Invalid care unit ID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := parseUUID(c, "id", "Invalid ID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return unitID, id, nil
}
