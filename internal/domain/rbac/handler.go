package rbac

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
	"github.com/ehr/ward/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/roles", auth.RequireAdmin())
	g.GET("", h.ListRoles)
	g.GET("/:id", h.GetRole)
	g.POST("", h.CreateRole)
	g.PUT("/:id", h.UpdateRole)
	g.DELETE("/:id", h.DeleteRole)
	g.GET("/:id/permissions", h.GetPermissions)
	g.PUT("/:id/permissions", h.SetPermissions)
}

type roleRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Permissions []string         `json:"permissions"`
	State       *lifecycle.State `json:"state"`
}

type permissionsBody struct {
	Permissions []string `json:"permissions"`
}

func (h *Handler) CreateRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if req.Name == nil {
		return apperr.Validation("Role name is required")
	}
	perms, err := auth.ParsePermissions(req.Permissions)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}

	role := &Role{Name: *req.Name, Description: req.Description, Permissions: perms}
	if req.State != nil {
		role.State = *req.State
	}
	if err := h.svc.CreateRole(c.Request().Context(), role); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, role)
}

func (h *Handler) GetRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	role, err := h.svc.GetRole(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

func (h *Handler) ListRoles(c echo.Context) error {
	pg := pagination.FromContext(c)
	roles, total, err := h.svc.ListRoles(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(roles, total, pg))
}

func (h *Handler) UpdateRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}

	upd := RoleUpdate{Name: req.Name, Description: req.Description, State: req.State}
	if req.Permissions != nil {
		if upd.Permissions, err = auth.ParsePermissions(req.Permissions); err != nil {
			return apperr.Validation("%s", err.Error())
		}
	}
	role, err := h.svc.UpdateRole(c.Request().Context(), id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

func (h *Handler) DeleteRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRole(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Role deleted successfully"})
}

func (h *Handler) GetPermissions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	perms, err := h.svc.GetPermissions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"permissions": perms})
}

func (h *Handler) SetPermissions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body permissionsBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("Invalid request body")
	}
	perms, err := auth.ParsePermissions(body.Permissions)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	role, err := h.svc.SetPermissions(c.Request().Context(), id, perms)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid role ID")
	}
	return id, nil
}
