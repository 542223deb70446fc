package inventory

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/assets", h.ListAssets)
	api.POST("/assets", h.CreateAsset)
	api.GET("/assets/export", h.ExportAssets)
	api.PATCH("/assets/:id", h.UpdateAsset)
	api.DELETE("/assets/:id", h.DeleteAsset)
	api.GET("/assets/:id/movements", h.ListMovements)
}

func (h *Handler) ListAssets(c echo.Context) error {
	items, err := h.svc.ListAssets(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *Handler) CreateAsset(c echo.Context) error {
	var req CreateAssetRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BodyError(err)
	}
	a, err := h.svc.CreateAsset(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": a})
}

func (h *Handler) UpdateAsset(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateAssetRequest
	if err := c.Bind(&req); err != nil {
		return middleware.BodyError(err)
	}
	a, err := h.svc.UpdateAsset(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": a})
}

func (h *Handler) DeleteAsset(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAsset(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ExportAssets(c echo.Context) error {
	body, err := h.svc.ExportAssets(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="inventory.xlsx"`)
	return c.Blob(http.StatusOK, ExportContentType, body)
}

func (h *Handler) ListMovements(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMovements(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return err
	}
}
