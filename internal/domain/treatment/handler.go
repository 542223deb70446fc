package treatment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/inventory"
	"github.com/clinic/clinic/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/treatments", h.ListTreatments)
	api.POST("/treatments", h.CreateTreatment)
	api.GET("/treatments/:id", h.GetTreatment)

	api.GET("/patients/:id/treatments", h.ListPatientTreatments)
	api.POST("/patients/:id/treatments", h.CreatePatientTreatment)
	api.GET("/patients/:id/applications", h.ListApplications)
}

func (h *Handler) CreateTreatment(c echo.Context) error {
	raw, err := decodeObject(c)
	if err != nil {
		return err
	}
	return h.create(c, raw)
}

// CreatePatientTreatment records a treatment for the patient in the path,
// which takes precedence over any patient field in the body.
func (h *Handler) CreatePatientTreatment(c echo.Context) error {
	raw, err := decodeObject(c)
	if err != nil {
		return err
	}
	for _, k := range patientAliases {
		delete(raw, k)
	}
	raw["patient_id"] = c.Param("id")
	return h.create(c, raw)
}

func (h *Handler) create(c echo.Context, raw map[string]interface{}) error {
	req, err := NormalizeRequest(raw)
	if err != nil {
		return httpError(err)
	}
	v, err := h.svc.CreateTreatment(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListTreatments(c echo.Context) error {
	raw := c.QueryParam("patientId")
	if raw == "" {
		raw = c.QueryParam("patient_id")
	}
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	return h.list(c, raw)
}

func (h *Handler) ListPatientTreatments(c echo.Context) error {
	return h.list(c, c.Param("id"))
}

func (h *Handler) list(c echo.Context, rawID string) error {
	pid, err := uuid.Parse(rawID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.svc.ListTreatments(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTreatment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.GetTreatment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListApplications(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.svc.ListUpcoming(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"applications": items})
}

// decodeObject reads a JSON object body keeping numbers exact.
func decodeObject(c echo.Context) (map[string]interface{}, error) {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, middleware.BodyError(err)
	}
	if raw == nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	return raw, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, inventory.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return err
	}
}
