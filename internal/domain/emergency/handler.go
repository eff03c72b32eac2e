package emergency

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ers/ers/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/cases", h.ListCases)
	api.GET("/cases/:id", h.GetCase)
	api.GET("/cases/by-code/:code", h.FindByAccessCode)
	api.POST("/cases", h.AddCase)
	api.POST("/cases/simulate", h.SimulateBooking)
	api.PATCH("/cases/:id/status", h.SetStatus)

	api.GET("/metrics", h.GetMetrics)
	api.PATCH("/metrics", h.SetMetrics)
}

// StatusRequest is the body of PATCH /cases/:id/status.
type StatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) AddCase(c echo.Context) error {
	var in CaseInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created := h.svc.AddCase(c.Request().Context(), in)
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) SimulateBooking(c echo.Context) error {
	created, err := h.svc.SimulateBooking(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListCases(c echo.Context) error {
	pg := pagination.FromContext(c)
	var status Status
	if raw := c.QueryParam("status"); raw != "" {
		s, err := ParseStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		status = s
	}
	items, total, err := h.svc.ListCases(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) GetCase(c echo.Context) error {
	found, err := h.svc.GetCase(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) FindByAccessCode(c echo.Context) error {
	found, err := h.svc.FindByAccessCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) SetStatus(c echo.Context) error {
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.SetStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) GetMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Metrics(c.Request().Context()))
}

func (h *Handler) SetMetrics(c echo.Context) error {
	var p MetricsPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.SetMetrics(c.Request().Context(), p))
}

func notFoundOr500(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
