package forecast

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carefin/carefin/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts read-only forecast routes. Simulation is a POST but
// persists nothing, so it shares the read roles.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/forecasts", auth.RequireRole(auth.ReadRoles...))
	g.GET("/:department_id", h.Forecast)
	g.GET("/:department_id/trend", h.Trend)
	g.POST("/:department_id/simulate", h.Simulate)
	g.GET("/:department_id/comparison", h.Comparison)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidMethod), errors.Is(err, ErrInvalidParams):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func departmentParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("department_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
	}
	return id, nil
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func (h *Handler) Forecast(c echo.Context) error {
	deptID, err := departmentParam(c)
	if err != nil {
		return err
	}
	horizon, err := intQuery(c, "horizon", DefaultHorizon)
	if err != nil {
		return err
	}
	window, err := intQuery(c, "window", DefaultWindow)
	if err != nil {
		return err
	}
	fc, err := h.svc.Forecast(c.Request().Context(), deptID, c.QueryParam("method"), horizon, window)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, fc)
}

func (h *Handler) Trend(c echo.Context) error {
	deptID, err := departmentParam(c)
	if err != nil {
		return err
	}
	trend, err := h.svc.CurrentTrend(c.Request().Context(), deptID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, trend)
}

func (h *Handler) Simulate(c echo.Context) error {
	deptID, err := departmentParam(c)
	if err != nil {
		return err
	}
	var params SimulationParams
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&params); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	fc, err := h.svc.Simulate(c.Request().Context(), deptID, params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, fc)
}

func (h *Handler) Comparison(c echo.Context) error {
	deptID, err := departmentParam(c)
	if err != nil {
		return err
	}
	cmp, err := h.svc.Compare(c.Request().Context(), deptID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cmp)
}
