package alert

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/platform/auth"
	"github.com/carefin/carefin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/alerts")

	read := g.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("", h.ListActive)
	read.GET("/critical", h.ListCritical)
	read.GET("/summary", h.Summary)
	read.GET("/department/:department_id", h.ListForDepartment)

	write := g.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("", h.Create)
	write.POST("/:id/resolve", h.Resolve)
	write.POST("/signals/cost-anomaly", h.CostAnomaly)
	write.POST("/signals/variation", h.Variation)
}

type CreateRequest struct {
	Type         string `json:"type" validate:"required"`
	DepartmentID string `json:"department_id" validate:"omitempty,uuid"`
	Message      string `json:"message" validate:"required"`
	Severity     string `json:"severity"`
}

type CostAnomalyRequest struct {
	DepartmentID string          `json:"department_id" validate:"required,uuid"`
	Cost         decimal.Decimal `json:"cost" validate:"gte=0"`
	RollingMean  decimal.Decimal `json:"rolling_mean"`
}

type VariationRequest struct {
	DepartmentID string   `json:"department_id" validate:"required,uuid"`
	VariationPct *float64 `json:"variation_pct" validate:"required"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrAlertNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidAlert):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Validate(req)
}

func emptyIfNil(items []*Alert) []*Alert {
	if items == nil {
		return []*Alert{}
	}
	return items
}

func (h *Handler) ListActive(c echo.Context) error {
	items, err := h.svc.ListActive(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, emptyIfNil(items))
}

func (h *Handler) ListCritical(c echo.Context) error {
	items, err := h.svc.ListCritical(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, emptyIfNil(items))
}

func (h *Handler) Summary(c echo.Context) error {
	counts, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) ListForDepartment(c echo.Context) error {
	deptID, err := uuid.Parse(c.Param("department_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
	}
	activeOnly := false
	if v := c.QueryParam("active"); v != "" {
		if activeOnly, err = strconv.ParseBool(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid active flag")
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDepartment(c.Request().Context(), deptID, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(emptyIfNil(items), total, pg))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	in := CreateInput{Type: req.Type, Message: req.Message, Severity: req.Severity}
	if req.DepartmentID != "" {
		id, err := uuid.Parse(req.DepartmentID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
		}
		in.DepartmentID = &id
	}
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Resolve(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CostAnomaly(c echo.Context) error {
	var req CostAnomalyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	deptID, err := uuid.Parse(req.DepartmentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
	}
	res, err := h.svc.DetectCostAnomaly(c.Request().Context(), deptID, req.Cost, req.RollingMean)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(signalStatus(res), res)
}

func (h *Handler) Variation(c echo.Context) error {
	var req VariationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	deptID, err := uuid.Parse(req.DepartmentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
	}
	res, err := h.svc.DetectAbnormalVariation(c.Request().Context(), deptID, *req.VariationPct)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(signalStatus(res), res)
}

func signalStatus(res *SignalResult) int {
	if res.Raised {
		return http.StatusCreated
	}
	return http.StatusOK
}
