package finance

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/platform/auth"
	"github.com/carefin/carefin/internal/platform/lock"
	"github.com/carefin/carefin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/finance")

	read := g.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/procedure-costs/:procedure_id", h.GetProcedureCost)
	read.GET("/budgets/over", h.ListOverBudget)
	read.GET("/budgets/at-risk", h.ListAtRisk)
	read.GET("/budgets/:department_id", h.GetBudget)
	read.GET("/ledger/:department_id", h.LedgerHistory)
	read.GET("/ledger/:department_id/by-category", h.CategoryTotals)

	write := g.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/procedure-costs", h.ComputeCost)
	write.POST("/procedure-costs/auto/:procedure_id", h.ComputeCostAutomatic)
	write.POST("/budgets/recompute", h.RecomputeAll)
}

// CostRequest is the body of a manual costing.
type CostRequest struct {
	ProcedureID     string           `json:"procedure_id" validate:"required,uuid"`
	PersonnelCost   *decimal.Decimal `json:"personnel_cost" validate:"omitempty,gte=0"`
	MaterialCost    *decimal.Decimal `json:"material_cost" validate:"omitempty,gte=0"`
	ConsumablesCost *decimal.Decimal `json:"consumables_cost" validate:"omitempty,gte=0"`
}

// HTTPError maps finance and lock errors onto HTTP status codes.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrProcedureNotFound),
		errors.Is(err, ErrDepartmentNotFound),
		errors.Is(err, ErrProcedureCostNotFound),
		errors.Is(err, ErrBudgetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWriteConflict), errors.Is(err, lock.ErrNotObtained):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func optionalDate(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := ParseDate(v)
	if err != nil {
		return nil, HTTPError(err)
	}
	return &t, nil
}

func (h *Handler) ComputeCost(c echo.Context) error {
	var req CostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	procID, err := uuid.Parse(req.ProcedureID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid procedure_id")
	}
	pc, err := h.svc.ComputeCost(c.Request().Context(), CostInput{
		ProcedureID: procID,
		Personnel:   req.PersonnelCost,
		Material:    req.MaterialCost,
		Consumables: req.ConsumablesCost,
	})
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, pc)
}

func (h *Handler) ComputeCostAutomatic(c echo.Context) error {
	procID, err := parseUUIDParam(c, "procedure_id")
	if err != nil {
		return err
	}
	pc, err := h.svc.ComputeCostAutomatic(c.Request().Context(), procID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, pc)
}

func (h *Handler) GetProcedureCost(c echo.Context) error {
	procID, err := parseUUIDParam(c, "procedure_id")
	if err != nil {
		return err
	}
	pc, err := h.svc.GetProcedureCost(c.Request().Context(), procID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pc)
}

func (h *Handler) GetBudget(c echo.Context) error {
	deptID, err := parseUUIDParam(c, "department_id")
	if err != nil {
		return err
	}
	var period time.Time
	if p := c.QueryParam("period"); p != "" {
		if period, err = ParsePeriod(p); err != nil {
			return HTTPError(err)
		}
	}
	rec, err := h.svc.GetBudget(c.Request().Context(), deptID, period)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListOverBudget(c echo.Context) error {
	items, err := h.svc.ListOverBudget(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) ListAtRisk(c echo.Context) error {
	items, err := h.svc.ListAtRisk(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) RecomputeAll(c echo.Context) error {
	summary, err := h.svc.RecomputeAllForCurrentMonth(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) LedgerHistory(c echo.Context) error {
	deptID, err := parseUUIDParam(c, "department_id")
	if err != nil {
		return err
	}
	from, err := optionalDate(c, "from")
	if err != nil {
		return err
	}
	to, err := optionalDate(c, "to")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.LedgerHistory(c.Request().Context(), deptID, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg))
}

func (h *Handler) CategoryTotals(c echo.Context) error {
	deptID, err := parseUUIDParam(c, "department_id")
	if err != nil {
		return err
	}
	from, err := optionalDate(c, "from")
	if err != nil {
		return err
	}
	to, err := optionalDate(c, "to")
	if err != nil {
		return err
	}
	totals, err := h.svc.CategoryTotals(c.Request().Context(), deptID, from, to)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, totals)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
