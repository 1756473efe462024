package rest

import (
	"context"
	"net/http"

	"budgetPilot/business/decisionloop"
	"budgetPilot/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	AllocatorService interface {
		Arm(ctx context.Context, variantID string) (*domain.BanditArmState, error)
		DebugAllocate(ctx context.Context, parentID string, pool float64, override *domain.ContextVector) ([]domain.DebugAllocation, error)
	}

	TuningStore interface {
		GetTuning(ctx context.Context, accountID string) (domain.AccountTuning, bool, error)
		UpsertTuning(ctx context.Context, t domain.AccountTuning) error
	}

	DecisionReader interface {
		ListDecisions(ctx context.Context, parentID string, limit int) ([]domain.AllocationDecision, error)
	}

	CycleRunner interface {
		RunCycle(ctx context.Context) (decisionloop.CycleReport, error)
	}

	AllocationHandler struct {
		validate  *validator.Validate
		allocator AllocatorService
		tuning    TuningStore
		decisions DecisionReader
		loop      CycleRunner
	}

	PreviewQuery struct {
		ParentID    string  `query:"parent_id" validate:"required"`
		Pool        float64 `query:"pool" validate:"gte=0"`
		TimeOfDay   string  `query:"time_of_day"`
		DeviceClass string  `query:"device_class"`
		AgeBucket   string  `query:"age_bucket"`
		Recency     string  `query:"recency"`
	}
)

func NewAllocationHandler(allocator AllocatorService, tuning TuningStore, decisions DecisionReader, loop CycleRunner) *AllocationHandler {
	return &AllocationHandler{
		validate:  validator.New(),
		allocator: allocator,
		tuning:    tuning,
		decisions: decisions,
		loop:      loop,
	}
}

// GET /api/v1/arms/:variant_id
func (h *AllocationHandler) GetArm(c echo.Context) error {
	arm, err := h.allocator.Arm(c.Request().Context(), c.Param("variant_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(arm))
}

// GET /api/v1/allocations/preview?parent_id=set-1&pool=100
func (h *AllocationHandler) Preview(c echo.Context) error {
	var q PreviewQuery
	if err := c.Bind(&q); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&q); err != nil {
		return badRequest(c, err)
	}

	var override *domain.ContextVector
	if q.TimeOfDay != "" || q.DeviceClass != "" || q.AgeBucket != "" || q.Recency != "" {
		override = &domain.ContextVector{
			TimeOfDay:   q.TimeOfDay,
			DeviceClass: q.DeviceClass,
			AgeBucket:   q.AgeBucket,
			Recency:     q.Recency,
		}
	}

	rows, err := h.allocator.DebugAllocate(c.Request().Context(), q.ParentID, q.Pool, override)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(rows))
}

// GET /api/v1/decisions?parent_id=set-1&limit=20
func (h *AllocationHandler) ListDecisions(c echo.Context) error {
	parentID := c.QueryParam("parent_id")
	if parentID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "parent_id is required"})
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return err
	}

	rows, err := h.decisions.ListDecisions(c.Request().Context(), parentID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(rows))
}

// POST /api/v1/cycles
func (h *AllocationHandler) TriggerCycle(c echo.Context) error {
	report, err := h.loop.RunCycle(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(report))
}

// GET /api/v1/tuning/:account_id
func (h *AllocationHandler) GetTuning(c echo.Context) error {
	t, ok, err := h.tuning.GetTuning(c.Request().Context(), c.Param("account_id"))
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "tuning not found"})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(t))
}

// PUT /api/v1/tuning/:account_id
func (h *AllocationHandler) PutTuning(c echo.Context) error {
	var body domain.AccountTuning
	if err := c.Bind(&body); err != nil {
		return badRequest(c, err)
	}
	body.AccountID = c.Param("account_id")
	if body.AccountID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "account_id is required"})
	}
	if err := h.validate.Struct(&body); err != nil {
		return badRequest(c, err)
	}

	if err := h.tuning.UpsertTuning(c.Request().Context(), body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(echo.Map{"account_id": body.AccountID, "status": "ok"}))
}
