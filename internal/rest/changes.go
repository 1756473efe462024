package rest

import (
	"context"
	"net/http"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ChangeService interface {
	Enqueue(ctx context.Context, req domain.ChangeRequest) (domain.PendingChange, error)
	Get(ctx context.Context, id string) (*domain.PendingChange, error)
	List(ctx context.Context, f changequeue.ListFilter) ([]domain.PendingChange, error)
	Cancel(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
	Stats(ctx context.Context) (map[domain.ChangeStatus]int64, error)
}

type ChangeHandler struct {
	validate *validator.Validate
	changes  ChangeService
}

type ListChangesQuery struct {
	Status   string `query:"status" validate:"omitempty,oneof=pending claimed executing completed failed cancelled"`
	EntityID string `query:"entity_id"`
	Limit    int    `query:"limit" validate:"gte=0,lte=1000"`
}

func NewChangeHandler(changes ChangeService) *ChangeHandler {
	return &ChangeHandler{
		validate: validator.New(),
		changes:  changes,
	}
}

// POST /api/v1/changes
func (h *ChangeHandler) Enqueue(c echo.Context) error {
	var req domain.ChangeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	change, err := h.changes.Enqueue(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(change))
}

// GET /api/v1/changes?status=failed&entity_id=...&limit=50
func (h *ChangeHandler) List(c echo.Context) error {
	var q ListChangesQuery
	if err := c.Bind(&q); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&q); err != nil {
		return badRequest(c, err)
	}
	if q.Limit == 0 {
		q.Limit = 100
	}

	list, err := h.changes.List(c.Request().Context(), changequeue.ListFilter{
		Status:   domain.ChangeStatus(q.Status),
		EntityID: q.EntityID,
		Limit:    q.Limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(list))
}

// GET /api/v1/changes/:id
func (h *ChangeHandler) Get(c echo.Context) error {
	change, err := h.changes.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(change))
}

// POST /api/v1/changes/:id/cancel
func (h *ChangeHandler) Cancel(c echo.Context) error {
	if err := h.changes.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(echo.Map{"id": c.Param("id"), "status": domain.ChangeCancelled}))
}

// POST /api/v1/changes/:id/requeue
func (h *ChangeHandler) Requeue(c echo.Context) error {
	if err := h.changes.Requeue(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(echo.Map{"id": c.Param("id"), "status": domain.ChangePending}))
}

// GET /api/v1/changes/stats
func (h *ChangeHandler) Stats(c echo.Context) error {
	stats, err := h.changes.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(stats))
}
