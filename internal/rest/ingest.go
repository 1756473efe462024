package rest

import (
	"context"
	"net/http"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	"budgetPilot/pkg/metrics"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	MetricsWriter interface {
		InsertBatch(ctx context.Context, b *domain.MetricBatch) error
		InsertRevenue(ctx context.Context, ev *domain.RevenueEvent) error
	}

	VariantWriter interface {
		UpsertVariant(ctx context.Context, v domain.Variant) error
		GetVariant(ctx context.Context, id string) (*domain.Variant, error)
		ListByParent(ctx context.Context, parentID string) ([]domain.Variant, error)
	}

	// BatchMirror receives a copy of every accepted batch, e.g. a time-series store.
	BatchMirror interface {
		WriteBatch(ctx context.Context, b domain.MetricBatch) error
	}

	IngestHandler struct {
		validate *validator.Validate
		metrics  MetricsWriter
		variants VariantWriter
		mirror   BatchMirror
		now      func() time.Time
	}

	BatchesRequest struct {
		Batches []domain.MetricBatch `json:"batches" validate:"required,min=1,max=1000,dive"`
	}

	RevenueRequest struct {
		VariantID       string     `json:"variant_id" validate:"required"`
		RealizedRevenue float64    `json:"realized_revenue" validate:"gte=0"`
		ObservedAt      *time.Time `json:"observed_at"`
	}

	VariantRequest struct {
		ID            string    `json:"id" validate:"required,max=128"`
		AccountID     string    `json:"account_id" validate:"required"`
		ParentID      string    `json:"parent_id" validate:"required"`
		EntityType    string    `json:"entity_type" validate:"omitempty,oneof=ad adset campaign"`
		Features      []float64 `json:"features"`
		CurrentBudget float64   `json:"current_budget" validate:"gte=0"`
		AudienceSize  int64     `json:"audience_size" validate:"gte=0"`
		DeviceClass   string    `json:"device_class"`
		AudienceAge   string    `json:"audience_age"`
		Status        string    `json:"status" validate:"omitempty,oneof=active paused archived"`
	}
)

// NewIngestHandler builds the ingestion endpoints; mirror may be nil.
func NewIngestHandler(metricsWriter MetricsWriter, variants VariantWriter, mirror BatchMirror) *IngestHandler {
	return &IngestHandler{
		validate: validator.New(),
		metrics:  metricsWriter,
		variants: variants,
		mirror:   mirror,
		now:      time.Now,
	}
}

// POST /api/v1/metrics/batches
func (h *IngestHandler) PostBatches(c echo.Context) error {
	var req BatchesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	ctx := c.Request().Context()
	for i := range req.Batches {
		b := req.Batches[i]
		b.ID, b.ProcessedAt = 0, nil
		b.BucketStart = b.BucketStart.UTC()
		if err := h.metrics.InsertBatch(ctx, &b); err != nil {
			return err
		}
		if h.mirror != nil {
			if err := h.mirror.WriteBatch(ctx, b); err != nil {
				logger.Warn("batch_mirror_failed",
					"trace_id", pkgotel.TraceIDFromContext(ctx),
					"variant_id", b.VariantID,
					"error", err,
				)
			}
		}
	}
	metrics.IngestedTotal.WithLabelValues("batch").Add(float64(len(req.Batches)))

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK(echo.Map{"accepted": len(req.Batches)}))
}

// POST /api/v1/metrics/revenue
func (h *IngestHandler) PostRevenue(c echo.Context) error {
	var req RevenueRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	ev := domain.RevenueEvent{
		VariantID:       req.VariantID,
		RealizedRevenue: req.RealizedRevenue,
		ObservedAt:      h.now().UTC(),
	}
	if req.ObservedAt != nil {
		ev.ObservedAt = req.ObservedAt.UTC()
	}
	if err := h.metrics.InsertRevenue(c.Request().Context(), &ev); err != nil {
		return err
	}
	metrics.IngestedTotal.WithLabelValues("revenue").Inc()

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK(ev))
}

// PUT /api/v1/variants
func (h *IngestHandler) UpsertVariant(c echo.Context) error {
	var req VariantRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	v := domain.Variant{
		ID:            req.ID,
		AccountID:     req.AccountID,
		ParentID:      req.ParentID,
		EntityType:    req.EntityType,
		Features:      req.Features,
		CurrentBudget: req.CurrentBudget,
		AudienceSize:  req.AudienceSize,
		DeviceClass:   req.DeviceClass,
		AudienceAge:   req.AudienceAge,
		Status:        req.Status,
	}
	ctx := c.Request().Context()
	if err := h.variants.UpsertVariant(ctx, v); err != nil {
		return err
	}
	saved, err := h.variants.GetVariant(ctx, v.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(saved))
}

// GET /api/v1/variants?parent_id=...
func (h *IngestHandler) ListVariants(c echo.Context) error {
	parentID := c.QueryParam("parent_id")
	if parentID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "parent_id is required"})
	}
	vs, err := h.variants.ListByParent(c.Request().Context(), parentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(vs))
}
