package rest

import (
	"context"
	"net/http"

	"budgetPilot/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type PatternIndex interface {
	Add(ctx context.Context, vector []float64, label string, metadata map[string]any) (domain.PatternEntry, error)
	FindSimilar(query []float64, k int) ([]domain.PatternMatch, error)
	FindSimilarInAccount(accountID string, query []float64, k int) ([]domain.PatternMatch, error)
	Persist(ctx context.Context) error
}

type PatternHandler struct {
	validate *validator.Validate
	index    PatternIndex
}

type AddPatternRequest struct {
	Vector   []float64      `json:"vector" validate:"required,min=1"`
	Label    string         `json:"label" validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

type SimilarRequest struct {
	Vector    []float64 `json:"vector" validate:"required,min=1"`
	K         int       `json:"k" validate:"gte=0,lte=100"`
	AccountID string    `json:"account_id"`
}

func NewPatternHandler(index PatternIndex) *PatternHandler {
	return &PatternHandler{
		validate: validator.New(),
		index:    index,
	}
}

// POST /api/v1/patterns
func (h *PatternHandler) Add(c echo.Context) error {
	var req AddPatternRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	ctx := c.Request().Context()
	entry, err := h.index.Add(ctx, req.Vector, req.Label, req.Metadata)
	if err != nil {
		return err
	}
	if err := h.index.Persist(ctx); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(entry))
}

// POST /api/v1/patterns/similar
func (h *PatternHandler) Similar(c echo.Context) error {
	var req SimilarRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}
	if req.K == 0 {
		req.K = 5
	}

	var (
		matches []domain.PatternMatch
		err     error
	)
	if req.AccountID != "" {
		matches, err = h.index.FindSimilarInAccount(req.AccountID, req.Vector, req.K)
	} else {
		matches, err = h.index.FindSimilar(req.Vector, req.K)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(matches))
}
