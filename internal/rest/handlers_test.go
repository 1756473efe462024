//go:build !integration

package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetPilot/business/changequeue"
	"budgetPilot/business/patterns"
	"budgetPilot/domain"
	"budgetPilot/internal/middleware"
	"budgetPilot/internal/repository/memory"
	"budgetPilot/internal/rest"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiHarness struct {
	e        *echo.Echo
	changes  *changequeue.Service
	metrics  *memory.MetricsRepository
	variants *memory.VariantRepository
	index    *patterns.Index
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()

	cfg := changequeue.DefaultConfig()
	h := &apiHarness{
		e:        echo.New(),
		changes:  changequeue.NewService(memory.NewChangeStore(), cfg),
		metrics:  memory.NewMetricsRepository(),
		variants: memory.NewVariantRepository(),
	}
	var err error
	h.index, err = patterns.NewIndex(memory.NewVectorLog(), 16)
	require.NoError(t, err)

	h.e.HTTPErrorHandler = middleware.ErrorHandler
	h.e.Use(middleware.Trace())

	api := h.e.Group("/api/v1")
	ch := rest.NewChangeHandler(h.changes)
	api.POST("/changes", ch.Enqueue)
	api.GET("/changes", ch.List)
	api.GET("/changes/stats", ch.Stats)
	api.GET("/changes/:id", ch.Get)
	api.POST("/changes/:id/cancel", ch.Cancel)
	api.POST("/changes/:id/requeue", ch.Requeue)

	ih := rest.NewIngestHandler(h.metrics, h.variants, nil)
	api.POST("/metrics/batches", ih.PostBatches)
	api.POST("/metrics/revenue", ih.PostRevenue)
	api.PUT("/variants", ih.UpsertVariant)
	api.GET("/variants", ih.ListVariants)

	ph := rest.NewPatternHandler(h.index)
	api.POST("/patterns", ph.Add)
	api.POST("/patterns/similar", ph.Similar)
	return h
}

func (h *apiHarness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

const budgetBody = `{"entity_id":"ad-1","entity_type":"ad","change_kind":"budget","requested_value":"25.00"}`

func TestChanges_EnqueueAndBusyConflict(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodPost, "/api/v1/changes", budgetBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"entity_id":"ad-1"`)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	rec = h.do(http.MethodPost, "/api/v1/changes", budgetBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "in flight")
}

func TestChanges_RejectsInvalidRequest(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodPost, "/api/v1/changes", `{"entity_id":"ad-1","entity_type":"creative","change_kind":"budget","requested_value":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChanges_GetUnknownIsNotFound(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodGet, "/api/v1/changes/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["trace_id"])
}

func TestChanges_CancelOnlyOnce(t *testing.T) {
	h := newAPI(t)

	change, err := h.changes.Enqueue(context.Background(), domain.ChangeRequest{
		EntityID: "ad-2", EntityType: "ad", ChangeKind: "status", RequestedValue: domain.StatusValuePaused,
	})
	require.NoError(t, err)

	rec := h.do(http.MethodPost, "/api/v1/changes/"+change.ID+"/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/changes/"+change.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/changes/"+change.ID+"/requeue", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/changes?status=cancelled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), change.ID)

	rec = h.do(http.MethodGet, "/api/v1/changes/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancelled":1`)
}

func TestChanges_ListRejectsUnknownStatus(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodGet, "/api/v1/changes?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_BatchesAndRevenue(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodPost, "/api/v1/metrics/batches", `{"batches":[
		{"variant_id":"ad-1","bucket_start":"2025-03-10T08:00:00Z","impressions":1000,"clicks":40,"spend":12.5,"conversions":2},
		{"variant_id":"ad-2","bucket_start":"2025-03-10T08:00:00Z","impressions":800,"clicks":10,"spend":9}
	]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	pending, err := h.metrics.UnprocessedBatches(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	rec = h.do(http.MethodPost, "/api/v1/metrics/revenue", `{"variant_id":"ad-1","realized_revenue":30}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	revenue, err := h.metrics.UnprocessedRevenue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, revenue, 1)
	assert.Equal(t, 30.0, revenue[0].RealizedRevenue)
	assert.False(t, revenue[0].ObservedAt.IsZero())
}

func TestIngest_RejectsNegativeCounts(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodPost, "/api/v1/metrics/batches", `{"batches":[
		{"variant_id":"ad-1","bucket_start":"2025-03-10T08:00:00Z","impressions":-5}
	]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/metrics/batches", `{"batches":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVariants_UpsertAndList(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodPut, "/api/v1/variants", `{"id":"ad-1","account_id":"acct","parent_id":"set-1","current_budget":50,"features":[0.1,0.2]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	v, err := h.variants.GetVariant(context.Background(), "ad-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.VariantActive, v.Status)
	assert.Equal(t, 50.0, v.CurrentBudget)

	rec = h.do(http.MethodGet, "/api/v1/variants?parent_id=set-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"ad-1"`)

	rec = h.do(http.MethodGet, "/api/v1/variants", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatterns_AddAndSimilar(t *testing.T) {
	h := newAPI(t)

	rec := h.do(http.MethodPost, "/api/v1/patterns", `{"vector":[1,0,0],"label":"winner","metadata":{"account_id":"acct"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = h.do(http.MethodPost, "/api/v1/patterns", `{"vector":[0,1,0],"label":"loser","metadata":{"account_id":"other"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/patterns/similar", `{"vector":[0.9,0.1,0],"k":1,"account_id":"acct"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome_label":"winner"`)
	assert.NotContains(t, rec.Body.String(), `"loser"`)

	rec = h.do(http.MethodPost, "/api/v1/patterns", `{"vector":[1,0],"label":"winner"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
