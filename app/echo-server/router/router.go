package router

import (
	"net/http"

	"budgetPilot/internal/rest"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetOpsRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
}

func SetIngestRoutes(api *echo.Group, handler *rest.IngestHandler) {
	m := api.Group("/metrics")
	m.POST("/batches", handler.PostBatches)
	m.POST("/revenue", handler.PostRevenue)

	v := api.Group("/variants")
	v.GET("", handler.ListVariants)
	v.PUT("", handler.UpsertVariant)
}

func SetChangeRoutes(api *echo.Group, handler *rest.ChangeHandler) {
	changes := api.Group("/changes")
	changes.POST("", handler.Enqueue)
	changes.GET("", handler.List)
	changes.GET("/stats", handler.Stats)
	changes.GET("/:id", handler.Get)
	changes.POST("/:id/cancel", handler.Cancel)
	changes.POST("/:id/requeue", handler.Requeue)
}

func SetAllocationRoutes(api *echo.Group, handler *rest.AllocationHandler) {
	api.GET("/arms/:variant_id", handler.GetArm)
	api.GET("/allocations/preview", handler.Preview)
	api.GET("/decisions", handler.ListDecisions)
	api.POST("/cycles", handler.TriggerCycle)

	tuning := api.Group("/tuning")
	tuning.GET("/:account_id", handler.GetTuning)
	tuning.PUT("/:account_id", handler.PutTuning)
}

func SetPatternRoutes(api *echo.Group, handler *rest.PatternHandler) {
	p := api.Group("/patterns")
	p.POST("", handler.Add)
	p.POST("/similar", handler.Similar)
}
