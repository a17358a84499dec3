package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Routes groups the handlers mounted on the API
type Routes struct {
	Estimate    *EstimateHandler
	Stats       *StatsHandler
	Admin       *AdminHandler
	Performance *PerformanceHandler
	Metrics     fiber.Handler
}

// Register mounts every route on app
func (r *Routes) Register(app *fiber.App) {
	app.Get("/health", r.Admin.Health)
	if r.Metrics != nil {
		app.Get("/metrics", r.Metrics)
	}

	api := app.Group("/api/v1")

	// Estimation Routes
	api.Post("/estimate", r.Estimate.Estimate)
	api.Post("/estimate/batch", r.Estimate.EstimateBatch)
	api.Get("/recommendation", r.Estimate.Recommendation)

	// Statistics Routes
	api.Get("/stats/summary", r.Stats.GetSummary)
	api.Get("/stats/boards", r.Stats.GetBoards)
	api.Get("/stats/monthly", r.Stats.GetMonthly)

	api.Get("/dataset", r.Admin.GetDataset)

	// Admin Routes
	admin := api.Group("/admin", r.Admin.RequireToken)
	admin.Post("/dataset/refresh", r.Admin.RefreshDataset)
	admin.Post("/dataset/import", r.Admin.ImportDataset)

	// Performance Routes
	if r.Performance != nil {
		perf := admin.Group("/performance")
		perf.Get("/metrics", r.Performance.GetPerformanceMetrics)
		perf.Post("/test", r.Performance.RunPerformanceTest)
		perf.Delete("/cache", r.Performance.ClearCache)
	}
}
