package handlers

import (
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/services"
)

type PerformanceHandler struct {
	DB           *sql.DB
	Estimation   *services.EstimationService
	Datasets     *services.DatasetService
	CachedSource *services.CachedDatasetSource
}

func NewPerformanceHandler(db *sql.DB, estimation *services.EstimationService, datasets *services.DatasetService, cachedSource *services.CachedDatasetSource) *PerformanceHandler {
	return &PerformanceHandler{
		DB:           db,
		Estimation:   estimation,
		Datasets:     datasets,
		CachedSource: cachedSource,
	}
}

// GetPerformanceMetrics returns service, cache and connection pool metrics
func (h *PerformanceHandler) GetPerformanceMetrics(c *fiber.Ctx) error {
	metrics := map[string]interface{}{
		"estimation": h.Estimation.GetServiceMetrics().Snapshot(),
		"dataset":    h.Datasets.GetServiceMetrics().Snapshot(),
	}

	if h.CachedSource != nil {
		metrics["cache_stats"] = h.CachedSource.GetCacheStats()
	}

	if h.DB != nil {
		dbStats := h.DB.Stats()
		metrics["database_stats"] = map[string]interface{}{
			"open_connections":     dbStats.OpenConnections,
			"in_use":               dbStats.InUse,
			"idle":                 dbStats.Idle,
			"wait_count":           dbStats.WaitCount,
			"wait_duration_ms":     dbStats.WaitDuration.Milliseconds(),
			"max_idle_closed":      dbStats.MaxIdleClosed,
			"max_idle_time_closed": dbStats.MaxIdleTimeClosed,
			"max_lifetime_closed":  dbStats.MaxLifetimeClosed,
		}
	}

	return respondData(c, metrics)
}

// RunPerformanceTest times repeated estimates of the default request against
// the current snapshot
func (h *PerformanceHandler) RunPerformanceTest(c *fiber.Ctx) error {
	iterations := c.QueryInt("iterations", 100)
	if iterations <= 0 || iterations > 10000 {
		return respondError(c, invalidRequest("RunPerformanceTest", "iterations must be between 1 and 10000", iterations))
	}

	defaults := h.Estimation.Defaults()
	start, end, err := defaults.WindowBounds()
	if err != nil {
		return respondError(c, err)
	}
	request := models.EstimationRequest{
		AUM:          500_000_000,
		RiskFreeRate: defaults.DefaultRiskFreeRate,
		WindowStart:  start,
		WindowEnd:    end,
	}

	records := h.Datasets.Snapshot().Records
	var totalDuration time.Duration
	for i := 0; i < iterations; i++ {
		began := time.Now()
		if _, err := services.Estimate(records, request); err != nil {
			return respondError(c, err)
		}
		totalDuration += time.Since(began)
	}

	avgDuration := totalDuration / time.Duration(iterations)
	results := map[string]interface{}{
		"iterations":        iterations,
		"records":           len(records),
		"total_duration_us": totalDuration.Microseconds(),
		"avg_duration_us":   avgDuration.Microseconds(),
	}
	if totalDuration > 0 {
		results["estimates_per_sec"] = float64(iterations) / totalDuration.Seconds()
	}
	return respondData(c, results)
}

// ClearCache drops the cached dataset so the next refresh reads the source
func (h *PerformanceHandler) ClearCache(c *fiber.Ctx) error {
	if h.CachedSource == nil {
		return c.JSON(fiber.Map{
			"success": false,
			"message": "Cache service not available",
		})
	}

	h.CachedSource.Invalidate()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared successfully",
	})
}
