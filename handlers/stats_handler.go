package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipo-yield-backend/services"
)

type StatsHandler struct {
	Datasets   services.SnapshotProvider
	Statistics *services.StatisticsService
}

func NewStatsHandler(datasets services.SnapshotProvider, statistics *services.StatisticsService) *StatsHandler {
	return &StatsHandler{
		Datasets:   datasets,
		Statistics: statistics,
	}
}

// GetSummary returns the headline statistics and the per-series summaries
func (h *StatsHandler) GetSummary(c *fiber.Ctx) error {
	snapshot := h.Datasets.Snapshot()

	beijingLottery := h.Statistics.BeijingOnlineLottery(snapshot.Records)
	if !c.QueryBool("listings", false) {
		beijingLottery.Listings = nil
	}

	return respondData(c, fiber.Map{
		"overview":        h.Statistics.ComprehensiveStats(snapshot),
		"lottery":         h.Statistics.LotterySummary(snapshot.LotteryStats),
		"beijing_lottery": beijingLottery,
		"pe":              h.Statistics.PESummary(snapshot.PEStats),
		"issuance":        h.Statistics.IssuanceSummary(snapshot.Issuance),
		"weekly_returns":  h.Statistics.WeeklyReturnSummary(snapshot.WeeklyReturns),
		"beijing_returns": h.Statistics.BeijingReturnSummary(snapshot.BeijingReturns),
		"best_board":      h.Statistics.BestBoard(snapshot.SectorReturns),
		"dataset_source":  snapshot.Source,
		"loaded_at":       snapshot.LoadedAt,
	})
}

// GetBoards returns the mean sector return of every board and the best one
func (h *StatsHandler) GetBoards(c *fiber.Ctx) error {
	snapshot := h.Datasets.Snapshot()
	return respondData(c, fiber.Map{
		"boards":     h.Statistics.BoardReturns(snapshot.SectorReturns),
		"best_board": h.Statistics.BestBoard(snapshot.SectorReturns),
	})
}

// GetMonthly returns listing counts per month and board
func (h *StatsHandler) GetMonthly(c *fiber.Ctx) error {
	return respondData(c, h.Statistics.MonthlyBoardCounts(h.Datasets.Snapshot().Records))
}
