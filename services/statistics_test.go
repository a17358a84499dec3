package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilmodi00/ipo-yield-backend/models"
)

func TestMeanFirstDayReturnSkipsMissing(t *testing.T) {
	stats := NewStatisticsService()
	records := []models.AllotmentRecord{
		record(t, "A", "2025-01-02", models.BoardMainSH, 1, 0.40, 0.001),
		record(t, "B", "2025-01-03", models.BoardMainSH, 1, -0.10, 0.001),
		{SecurityName: "C", FirstDayPriceChange: nil},
		{SecurityName: "D", FirstDayPriceChange: floatPtr(math.NaN())},
	}

	assert.InDelta(t, 0.15, stats.MeanFirstDayReturn(records), 1e-12)
	assert.InDelta(t, 0.5, stats.PositiveReturnRate(records), 1e-12)
}

func TestStatisticsEmptyInputsAreZero(t *testing.T) {
	stats := NewStatisticsService()

	assert.Zero(t, stats.MeanFirstDayReturn(nil))
	assert.Zero(t, stats.PositiveReturnRate(nil))
	assert.Equal(t, LotterySummary{}, stats.LotterySummary(nil))
	assert.Equal(t, PESummary{}, stats.PESummary(nil))
	assert.Equal(t, IssuanceSummary{}, stats.IssuanceSummary(nil))
	assert.Equal(t, WeeklyReturnSummary{}, stats.WeeklyReturnSummary(nil))
	assert.Equal(t, BeijingReturnSummary{}, stats.BeijingReturnSummary(nil))
	assert.Equal(t, models.Board(""), stats.BestBoard(nil).Board)
	assert.Equal(t, ComprehensiveStats{}, stats.ComprehensiveStats(nil))

	monthly := stats.MonthlyBoardCounts(nil)
	assert.Empty(t, monthly.Months)
	assert.Empty(t, monthly.PeakMonth)
}

func TestLotterySummary(t *testing.T) {
	stats := NewStatisticsService()
	rows := []models.LotteryStat{
		{WeekLabel: "W1", LotteryA: floatPtr(0.0004), LotteryB: floatPtr(0.0002), LotteryA2B: floatPtr(2)},
		{WeekLabel: "W2", LotteryA: floatPtr(0.0002), LotteryB: nil, LotteryA2B: nil},
	}

	summary := stats.LotterySummary(rows)
	assert.InDelta(t, 0.03, summary.MeanA, 1e-12)
	assert.InDelta(t, 0.02, summary.MeanB, 1e-12)
	assert.InDelta(t, 2.0, summary.MeanA2B, 1e-12)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 1, summary.RatioRows)
}

func TestBeijingOnlineLotterySortsByDate(t *testing.T) {
	stats := NewStatisticsService()
	late := record(t, "Late", "2025-05-01", models.BoardBeijing, 1, 0.1, 0.001)
	late.OnlineLotteryRate = floatPtr(0.0004)
	early := record(t, "Early", "2025-02-01", models.BoardBeijing, 1, 0.1, 0.001)
	early.OnlineLotteryRate = floatPtr(0.0002)
	missing := record(t, "Missing", "2025-03-01", models.BoardBeijing, 1, 0.1, 0.001)
	other := record(t, "Other", "2025-01-01", models.BoardSciTech, 1, 0.1, 0.001)
	other.OnlineLotteryRate = floatPtr(0.9)

	summary := stats.BeijingOnlineLottery([]models.AllotmentRecord{late, other, missing, early})

	require.Len(t, summary.Listings, 3)
	assert.Equal(t, "Early", summary.Listings[0].SecurityName)
	assert.Equal(t, "2025-02-01", summary.Listings[0].ListingDate)
	assert.Equal(t, "Missing", summary.Listings[1].SecurityName)
	assert.Nil(t, summary.Listings[1].OnlineLotteryRate)
	assert.Equal(t, "Late", summary.Listings[2].SecurityName)
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 0.03, summary.MeanOnlineRate, 1e-12)
}

func TestBestBoard(t *testing.T) {
	stats := NewStatisticsService()
	rows := []models.SectorReturn{
		{PeriodLabel: "P1", Returns: map[models.Board]*float64{
			models.BoardMainSH:  floatPtr(-0.2),
			models.BoardSciTech: floatPtr(1.5),
			models.BoardChiNext: floatPtr(1.0),
		}},
		{PeriodLabel: "P2", Returns: map[models.Board]*float64{
			models.BoardMainSH:  floatPtr(-0.4),
			models.BoardSciTech: nil,
			models.BoardChiNext: floatPtr(2.0),
		}},
	}

	best := stats.BestBoard(rows)
	assert.Equal(t, models.BoardSciTech, best.Board)
	assert.Equal(t, "科创板", best.Label)
	assert.InDelta(t, 1.5, best.MeanReturn, 1e-12)
	assert.Equal(t, 1, best.Periods)

	boards := stats.BoardReturns(rows)
	require.Len(t, boards, len(models.AllBoards))
	assert.Zero(t, boards[1].Periods)
}

func TestBestBoardTieKeepsEarlierBoard(t *testing.T) {
	stats := NewStatisticsService()
	rows := []models.SectorReturn{
		{Returns: map[models.Board]*float64{
			models.BoardBeijing: floatPtr(0.5),
			models.BoardMainSZ:  floatPtr(0.5),
		}},
	}

	assert.Equal(t, models.BoardMainSZ, stats.BestBoard(rows).Board)
}

func TestBestBoardNegativeReturns(t *testing.T) {
	stats := NewStatisticsService()
	rows := []models.SectorReturn{
		{Returns: map[models.Board]*float64{models.BoardChiNext: floatPtr(-0.3)}},
	}

	best := stats.BestBoard(rows)
	assert.Equal(t, models.BoardChiNext, best.Board)
	assert.InDelta(t, -0.3, best.MeanReturn, 1e-12)
}

func TestSeriesSummaries(t *testing.T) {
	stats := NewStatisticsService()

	pe := stats.PESummary([]models.PEStat{
		{IssuePE: floatPtr(20), IndustryPE: floatPtr(30)},
		{IssuePE: floatPtr(40), IndustryPE: nil},
	})
	assert.InDelta(t, 30.0, pe.MeanIssuePE, 1e-12)
	assert.InDelta(t, 30.0, pe.MeanIndustryPE, 1e-12)

	issuance := stats.IssuanceSummary([]models.IssuanceStat{
		{StockCount: floatPtr(3), TotalRaisedFund: floatPtr(12.5)},
		{StockCount: floatPtr(2), TotalRaisedFund: nil},
	})
	assert.InDelta(t, 5.0, issuance.TotalStockCount, 1e-12)
	assert.InDelta(t, 12.5, issuance.TotalRaisedFund, 1e-12)
	assert.Equal(t, 2, issuance.Weeks)

	weekly := stats.WeeklyReturnSummary([]models.WeeklyReturn{
		{AnnualizedReturn: floatPtr(-0.01)},
		{AnnualizedReturn: floatPtr(-0.03)},
		{AnnualizedReturn: nil},
	})
	assert.InDelta(t, -0.02, weekly.Mean, 1e-12)
	assert.InDelta(t, -0.01, weekly.Max, 1e-12)
	assert.Equal(t, 2, weekly.Weeks)

	beijing := stats.BeijingReturnSummary([]models.BeijingMonthlyReturn{
		{AnnualizedReturn: floatPtr(0.02)},
		{AnnualizedReturn: floatPtr(0.04)},
	})
	assert.InDelta(t, 0.03, beijing.Mean, 1e-12)
	assert.InDelta(t, 0.06, beijing.Total, 1e-12)
}

func TestMonthlyBoardCounts(t *testing.T) {
	stats := NewStatisticsService()
	records := []models.AllotmentRecord{
		record(t, "A", "2025-03-05", models.BoardSciTech, 1, 0.1, 0.001),
		record(t, "B", "2025-01-10", models.BoardMainSH, 1, 0.1, 0.001),
		record(t, "C", "2025-01-20", models.BoardMainSH, 1, 0.1, 0.001),
		record(t, "D", "2025-03-21", models.BoardChiNext, 1, 0.1, 0.001),
		record(t, "E", "2025-02-11", models.Board("Unlisted"), 1, 0.1, 0.001),
	}

	monthly := stats.MonthlyBoardCounts(records)

	require.Len(t, monthly.Months, 3)
	assert.Equal(t, "2025-01", monthly.Months[0].Month)
	assert.Equal(t, 2, monthly.Months[0].Counts[models.BoardMainSH])
	assert.Equal(t, "2025-02", monthly.Months[1].Month)
	assert.Zero(t, monthly.Months[1].Total)
	assert.Equal(t, 2, monthly.Months[2].Total)

	// January and March tie; the earlier month wins
	assert.Equal(t, "2025-01", monthly.PeakMonth)
	assert.Equal(t, 2, monthly.PeakCount)
}

func TestComprehensiveStats(t *testing.T) {
	stats := NewStatisticsService()
	first := record(t, "A", "2025-01-02", models.BoardMainSH, 1, 0.30, 0.001)
	first.ActualRaisedFund = floatPtr(10.5)
	first.IssuePE = floatPtr(20)
	second := record(t, "B", "2025-01-03", models.BoardSciTech, 1, -0.10, 0.001)
	second.IssuePE = floatPtr(0)
	third := models.AllotmentRecord{SecurityName: "C", ActualRaisedFund: floatPtr(4.5), IssuePE: floatPtr(40)}

	dataset := &models.Dataset{
		Records: []models.AllotmentRecord{first, second, third},
		LotteryStats: []models.LotteryStat{
			{LotteryA: floatPtr(0.0004), LotteryB: floatPtr(0.0002)},
			{LotteryA: floatPtr(0.0006), LotteryB: nil},
		},
	}

	summary := stats.ComprehensiveStats(dataset)
	assert.Equal(t, 3, summary.TotalCount)
	assert.InDelta(t, 15.0, summary.TotalRaised, 1e-12)
	assert.InDelta(t, 0.10, summary.MeanFirstDayReturn, 1e-12)
	assert.InDelta(t, 50.0, summary.SuccessRate, 1e-12)
	assert.InDelta(t, 30.0, summary.MeanIssuePE, 1e-12)
	assert.InDelta(t, 0.03, summary.MeanLotteryRate, 1e-12)
}
