package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

func floatPtr(v float64) *float64 {
	return &v
}

func date(t *testing.T, text string) time.Time {
	t.Helper()
	parsed, err := time.Parse(shared.DateLayout, text)
	require.NoError(t, err)
	return parsed
}

func record(t *testing.T, name, listed string, board models.Board, maxBuy, change, lotteryB float64) models.AllotmentRecord {
	t.Helper()
	return models.AllotmentRecord{
		SecurityName:        name,
		ListingDate:         date(t, listed),
		Board:               board,
		OfflineMaxBuyAmount: floatPtr(maxBuy),
		FirstDayPriceChange: floatPtr(change),
		OfflineLotteryRateB: floatPtr(lotteryB),
	}
}

func TestWindowDaysDefaultWindow(t *testing.T) {
	assert.Equal(t, 201, WindowDays(date(t, "2025-01-01"), date(t, "2025-07-21")))
}

func TestIdleCashYieldBoundary(t *testing.T) {
	assert.InDelta(t, 0.011312, IdleCashYield(500_000_000, 0.014), 1e-12)
}

func TestIdleCashYieldNegativeBelowReserve(t *testing.T) {
	yield := IdleCashYield(48_000_000, 0.014)
	assert.InDelta(t, -0.014, yield, 1e-12)
}

func TestRecordContributionSingleRecord(t *testing.T) {
	rec := record(t, "A", "2025-03-01", models.BoardSciTech, 1_000_000, 0.20, 0.0003)

	contribution, ok := RecordContribution(10_000_000, &rec)
	require.True(t, ok)
	assert.InDelta(t, 60.0, contribution, 1e-9)
}

func TestRecordContributionMissingInput(t *testing.T) {
	rec := record(t, "A", "2025-03-01", models.BoardSciTech, 1_000_000, 0.20, 0.0003)
	rec.FirstDayPriceChange = nil

	contribution, ok := RecordContribution(10_000_000, &rec)
	assert.False(t, ok)
	assert.Zero(t, contribution)
}

func TestEstimateDefaultScenario(t *testing.T) {
	records := []models.AllotmentRecord{
		record(t, "A", "2025-03-01", models.BoardSciTech, 1_000_000, 0.20, 0.0003),
		record(t, "B", "2024-12-31", models.BoardMainSH, 1_000_000, 0.50, 0.0005),
		record(t, "C", "2025-07-21", models.BoardChiNext, 600_000_000, 1.00, 0.0001),
	}
	request := models.EstimationRequest{
		AUM:          500_000_000,
		RiskFreeRate: 0.014,
		WindowStart:  date(t, "2025-01-01"),
		WindowEnd:    date(t, "2025-07-21"),
	}

	result, err := Estimate(records, request)
	require.NoError(t, err)

	// B falls outside the window; C is capped at aum
	expectedGain := 60.0 + 500_000_000*1.00*0.0001
	assert.Equal(t, 2, result.MatchedRecordCount)
	assert.InDelta(t, expectedGain, result.TotalSubscriptionGain, 1e-6)
	assert.Equal(t, 201, result.WindowDays)
	assert.InDelta(t, 365.0/201.0*expectedGain/500_000_000, result.IPOYield, 1e-15)
	assert.InDelta(t, 0.011312, result.IdleCashYield, 1e-12)
	assert.Equal(t, result.IPOYield+result.IdleCashYield, result.TotalYield)
}

func TestEstimateBoardFilterRecomputes(t *testing.T) {
	records := []models.AllotmentRecord{
		record(t, "A", "2025-03-01", models.BoardSciTech, 1_000_000, 0.20, 0.0003),
		record(t, "B", "2025-03-02", models.BoardMainSH, 2_000_000, 0.50, 0.0005),
	}
	request := models.EstimationRequest{
		AUM:          10_000_000,
		RiskFreeRate: 0.014,
		Boards:       []models.Board{models.BoardSciTech},
		WindowStart:  date(t, "2025-01-01"),
		WindowEnd:    date(t, "2025-07-21"),
	}

	result, err := Estimate(records, request)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchedRecordCount)
	assert.InDelta(t, 60.0, result.TotalSubscriptionGain, 1e-9)
}

func TestEstimateUnknownBoardMatchesNothing(t *testing.T) {
	records := []models.AllotmentRecord{
		record(t, "A", "2025-03-01", models.BoardSciTech, 1_000_000, 0.20, 0.0003),
	}
	request := models.EstimationRequest{
		AUM:         10_000_000,
		Boards:      []models.Board{models.Board("Nasdaq")},
		WindowStart: date(t, "2025-01-01"),
		WindowEnd:   date(t, "2025-07-21"),
	}

	result, err := Estimate(records, request)
	require.NoError(t, err)
	assert.Zero(t, result.MatchedRecordCount)
	assert.Zero(t, result.IPOYield)
}

func TestEstimateEmptyDataset(t *testing.T) {
	request := models.EstimationRequest{
		AUM:          500_000_000,
		RiskFreeRate: 0.014,
		WindowStart:  date(t, "2025-01-01"),
		WindowEnd:    date(t, "2025-07-21"),
	}

	result, err := Estimate(nil, request)
	require.NoError(t, err)
	assert.Zero(t, result.IPOYield)
	assert.Zero(t, result.MatchedRecordCount)
	assert.Equal(t, result.IdleCashYield, result.TotalYield)
}

func TestEstimateInvalidCapital(t *testing.T) {
	for _, aum := range []float64{0, -1, math.NaN()} {
		request := models.EstimationRequest{
			AUM:         aum,
			WindowStart: date(t, "2025-01-01"),
			WindowEnd:   date(t, "2025-07-21"),
		}

		_, err := Estimate(nil, request)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidCapital), "aum=%v", aum)

		serviceErr, ok := shared.AsServiceError(err)
		require.True(t, ok)
		assert.Equal(t, shared.CodeInvalidCapital, serviceErr.Code)
		assert.Equal(t, shared.ErrorCategoryValidation, serviceErr.GetCategory())
	}
}

func TestEstimateInvalidWindow(t *testing.T) {
	cases := map[string][2]string{
		"end before start": {"2025-07-21", "2025-01-01"},
		"same day":         {"2025-03-01", "2025-03-01"},
	}

	for name, window := range cases {
		t.Run(name, func(t *testing.T) {
			request := models.EstimationRequest{
				AUM:         10_000_000,
				WindowStart: date(t, window[0]),
				WindowEnd:   date(t, window[1]),
			}

			_, err := Estimate(nil, request)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrInvalidWindow))
		})
	}
}

func TestAllocationBuckets(t *testing.T) {
	cases := []struct {
		excess   float64
		expected int
	}{
		{-1, AllocationNone},
		{0, AllocationNone},
		{0.01, AllocationLight},
		{2.999, AllocationLight},
		{3.0, AllocationModerate},
		{5.999, AllocationModerate},
		{6.0, AllocationHeavy},
		{9.99, AllocationHeavy},
		{10.0, AllocationMaximum},
		{42, AllocationMaximum},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, AllocationForExcess(tc.excess), "excess=%v", tc.excess)
	}
}

func TestAllocationForNaNRecommendsNothing(t *testing.T) {
	assert.Equal(t, AllocationNone, AllocationForExcess(math.NaN()))
	assert.Equal(t, AllocationNone, RecommendAllocation(math.NaN(), 0.014))
	assert.Equal(t, AllocationNone, RecommendAllocation(0.014, math.NaN()))
	assert.Equal(t, AllocationMaximum, AllocationForExcess(math.Inf(1)))
	assert.Equal(t, AllocationNone, AllocationForExcess(math.Inf(-1)))
}

func TestWindowDaysUsesCalendarDates(t *testing.T) {
	start := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, WindowDays(start, end))

	result, err := Estimate(nil, models.EstimationRequest{AUM: 100_000_000, WindowStart: start, WindowEnd: end})
	require.NoError(t, err)
	assert.Equal(t, 1, result.WindowDays)

	lateEnd := time.Date(2025, 7, 21, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 201, WindowDays(date(t, "2025-01-01"), lateEnd))
}

func TestRecommendAllocationBoundaries(t *testing.T) {
	// 0.044 - 0.014 is 0.030000000000000002 in float64; the bucket must
	// still be the closed lower bound
	assert.Equal(t, AllocationModerate, RecommendAllocation(0.044, 0.014))
	assert.Equal(t, AllocationLight, RecommendAllocation(0.04399, 0.014))
	assert.Equal(t, AllocationNone, RecommendAllocation(0.014, 0.014))
	assert.Equal(t, AllocationMaximum, RecommendAllocation(0.114, 0.014))
}

func TestFilterByWindowInclusiveAndOrdered(t *testing.T) {
	records := []models.AllotmentRecord{
		record(t, "late", "2025-07-21", models.BoardMainSZ, 1, 1, 0.1),
		record(t, "before", "2024-12-31", models.BoardMainSZ, 1, 1, 0.1),
		record(t, "early", "2025-01-01", models.BoardMainSZ, 1, 1, 0.1),
	}
	// listing timestamps carrying a time of day still count by calendar date
	records[0].ListingDate = records[0].ListingDate.Add(15 * time.Hour)

	filtered := FilterByWindow(records, date(t, "2025-01-01"), date(t, "2025-07-21"))
	require.Len(t, filtered, 2)
	assert.Equal(t, "late", filtered[0].SecurityName)
	assert.Equal(t, "early", filtered[1].SecurityName)
}
