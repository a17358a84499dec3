package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/services"
)

type stubRefresher struct {
	dataset  *models.Dataset
	err      error
	calls    int
	deadline bool
}

func (s *stubRefresher) Refresh(ctx context.Context, force bool) (*models.Dataset, error) {
	s.calls++
	_, s.deadline = ctx.Deadline()
	return s.dataset, s.err
}

func value(v float64) *float64 {
	return &v
}

func TestAnalyzeDataCompleteness(t *testing.T) {
	dataset := &models.Dataset{
		Records: []models.AllotmentRecord{
			{
				SecurityName:        "甲股份",
				OfflineMaxBuyAmount: value(1_000_000),
				FirstDayPriceChange: value(0.2),
				OfflineLotteryRateB: value(0.0003),
				IssuePE:             value(25),
			},
			{
				SecurityName:        "乙股份",
				FirstDayPriceChange: value(1.1),
			},
		},
	}

	completeness := AnalyzeDataCompleteness(dataset)

	assert.Equal(t, 2, completeness.TotalRecords)
	assert.Equal(t, 1, completeness.CompleteRecords)
	assert.InDelta(t, 50.0, completeness.OverallCompleteness, 1e-9)
	assert.Equal(t, []string{"乙股份"}, completeness.MissingYieldInputs)
	assert.InDelta(t, 100.0, completeness.FieldCoverage["first_day_price_change"], 1e-9)
	assert.InDelta(t, 50.0, completeness.FieldCoverage["issue_pe"], 1e-9)
	assert.InDelta(t, 0.0, completeness.FieldCoverage["online_lottery_rate"], 1e-9)
	assert.Len(t, completeness.FieldCoverage, 7)
}

func TestAnalyzeDataCompletenessEmpty(t *testing.T) {
	completeness := AnalyzeDataCompleteness(&models.Dataset{})
	assert.Zero(t, completeness.TotalRecords)
	assert.Zero(t, completeness.OverallCompleteness)
	assert.Empty(t, completeness.FieldCoverage)
}

func TestDatasetRefreshJobRun(t *testing.T) {
	refresher := &stubRefresher{dataset: &models.Dataset{Source: "stub"}}
	job := NewDatasetRefreshJob(refresher, 0)
	assert.Equal(t, 5*time.Minute, job.Timeout)

	job.Run()
	assert.Equal(t, 1, refresher.calls)
	assert.True(t, refresher.deadline)

	refresher.err = errors.New("source down")
	refresher.dataset = nil
	require.NotPanics(t, job.Run)
	assert.Equal(t, 2, refresher.calls)
}

func TestCacheCleanupJobRemovesExpiredEntries(t *testing.T) {
	cache := services.NewCacheServiceWithConfig(time.Minute, 10)
	defer cache.Stop()
	cache.SetWithTTL("expired", 1, time.Millisecond)
	cache.Set("fresh", 2)
	time.Sleep(5 * time.Millisecond)

	NewCacheCleanupJob(cache).Run()

	assert.Equal(t, 1, cache.Size())
	_, found := cache.Get("fresh")
	assert.True(t, found)
}
