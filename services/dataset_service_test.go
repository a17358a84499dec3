package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// countingSource returns its configured dataset or error and counts loads.
// When gate is set each load waits for it to close.
type countingSource struct {
	dataset *models.Dataset
	err     error
	gate    chan struct{}
	loads   int32
}

func (s *countingSource) Name() string {
	return "stub"
}

func (s *countingSource) Load(ctx context.Context) (*models.Dataset, error) {
	atomic.AddInt32(&s.loads, 1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.dataset, nil
}

func (s *countingSource) loadCount() int {
	return int(atomic.LoadInt32(&s.loads))
}

func sampleDataset(t *testing.T) *models.Dataset {
	return &models.Dataset{
		Source:   "stub",
		LoadedAt: time.Date(2025, 7, 21, 8, 0, 0, 0, time.UTC),
		Records: []models.AllotmentRecord{
			record(t, "A", "2025-03-01", models.BoardSciTech, 1_000_000, 0.20, 0.0003),
			{SecurityName: "B", ListingDate: date(t, "2025-03-02"), Board: models.BoardBeijing},
		},
		WeeklyReturns: []models.WeeklyReturn{{WeekLabel: "W1", AnnualizedReturn: floatPtr(0.01)}},
		DroppedRows:   1,
	}
}

func TestCacheServiceExpiresEntries(t *testing.T) {
	cache := NewCacheServiceWithConfig(time.Minute, 10)
	defer cache.Stop()

	cache.SetWithTTL("short", 1, time.Millisecond)
	cache.Set("long", 2)
	time.Sleep(5 * time.Millisecond)

	_, found := cache.Get("short")
	assert.False(t, found)
	value, found := cache.Get("long")
	require.True(t, found)
	assert.Equal(t, 2, value)

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Size())
}

func TestCacheServiceEvictsOldestWhenFull(t *testing.T) {
	cache := NewCacheServiceWithConfig(time.Minute, 2)
	defer cache.Stop()

	cache.SetWithTTL("first", 1, time.Minute)
	cache.SetWithTTL("second", 2, 2*time.Minute)
	cache.SetWithTTL("third", 3, 3*time.Minute)

	assert.Equal(t, 2, cache.Size())
	_, found := cache.Get("first")
	assert.False(t, found)

	// Overwriting an existing key never evicts
	cache.Set("third", 4)
	assert.Equal(t, 2, cache.Size())
}

func TestCachedDatasetSourceReusesLoad(t *testing.T) {
	source := &countingSource{dataset: sampleDataset(t)}
	cache := NewCacheServiceWithConfig(time.Minute, 10)
	defer cache.Stop()
	cached := NewCachedDatasetSource(source, cache, time.Minute)

	for i := 0; i < 3; i++ {
		dataset, err := cached.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, dataset.Records, 2)
	}
	assert.Equal(t, 1, source.loadCount())

	cached.Invalidate()
	_, err := cached.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.loadCount())
}

func TestDatasetServiceRefreshSwapsSnapshot(t *testing.T) {
	registry := prometheus.NewRegistry()
	collectors, err := shared.NewPrometheusCollectors(registry)
	require.NoError(t, err)

	service := NewDatasetService(&countingSource{dataset: sampleDataset(t)}, nil, collectors)
	require.NotNil(t, service.Snapshot())
	assert.Empty(t, service.Snapshot().Records)

	dataset, err := service.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, dataset, service.Snapshot())

	status := service.Status()
	assert.Equal(t, 2, status.Records)
	assert.Equal(t, 1, status.CompleteRecords)
	assert.Equal(t, 1, status.DroppedRows)
	assert.Equal(t, 1, status.WeeklyRows)
	assert.Empty(t, status.LastError)
	assert.False(t, status.CircuitOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.DatasetRefreshes.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collectors.DatasetRecords))
}

func TestDatasetServiceKeepsSnapshotOnFailure(t *testing.T) {
	source := &countingSource{dataset: sampleDataset(t)}
	service := NewDatasetService(source, nil, nil)

	previous, err := service.Refresh(context.Background(), false)
	require.NoError(t, err)

	source.err = errors.New("export unreachable")
	_, err = service.Refresh(context.Background(), false)
	require.Error(t, err)

	assert.Same(t, previous, service.Snapshot())
	assert.Equal(t, "export unreachable", service.Status().LastError)
}

func TestDatasetServiceOpensCircuitAfterRepeatedFailures(t *testing.T) {
	source := &countingSource{err: errors.New("boom")}
	breaker := shared.NewSourceCircuitBreaker("stub", 2, time.Hour)
	service := NewDatasetService(source, breaker, nil)

	for i := 0; i < 2; i++ {
		_, err := service.Refresh(context.Background(), false)
		require.Error(t, err)
	}

	_, err := service.Refresh(context.Background(), false)
	serviceErr, ok := shared.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, shared.ErrorCategoryResource, serviceErr.Category)
	assert.Equal(t, 2, source.loadCount())
	assert.True(t, service.Status().CircuitOpen)
}

func TestDatasetServiceRefreshIsSingleFlight(t *testing.T) {
	source := &countingSource{dataset: sampleDataset(t), gate: make(chan struct{})}
	service := NewDatasetService(source, nil, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*models.Dataset, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			dataset, err := service.Refresh(context.Background(), false)
			assert.NoError(t, err)
			results[index] = dataset
		}(i)
	}

	require.Eventually(t, func() bool { return source.loadCount() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	assert.Equal(t, 1, source.loadCount())
	for _, dataset := range results {
		assert.Same(t, source.dataset, dataset)
	}
}

func TestDatasetServiceForceInvalidatesCache(t *testing.T) {
	source := &countingSource{dataset: sampleDataset(t)}
	cache := NewCacheServiceWithConfig(time.Minute, 10)
	defer cache.Stop()
	service := NewDatasetService(NewCachedDatasetSource(source, cache, time.Hour), nil, nil)

	_, err := service.Refresh(context.Background(), false)
	require.NoError(t, err)
	_, err = service.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, source.loadCount())

	_, err = service.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, source.loadCount())
}

func TestDatasetServiceImportSnapshot(t *testing.T) {
	service := NewDatasetService(&countingSource{dataset: sampleDataset(t)}, nil, nil)
	store := &stubRecordStore{}

	_, err := service.ImportSnapshot(context.Background(), store)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrEmptyDataset)

	_, err = service.Refresh(context.Background(), false)
	require.NoError(t, err)

	written, err := service.ImportSnapshot(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Len(t, store.records, 2)
}
