package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// cacheInvalidator is implemented by sources that can drop cached loads
type cacheInvalidator interface {
	Invalidate()
}

// DatasetStatus describes the current snapshot for operators
type DatasetStatus struct {
	Source          string    `json:"source"`
	LoadedAt        time.Time `json:"loaded_at"`
	Records         int       `json:"records"`
	CompleteRecords int       `json:"complete_records"`
	DroppedRows     int       `json:"dropped_rows"`
	InvalidValues   int       `json:"invalid_values"`
	WeeklyRows      int       `json:"weekly_rows"`
	SectorRows      int       `json:"sector_rows"`
	LastRefresh     time.Time `json:"last_refresh"`
	LastError       string    `json:"last_error,omitempty"`
	CircuitOpen     bool      `json:"circuit_open"`
}

// DatasetService owns the current snapshot. Readers get an immutable
// *models.Dataset; refreshes swap it whole and keep the previous one when a
// load fails.
type DatasetService struct {
	source     DatasetSource
	breaker    *shared.SourceCircuitBreaker
	collectors *shared.PrometheusCollectors
	metrics    *shared.ServiceMetrics
	logger     *logrus.Entry

	mutex       sync.RWMutex
	snapshot    *models.Dataset
	lastRefresh time.Time
	lastError   error

	refreshGroup singleflight.Group
}

// NewDatasetService creates a service with an empty snapshot. collectors may be nil.
func NewDatasetService(source DatasetSource, breaker *shared.SourceCircuitBreaker, collectors *shared.PrometheusCollectors) *DatasetService {
	if breaker == nil {
		breaker = shared.NewSourceCircuitBreaker(source.Name(), 3, time.Minute)
	}
	return &DatasetService{
		source:     source,
		breaker:    breaker,
		collectors: collectors,
		metrics:    shared.NewServiceMetrics("Dataset_Service"),
		logger:     logrus.WithField("component", "DatasetService"),
		snapshot:   &models.Dataset{Source: source.Name()},
	}
}

// Snapshot returns the current dataset. It is never nil.
func (s *DatasetService) Snapshot() *models.Dataset {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.snapshot
}

// Refresh loads a new snapshot and swaps it in. Concurrent callers share one
// load. force bypasses the source cache.
func (s *DatasetService) Refresh(ctx context.Context, force bool) (*models.Dataset, error) {
	results := s.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		return s.load(ctx, force)
	})

	select {
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*models.Dataset), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *DatasetService) load(ctx context.Context, force bool) (*models.Dataset, error) {
	start := time.Now()

	if force {
		if invalidator, ok := s.source.(cacheInvalidator); ok {
			invalidator.Invalidate()
		}
	}

	var dataset *models.Dataset
	err := s.breaker.Execute("DatasetService.Refresh", func() error {
		loaded, err := s.source.Load(ctx)
		if err != nil {
			return err
		}
		dataset = loaded
		return nil
	})

	s.metrics.RecordRequest(err == nil, time.Since(start))

	s.mutex.Lock()
	s.lastRefresh = time.Now().UTC()
	s.lastError = err
	if err == nil {
		s.snapshot = dataset
	}
	s.mutex.Unlock()

	if err != nil {
		s.collectors.ObserveRefresh("failure", 0)
		s.logger.WithError(err).WithField("source", s.source.Name()).Error("Dataset refresh failed, keeping previous snapshot")
		return nil, err
	}

	s.collectors.ObserveRefresh("success", len(dataset.Records))
	logger := s.logger.WithFields(logrus.Fields{
		"source":    dataset.Source,
		"records":   len(dataset.Records),
		"complete":  dataset.CompleteRecordCount(),
		"duration":  time.Since(start),
		"forced":    force,
		"loaded_at": dataset.LoadedAt,
	})
	if len(dataset.Records) == 0 {
		logger.Warn("Dataset refreshed with no allotment records")
	} else {
		logger.Info("Dataset refreshed")
	}

	return dataset, nil
}

// Status summarises the current snapshot and the last refresh attempt
func (s *DatasetService) Status() DatasetStatus {
	s.mutex.RLock()
	snapshot := s.snapshot
	lastRefresh := s.lastRefresh
	lastError := s.lastError
	s.mutex.RUnlock()

	status := DatasetStatus{
		Source:          snapshot.Source,
		LoadedAt:        snapshot.LoadedAt,
		Records:         len(snapshot.Records),
		CompleteRecords: snapshot.CompleteRecordCount(),
		DroppedRows:     snapshot.DroppedRows,
		InvalidValues:   snapshot.InvalidValues,
		WeeklyRows:      len(snapshot.WeeklyReturns),
		SectorRows:      len(snapshot.SectorReturns),
		LastRefresh:     lastRefresh,
		CircuitOpen:     s.breaker.IsOpen(),
	}
	if lastError != nil {
		status.LastError = lastError.Error()
	}
	return status
}

// ImportSnapshot persists the current snapshot's records into store
func (s *DatasetService) ImportSnapshot(ctx context.Context, store RecordStore) (int, error) {
	snapshot := s.Snapshot()
	if len(snapshot.Records) == 0 {
		return 0, shared.NewServiceError(
			shared.ErrorCategoryValidation, shared.CodeEmptyDataset, shared.ErrEmptyDataset.Error(),
			"dataset-provider", "ImportSnapshot", false, shared.ErrEmptyDataset,
		)
	}

	written, err := store.UpsertRecords(ctx, snapshot.Records)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"source":  snapshot.Source,
		"written": written,
	}).Info("Imported snapshot into database")
	return written, nil
}

// GetServiceMetrics returns refresh metrics
func (s *DatasetService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.metrics
}
