package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// SnapshotProvider hands out the current dataset snapshot
type SnapshotProvider interface {
	Snapshot() *models.Dataset
}

// EstimateResponse is an estimate with its recommendation and presentation
// figures
type EstimateResponse struct {
	models.EstimationResult
	RequestID             uuid.UUID       `json:"request_id"`
	AUM                   float64         `json:"aum"`
	RiskFreeRate          float64         `json:"risk_free_rate"`
	Boards                []models.Board  `json:"boards"`
	WindowStart           string          `json:"window_start"`
	WindowEnd             string          `json:"window_end"`
	ExcessReturnPP        float64         `json:"excess_return_pp"`
	RecommendedAllocation int             `json:"recommended_allocation"`
	ExpectedProfit        decimal.Decimal `json:"expected_profit"`
	EmptyDataset          bool            `json:"empty_dataset"`
	Warnings              []string        `json:"warnings,omitempty"`
	DatasetSource         string          `json:"dataset_source"`
	DatasetLoadedAt       time.Time       `json:"dataset_loaded_at"`
}

// BatchItem is the outcome of one request in a batch, at its request index
type BatchItem struct {
	Index  int                  `json:"index"`
	Result *EstimateResponse    `json:"result,omitempty"`
	Error  *shared.ServiceError `json:"error,omitempty"`
}

// EstimationService runs estimates against the current snapshot
type EstimationService struct {
	datasets   SnapshotProvider
	defaults   shared.EstimatorConfig
	batch      shared.BatchConfig
	pool       *ants.Pool
	collectors *shared.PrometheusCollectors
	metrics    *shared.ServiceMetrics
	logger     *logrus.Entry
}

// NewEstimationService creates the service and its batch worker pool. A nil
// config uses the defaults; collectors may be nil.
func NewEstimationService(datasets SnapshotProvider, config *shared.UnifiedConfiguration, collectors *shared.PrometheusCollectors) (*EstimationService, error) {
	if config == nil {
		config = shared.NewDefaultUnifiedConfiguration()
	}

	pool, err := ants.NewPool(config.Batch.MaxConcurrency, ants.WithPanicHandler(func(recovered interface{}) {
		logrus.WithField("component", "EstimationService").Errorf("Batch estimate panicked: %v", recovered)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create estimation worker pool: %w", err)
	}

	return &EstimationService{
		datasets:   datasets,
		defaults:   config.Estimator,
		batch:      config.Batch,
		pool:       pool,
		collectors: collectors,
		metrics:    shared.NewServiceMetrics("Estimation_Service"),
		logger:     logrus.WithField("component", "EstimationService"),
	}, nil
}

// Defaults returns the values used for omitted request parameters
func (s *EstimationService) Defaults() shared.EstimatorConfig {
	return s.defaults
}

// Estimate evaluates one request against the current snapshot
func (s *EstimationService) Estimate(ctx context.Context, request models.EstimationRequest) (*EstimateResponse, error) {
	snapshot := s.datasets.Snapshot()
	return s.estimate(ctx, snapshot, request)
}

func (s *EstimationService) estimate(ctx context.Context, snapshot *models.Dataset, request models.EstimationRequest) (*EstimateResponse, error) {
	start := time.Now()
	requestID := uuid.New()

	logger := s.logger.WithFields(logrus.Fields{
		"request_id":     requestID,
		"aum":            request.AUM,
		"risk_free_rate": request.RiskFreeRate,
		"boards":         request.Boards,
		"window_start":   request.WindowStart.Format(shared.DateLayout),
		"window_end":     request.WindowEnd.Format(shared.DateLayout),
	})
	logger.Debug("Estimating allotment return")

	if err := ctx.Err(); err != nil {
		s.record("cancelled", false, start)
		return nil, shared.NewServiceError(shared.ErrorCategoryTimeout, shared.CodeCancelled, err.Error(), "return-estimator", "Estimate", true, err)
	}

	result, err := Estimate(snapshot.Records, request)
	if err != nil {
		s.record("invalid", false, start)
		logger.WithError(err).Debug("Estimate rejected")
		return nil, err
	}

	excess := ExcessReturn(result.TotalYield, request.RiskFreeRate)
	response := &EstimateResponse{
		EstimationResult:      result,
		RequestID:             requestID,
		AUM:                   request.AUM,
		RiskFreeRate:          request.RiskFreeRate,
		Boards:                request.Boards,
		WindowStart:           request.WindowStart.Format(shared.DateLayout),
		WindowEnd:             request.WindowEnd.Format(shared.DateLayout),
		ExcessReturnPP:        excess,
		RecommendedAllocation: AllocationForExcess(excess),
		ExpectedProfit:        ExpectedProfit(request.AUM, result.TotalYield),
		DatasetSource:         snapshot.Source,
		DatasetLoadedAt:       snapshot.LoadedAt,
	}
	if response.Boards == nil {
		response.Boards = []models.Board{}
	}
	if result.MatchedRecordCount == 0 {
		response.EmptyDataset = true
		response.Warnings = append(response.Warnings, shared.ErrEmptyDataset.Error())
	}

	s.record("success", true, start)
	logger.WithFields(logrus.Fields{
		"ipo_yield":   result.IPOYield,
		"total_yield": result.TotalYield,
		"matched":     result.MatchedRecordCount,
		"allocation":  response.RecommendedAllocation,
		"duration":    time.Since(start),
	}).Info("Estimate computed")

	return response, nil
}

// EstimateBatch evaluates requests concurrently on the worker pool against
// one snapshot. Items keep the order of requests.
func (s *EstimationService) EstimateBatch(ctx context.Context, requests []models.EstimationRequest) ([]BatchItem, error) {
	if len(requests) > s.batch.MaxBatchSize {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryValidation, shared.CodeBatchTooLarge,
			fmt.Sprintf("batch of %d requests exceeds the limit of %d", len(requests), s.batch.MaxBatchSize),
			"return-estimator", "EstimateBatch", false, nil,
		)
	}

	ctx, cancel := context.WithTimeout(ctx, s.batch.Timeout)
	defer cancel()

	snapshot := s.datasets.Snapshot()
	items := make([]BatchItem, len(requests))

	var wg sync.WaitGroup
	for i := range requests {
		index := i
		items[index].Index = index

		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			response, err := s.estimate(ctx, snapshot, requests[index])
			if err != nil {
				items[index].Error = asServiceError(err, "EstimateBatch")
				return
			}
			items[index].Result = response
		})
		if err != nil {
			wg.Done()
			items[index].Error = shared.WrapError(err, shared.ErrorCategoryResource, shared.CodeServiceUnavailable, "return-estimator", "EstimateBatch", true)
		}
	}
	wg.Wait()

	var sampleErrors []error
	failures := 0
	for _, item := range items {
		if item.Error != nil {
			failures++
			sampleErrors = append(sampleErrors, item.Error)
		}
	}
	if failures > 0 {
		s.logger.Warn(shared.BuildBatchProcessingErrorSummary(len(items)-failures, failures, sampleErrors))
	}

	return items, nil
}

// Close releases the batch worker pool
func (s *EstimationService) Close() {
	s.pool.Release()
}

// GetServiceMetrics returns estimate metrics
func (s *EstimationService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.metrics
}

func (s *EstimationService) record(outcome string, success bool, start time.Time) {
	elapsed := time.Since(start)
	s.metrics.RecordRequest(success, elapsed)
	s.metrics.IncrementCustomCounter("estimate_" + outcome)
	s.collectors.ObserveEstimate(outcome, elapsed)
}

// ExpectedProfit is the annual profit of aum at totalYield, rounded to cents
func ExpectedProfit(aum, totalYield float64) decimal.Decimal {
	return decimal.NewFromFloat(aum).Mul(decimal.NewFromFloat(totalYield)).Round(2)
}

func asServiceError(err error, operation string) *shared.ServiceError {
	if serviceErr, ok := shared.AsServiceError(err); ok {
		return serviceErr
	}
	return shared.NewServiceError(shared.ErrorCategoryProcessing, shared.CodeInvalidRequest, err.Error(), "return-estimator", operation, false, err)
}
