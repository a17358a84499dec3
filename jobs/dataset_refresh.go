package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/sirupsen/logrus"
)

// DatasetRefresher reloads the dataset snapshot
type DatasetRefresher interface {
	Refresh(ctx context.Context, force bool) (*models.Dataset, error)
}

type DatasetRefreshJob struct {
	Refresher DatasetRefresher
	Timeout   time.Duration
}

func NewDatasetRefreshJob(refresher DatasetRefresher, timeout time.Duration) *DatasetRefreshJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DatasetRefreshJob{
		Refresher: refresher,
		Timeout:   timeout,
	}
}

func (j *DatasetRefreshJob) Run() {
	logrus.Info("Starting Dataset Refresh Job")
	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()

	start := time.Now()
	dataset, err := j.Refresher.Refresh(ctx, false)
	if err != nil {
		logrus.Errorf("Failed to run Dataset Refresh Job: %v", err)
		return
	}

	completeness := AnalyzeDataCompleteness(dataset)
	logrus.WithFields(logrus.Fields{
		"source":           dataset.Source,
		"records":          completeness.TotalRecords,
		"complete_records": completeness.CompleteRecords,
		"dropped_rows":     dataset.DroppedRows,
		"invalid_values":   dataset.InvalidValues,
		"field_coverage":   completeness.FieldCoverage,
		"duration":         time.Since(start),
	}).Infof("Dataset Refresh Job completed: %d records loaded, %d with full yield inputs (%.1f%%), %d rows dropped",
		completeness.TotalRecords, completeness.CompleteRecords, completeness.OverallCompleteness, dataset.DroppedRows)

	if len(completeness.MissingYieldInputs) > 0 {
		logrus.WithFields(logrus.Fields{
			"missing_count": len(completeness.MissingYieldInputs),
			"securities":    completeness.MissingYieldInputs,
		}).Debugf("%d records lack at least one yield input", len(completeness.MissingYieldInputs))
	}
}

// DataCompleteness summarises how many records carry each optional field
type DataCompleteness struct {
	TotalRecords        int                `json:"total_records"`
	CompleteRecords     int                `json:"complete_records"`
	OverallCompleteness float64            `json:"overall_completeness"`
	FieldCoverage       map[string]float64 `json:"field_coverage"`
	MissingYieldInputs  []string           `json:"missing_yield_inputs"`
}

// AnalyzeDataCompleteness measures field coverage across the snapshot's records
func AnalyzeDataCompleteness(dataset *models.Dataset) DataCompleteness {
	completeness := DataCompleteness{FieldCoverage: make(map[string]float64)}
	if dataset == nil || len(dataset.Records) == 0 {
		return completeness
	}

	populated := make(map[string]int)
	for i := range dataset.Records {
		record := &dataset.Records[i]
		fields := map[string]*float64{
			"offline_max_buy_amount": record.OfflineMaxBuyAmount,
			"first_day_price_change": record.FirstDayPriceChange,
			"offline_lottery_rate_b": record.OfflineLotteryRateB,
			"offline_lottery_rate_a": record.OfflineLotteryRateA,
			"online_lottery_rate":    record.OnlineLotteryRate,
			"actual_raised_fund":     record.ActualRaisedFund,
			"issue_pe":               record.IssuePE,
		}
		for name, value := range fields {
			if value != nil {
				populated[name]++
			} else if _, ok := populated[name]; !ok {
				populated[name] = 0
			}
		}

		if record.HasYieldInputs() {
			completeness.CompleteRecords++
		} else {
			completeness.MissingYieldInputs = append(completeness.MissingYieldInputs, record.SecurityName)
		}
	}

	total := len(dataset.Records)
	completeness.TotalRecords = total
	completeness.OverallCompleteness = float64(completeness.CompleteRecords) / float64(total) * 100
	for name, count := range populated {
		completeness.FieldCoverage[name] = float64(count) / float64(total) * 100
	}

	return completeness
}

