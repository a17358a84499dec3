package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

const (
	allotmentTable     = "ipo_allotments"
	slowQueryThreshold = 500 * time.Millisecond
)

// AllotmentRepository persists allotment records in Postgres
type AllotmentRepository struct {
	db      *sql.DB
	metrics *shared.DatabaseMetrics
	logger  *logrus.Entry
}

// NewAllotmentRepository creates a repository on db
func NewAllotmentRepository(db *sql.DB) *AllotmentRepository {
	return &AllotmentRepository{
		db:      db,
		metrics: shared.NewDatabaseMetrics(),
		logger:  logrus.WithField("component", "AllotmentRepository"),
	}
}

// Metrics returns the query metrics of this repository
func (r *AllotmentRepository) Metrics() *shared.DatabaseMetrics {
	return r.metrics
}

// ListRecords returns every stored record ordered by listing date
func (r *AllotmentRepository) ListRecords(ctx context.Context) ([]models.AllotmentRecord, error) {
	start := time.Now()
	query := `
		SELECT id, security_name, listing_date, board,
			offline_max_buy_amount, first_day_price_change, offline_lottery_rate_b,
			offline_lottery_rate_a, online_lottery_rate, actual_raised_fund, issue_pe
		FROM ipo_allotments
		ORDER BY listing_date, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.recordQuery(false, start)
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatasetUnavailable, "allotment-repository", "ListRecords", true)
	}
	defer rows.Close()

	var records []models.AllotmentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			r.recordQuery(false, start)
			return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatasetUnavailable, "allotment-repository", "ListRecords", false)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		r.recordQuery(false, start)
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatasetUnavailable, "allotment-repository", "ListRecords", true)
	}

	r.recordQuery(true, start)
	r.logger.WithFields(logrus.Fields{
		"records":  len(records),
		"duration": time.Since(start),
	}).Debug("Listed allotment records")
	return records, nil
}

// UpsertRecords writes records in one transaction, updating rows that share
// a security name and listing date. Returns the number of rows written.
func (r *AllotmentRepository) UpsertRecords(ctx context.Context, records []models.AllotmentRecord) (int, error) {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.recordQuery(false, start)
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatabaseFailure, "allotment-repository", "UpsertRecords", true)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ipo_allotments (
			id, security_name, listing_date, board,
			offline_max_buy_amount, first_day_price_change, offline_lottery_rate_b,
			offline_lottery_rate_a, online_lottery_rate, actual_raised_fund, issue_pe
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (security_name, listing_date) DO UPDATE SET
			board = EXCLUDED.board,
			offline_max_buy_amount = EXCLUDED.offline_max_buy_amount,
			first_day_price_change = EXCLUDED.first_day_price_change,
			offline_lottery_rate_b = EXCLUDED.offline_lottery_rate_b,
			offline_lottery_rate_a = EXCLUDED.offline_lottery_rate_a,
			online_lottery_rate = EXCLUDED.online_lottery_rate,
			actual_raised_fund = EXCLUDED.actual_raised_fund,
			issue_pe = EXCLUDED.issue_pe,
			updated_at = NOW()
	`)
	if err != nil {
		r.recordQuery(false, start)
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatabaseFailure, "allotment-repository", "UpsertRecords", false)
	}
	defer stmt.Close()

	written := 0
	for _, record := range records {
		id := record.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		_, err := stmt.ExecContext(ctx,
			id,
			record.SecurityName,
			record.ListingDate,
			string(record.Board),
			toNullDecimal(record.OfflineMaxBuyAmount),
			toNullDecimal(record.FirstDayPriceChange),
			toNullDecimal(record.OfflineLotteryRateB),
			toNullDecimal(record.OfflineLotteryRateA),
			toNullDecimal(record.OnlineLotteryRate),
			toNullDecimal(record.ActualRaisedFund),
			toNullDecimal(record.IssuePE),
		)
		if err != nil {
			r.recordQuery(false, start)
			return 0, shared.WrapError(
				fmt.Errorf("upsert %s (%s): %w", record.SecurityName, record.ListingDate.Format(shared.DateLayout), err),
				shared.ErrorCategoryDatabase, shared.CodeDatabaseFailure, "allotment-repository", "UpsertRecords", false,
			)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		r.recordQuery(false, start)
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatabaseFailure, "allotment-repository", "UpsertRecords", true)
	}

	r.recordQuery(true, start)
	r.logger.WithFields(logrus.Fields{
		"records":  written,
		"duration": time.Since(start),
	}).Info("Upserted allotment records")
	return written, nil
}

// CountRecords returns the number of stored records
func (r *AllotmentRepository) CountRecords(ctx context.Context) (int, error) {
	start := time.Now()
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ipo_allotments").Scan(&count)
	r.recordQuery(err == nil, start)
	if err != nil {
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeDatabaseFailure, "allotment-repository", "CountRecords", true)
	}
	return count, nil
}

func (r *AllotmentRepository) recordQuery(success bool, start time.Time) {
	elapsed := time.Since(start)
	r.metrics.RecordQuery(success, elapsed, elapsed > slowQueryThreshold)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (models.AllotmentRecord, error) {
	var (
		record                                 models.AllotmentRecord
		board                                  string
		maxBuy, priceChange, lotteryB          decimal.NullDecimal
		lotteryA, onlineLottery, raised, issue decimal.NullDecimal
	)

	err := row.Scan(
		&record.ID,
		&record.SecurityName,
		&record.ListingDate,
		&board,
		&maxBuy,
		&priceChange,
		&lotteryB,
		&lotteryA,
		&onlineLottery,
		&raised,
		&issue,
	)
	if err != nil {
		return models.AllotmentRecord{}, err
	}

	year, month, day := record.ListingDate.Date()
	record.ListingDate = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	record.Board = models.ParseBoard(board)
	record.OfflineMaxBuyAmount = fromNullDecimal(maxBuy)
	record.FirstDayPriceChange = fromNullDecimal(priceChange)
	record.OfflineLotteryRateB = fromNullDecimal(lotteryB)
	record.OfflineLotteryRateA = fromNullDecimal(lotteryA)
	record.OnlineLotteryRate = fromNullDecimal(onlineLottery)
	record.ActualRaisedFund = fromNullDecimal(raised)
	record.IssuePE = fromNullDecimal(issue)

	return record, nil
}

func toNullDecimal(value *float64) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*value))
}

func fromNullDecimal(value decimal.NullDecimal) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Decimal.InexactFloat64()
	return &f
}
