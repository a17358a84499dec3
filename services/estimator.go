package services

import (
	"math"
	"time"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

const (
	// ReserveFloor is the float an offline investor must keep to stay eligible
	// for subscriptions: 1.2 × 80,000,000.
	ReserveFloor = 1.2 * 80_000_000

	daysPerYear = 365
	hoursPerDay = 24
)

// Allocation buckets, in percent of capital
const (
	AllocationNone     = 0
	AllocationLight    = 30
	AllocationModerate = 50
	AllocationHeavy    = 70
	AllocationMaximum  = 85
)

// subscriptionAggregate is the outcome of one pass of the yield formula
type subscriptionAggregate struct {
	totalGain    float64
	matchedCount int
}

// FilterByWindow returns the records listed on a calendar date inside
// [start, end], both ends inclusive, in their original order.
func FilterByWindow(records []models.AllotmentRecord, start, end time.Time) []models.AllotmentRecord {
	startDay := calendarDay(start)
	endDay := calendarDay(end)

	filtered := make([]models.AllotmentRecord, 0, len(records))
	for _, record := range records {
		listingDay := calendarDay(record.ListingDate)
		if listingDay.Before(startDay) || listingDay.After(endDay) {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

// FilterByBoards keeps the records whose board is one of boards. A filter
// entry that names no venue present in records matches nothing.
func FilterByBoards(records []models.AllotmentRecord, boards []models.Board) []models.AllotmentRecord {
	wanted := make(map[models.Board]struct{}, len(boards))
	for _, board := range boards {
		wanted[board] = struct{}{}
	}

	filtered := make([]models.AllotmentRecord, 0, len(records))
	for _, record := range records {
		if _, ok := wanted[record.Board]; ok {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// RecordContribution is the expected gain of subscribing to one issue with
// capital aum: min(aum, ceiling) × first-day change × class B lottery rate.
// The boolean is false when the record lacks any of the three inputs.
func RecordContribution(aum float64, record *models.AllotmentRecord) (float64, bool) {
	if !record.HasYieldInputs() {
		return 0, false
	}
	committed := math.Min(aum, *record.OfflineMaxBuyAmount)
	return committed * *record.FirstDayPriceChange * *record.OfflineLotteryRateB, true
}

// aggregateSubscriptions applies the yield formula to every record. Both the
// window pass and the board pass go through here.
func aggregateSubscriptions(aum float64, records []models.AllotmentRecord) subscriptionAggregate {
	var aggregate subscriptionAggregate
	for i := range records {
		contribution, ok := RecordContribution(aum, &records[i])
		if !ok {
			continue
		}
		aggregate.totalGain += contribution
		aggregate.matchedCount++
	}
	return aggregate
}

// WindowDays is the whole-day length of [start, end] between their calendar
// dates, matching the dates FilterByWindow keeps.
func WindowDays(start, end time.Time) int {
	return int(math.Round(calendarDay(end).Sub(calendarDay(start)).Hours() / hoursPerDay))
}

// IdleCashYield is the annualized return of the capital left above the
// reserve floor at the risk-free rate. It goes negative when aum is below the
// floor.
func IdleCashYield(aum, riskFreeRate float64) float64 {
	return riskFreeRate * (aum - ReserveFloor) / aum
}

// Estimate computes the blended annualized return of participating in offline
// allotment with the request's capital over the request's window.
func Estimate(records []models.AllotmentRecord, request models.EstimationRequest) (models.EstimationResult, error) {
	if !(request.AUM > 0) {
		return models.EstimationResult{}, shared.NewValidationError(
			shared.CodeInvalidCapital, shared.ErrInvalidCapital, "Estimate",
			map[string]interface{}{"aum": request.AUM},
		)
	}

	windowDays := WindowDays(request.WindowStart, request.WindowEnd)
	if windowDays <= 0 {
		return models.EstimationResult{}, shared.NewValidationError(
			shared.CodeInvalidWindow, shared.ErrInvalidWindow, "Estimate",
			map[string]interface{}{
				"window_start": request.WindowStart.Format(shared.DateLayout),
				"window_end":   request.WindowEnd.Format(shared.DateLayout),
				"window_days":  windowDays,
			},
		)
	}

	windowed := FilterByWindow(records, request.WindowStart, request.WindowEnd)
	aggregate := aggregateSubscriptions(request.AUM, windowed)

	if len(request.Boards) > 0 {
		aggregate = aggregateSubscriptions(request.AUM, FilterByBoards(windowed, request.Boards))
	}

	ipoYield := (daysPerYear / float64(windowDays)) * (aggregate.totalGain / request.AUM)
	idleCashYield := IdleCashYield(request.AUM, request.RiskFreeRate)

	return models.EstimationResult{
		IPOYield:              ipoYield,
		IdleCashYield:         idleCashYield,
		TotalYield:            ipoYield + idleCashYield,
		MatchedRecordCount:    aggregate.matchedCount,
		TotalSubscriptionGain: aggregate.totalGain,
		WindowDays:            windowDays,
	}, nil
}

// ExcessReturn is the total yield above the risk-free rate in percentage
// points, rounded to 1e-9 pp so decimal inputs land on the bucket edges they
// denote.
func ExcessReturn(totalYield, riskFreeRate float64) float64 {
	return math.Round((totalYield-riskFreeRate)*100*1e9) / 1e9
}

// AllocationForExcess maps an excess return in percentage points to the
// recommended share of capital. NaN recommends nothing.
func AllocationForExcess(excessPP float64) int {
	switch {
	case math.IsNaN(excessPP) || excessPP <= 0:
		return AllocationNone
	case excessPP < 3:
		return AllocationLight
	case excessPP < 6:
		return AllocationModerate
	case excessPP < 10:
		return AllocationHeavy
	default:
		return AllocationMaximum
	}
}

// RecommendAllocation returns the recommended percentage of capital, one of
// 0, 30, 50, 70 or 85.
func RecommendAllocation(totalYield, riskFreeRate float64) int {
	return AllocationForExcess(ExcessReturn(totalYield, riskFreeRate))
}

// calendarDay truncates t to midnight UTC of its calendar date
func calendarDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
