package services

import (
	"math"
	"sort"

	"github.com/fenilmodi00/ipo-yield-backend/models"
)

// meanAccumulator averages the present, finite values it is given
type meanAccumulator struct {
	sum   float64
	count int
}

func (m *meanAccumulator) add(value *float64) bool {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return false
	}
	m.sum += *value
	m.count++
	return true
}

func (m meanAccumulator) mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// LotterySummary holds mean offline allotment rates. MeanA and MeanB are
// percentages.
type LotterySummary struct {
	MeanA     float64 `json:"mean_a_percent"`
	MeanB     float64 `json:"mean_b_percent"`
	MeanA2B   float64 `json:"mean_a2b_ratio"`
	Rows      int     `json:"rows"`
	RatioRows int     `json:"ratio_rows"`
}

// BeijingListing is one Beijing exchange listing in date order
type BeijingListing struct {
	SecurityName      string   `json:"security_name"`
	ListingDate       string   `json:"listing_date"`
	OnlineLotteryRate *float64 `json:"online_lottery_rate"`
}

// BeijingLotterySummary holds the Beijing online lottery series and its mean
// in percent
type BeijingLotterySummary struct {
	Listings       []BeijingListing `json:"listings"`
	MeanOnlineRate float64          `json:"mean_online_rate_percent"`
	Count          int              `json:"count"`
}

// BoardReturn is the mean first-day change of one board across periods
type BoardReturn struct {
	Board      models.Board `json:"board"`
	Label      string       `json:"label"`
	MeanReturn float64      `json:"mean_return"`
	Periods    int          `json:"periods"`
}

// PESummary holds mean valuation multiples
type PESummary struct {
	MeanIssuePE    float64 `json:"mean_issue_pe"`
	MeanIndustryPE float64 `json:"mean_industry_pe"`
	Rows           int     `json:"rows"`
}

// IssuanceSummary holds issuance volume totals
type IssuanceSummary struct {
	TotalStockCount float64 `json:"total_stock_count"`
	TotalRaisedFund float64 `json:"total_raised_fund"`
	Weeks           int     `json:"weeks"`
}

// WeeklyReturnSummary holds the mean and best weekly annualized contribution
type WeeklyReturnSummary struct {
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
	Weeks int     `json:"weeks"`
}

// BeijingReturnSummary holds the mean and summed monthly Beijing contribution
type BeijingReturnSummary struct {
	Mean   float64 `json:"mean"`
	Total  float64 `json:"total"`
	Months int     `json:"months"`
}

// MonthBoardCount counts listings per board in one YYYY-MM month
type MonthBoardCount struct {
	Month  string               `json:"month"`
	Counts map[models.Board]int `json:"counts"`
	Total  int                  `json:"total"`
}

// MonthlyBoardCounts is the listing heatmap with its busiest month
type MonthlyBoardCounts struct {
	Months    []MonthBoardCount `json:"months"`
	PeakMonth string            `json:"peak_month"`
	PeakCount int               `json:"peak_count"`
}

// ComprehensiveStats is the headline summary of a dataset
type ComprehensiveStats struct {
	TotalCount         int     `json:"total_count"`
	TotalRaised        float64 `json:"total_raised"`
	MeanFirstDayReturn float64 `json:"mean_first_day_return"`
	SuccessRate        float64 `json:"success_rate_percent"`
	MeanIssuePE        float64 `json:"mean_issue_pe"`
	MeanLotteryRate    float64 `json:"mean_lottery_rate_percent"`
}

// StatisticsService computes descriptive statistics over a dataset snapshot.
// Every mean skips missing values; an empty input yields zero values.
type StatisticsService struct{}

// NewStatisticsService creates a statistics service
func NewStatisticsService() *StatisticsService {
	return &StatisticsService{}
}

// MeanFirstDayReturn averages the first-day price change over records that have one
func (s *StatisticsService) MeanFirstDayReturn(records []models.AllotmentRecord) float64 {
	var acc meanAccumulator
	for i := range records {
		acc.add(records[i].FirstDayPriceChange)
	}
	return acc.mean()
}

// PositiveReturnRate is the share of records, among those with a first-day
// change, that closed above the issue price
func (s *StatisticsService) PositiveReturnRate(records []models.AllotmentRecord) float64 {
	var acc meanAccumulator
	for i := range records {
		change := records[i].FirstDayPriceChange
		if change == nil || math.IsNaN(*change) || math.IsInf(*change, 0) {
			continue
		}
		positive := 0.0
		if *change > 0 {
			positive = 1
		}
		acc.add(&positive)
	}
	return acc.mean()
}

func (s *StatisticsService) LotterySummary(rows []models.LotteryStat) LotterySummary {
	var a, b, ratio meanAccumulator
	for _, row := range rows {
		a.add(row.LotteryA)
		b.add(row.LotteryB)
		ratio.add(row.LotteryA2B)
	}
	return LotterySummary{
		MeanA:     a.mean() * 100,
		MeanB:     b.mean() * 100,
		MeanA2B:   ratio.mean(),
		Rows:      len(rows),
		RatioRows: ratio.count,
	}
}

// BeijingOnlineLottery lists Beijing listings oldest first with their mean
// online lottery rate
func (s *StatisticsService) BeijingOnlineLottery(records []models.AllotmentRecord) BeijingLotterySummary {
	beijing := make([]models.AllotmentRecord, 0)
	for _, record := range records {
		if record.Board == models.BoardBeijing {
			beijing = append(beijing, record)
		}
	}
	sort.SliceStable(beijing, func(i, j int) bool {
		return beijing[i].ListingDate.Before(beijing[j].ListingDate)
	})

	var acc meanAccumulator
	listings := make([]BeijingListing, 0, len(beijing))
	for _, record := range beijing {
		acc.add(record.OnlineLotteryRate)
		listings = append(listings, BeijingListing{
			SecurityName:      record.SecurityName,
			ListingDate:       record.ListingDate.Format("2006-01-02"),
			OnlineLotteryRate: record.OnlineLotteryRate,
		})
	}

	return BeijingLotterySummary{
		Listings:       listings,
		MeanOnlineRate: acc.mean() * 100,
		Count:          len(beijing),
	}
}

// BoardReturns averages each known board's column across sector rows, in
// board display order. Boards without any value report zero periods.
func (s *StatisticsService) BoardReturns(rows []models.SectorReturn) []BoardReturn {
	results := make([]BoardReturn, 0, len(models.AllBoards))
	for _, board := range models.AllBoards {
		var acc meanAccumulator
		for _, row := range rows {
			acc.add(row.Returns[board])
		}
		results = append(results, BoardReturn{
			Board:      board,
			Label:      board.Label(),
			MeanReturn: acc.mean(),
			Periods:    acc.count,
		})
	}
	return results
}

// BestBoard returns the board with the highest mean sector return. Ties keep
// the earlier board; with no data the Board is empty.
func (s *StatisticsService) BestBoard(rows []models.SectorReturn) BoardReturn {
	best := BoardReturn{}
	found := false
	for _, candidate := range s.BoardReturns(rows) {
		if candidate.Periods == 0 {
			continue
		}
		if !found || candidate.MeanReturn > best.MeanReturn {
			best = candidate
			found = true
		}
	}
	return best
}

func (s *StatisticsService) PESummary(rows []models.PEStat) PESummary {
	var issue, industry meanAccumulator
	for _, row := range rows {
		issue.add(row.IssuePE)
		industry.add(row.IndustryPE)
	}
	return PESummary{
		MeanIssuePE:    issue.mean(),
		MeanIndustryPE: industry.mean(),
		Rows:           len(rows),
	}
}

func (s *StatisticsService) IssuanceSummary(rows []models.IssuanceStat) IssuanceSummary {
	var stocks, raised meanAccumulator
	for _, row := range rows {
		stocks.add(row.StockCount)
		raised.add(row.TotalRaisedFund)
	}
	return IssuanceSummary{
		TotalStockCount: stocks.sum,
		TotalRaisedFund: raised.sum,
		Weeks:           len(rows),
	}
}

func (s *StatisticsService) WeeklyReturnSummary(rows []models.WeeklyReturn) WeeklyReturnSummary {
	var acc meanAccumulator
	maximum := math.Inf(-1)
	for _, row := range rows {
		if acc.add(row.AnnualizedReturn) && *row.AnnualizedReturn > maximum {
			maximum = *row.AnnualizedReturn
		}
	}
	if acc.count == 0 {
		maximum = 0
	}
	return WeeklyReturnSummary{Mean: acc.mean(), Max: maximum, Weeks: acc.count}
}

func (s *StatisticsService) BeijingReturnSummary(rows []models.BeijingMonthlyReturn) BeijingReturnSummary {
	var acc meanAccumulator
	for _, row := range rows {
		acc.add(row.AnnualizedReturn)
	}
	return BeijingReturnSummary{Mean: acc.mean(), Total: acc.sum, Months: acc.count}
}

// MonthlyBoardCounts counts listings per month and known board. Every month
// with a listing appears; the peak is the first month with the largest total.
func (s *StatisticsService) MonthlyBoardCounts(records []models.AllotmentRecord) MonthlyBoardCounts {
	byMonth := make(map[string]*MonthBoardCount)
	for _, record := range records {
		key := record.ListingDate.Format("2006-01")
		month, ok := byMonth[key]
		if !ok {
			month = &MonthBoardCount{Month: key, Counts: make(map[models.Board]int)}
			byMonth[key] = month
		}
		if record.Board.IsKnown() {
			month.Counts[record.Board]++
			month.Total++
		}
	}

	keys := make([]string, 0, len(byMonth))
	for key := range byMonth {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := MonthlyBoardCounts{Months: make([]MonthBoardCount, 0, len(keys))}
	for _, key := range keys {
		month := *byMonth[key]
		result.Months = append(result.Months, month)
		if month.Total > result.PeakCount {
			result.PeakMonth = month.Month
			result.PeakCount = month.Total
		}
	}
	return result
}

// ComprehensiveStats summarises the listing records and lottery series of a snapshot
func (s *StatisticsService) ComprehensiveStats(dataset *models.Dataset) ComprehensiveStats {
	if dataset == nil {
		return ComprehensiveStats{}
	}

	var raised, pe, lottery meanAccumulator
	for i := range dataset.Records {
		record := &dataset.Records[i]
		raised.add(record.ActualRaisedFund)
		if record.IssuePE != nil && *record.IssuePE > 0 {
			pe.add(record.IssuePE)
		}
	}

	for _, row := range dataset.LotteryStats {
		if row.LotteryA == nil || row.LotteryB == nil {
			continue
		}
		blended := (*row.LotteryA*100 + *row.LotteryB*100) / 2
		lottery.add(&blended)
	}

	return ComprehensiveStats{
		TotalCount:         len(dataset.Records),
		TotalRaised:        raised.sum,
		MeanFirstDayReturn: s.MeanFirstDayReturn(dataset.Records),
		SuccessRate:        s.PositiveReturnRate(dataset.Records) * 100,
		MeanIssuePE:        pe.mean(),
		MeanLotteryRate:    lottery.mean(),
	}
}
