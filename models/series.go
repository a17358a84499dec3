package models

import "time"

// WeeklyReturn is one row of the weekly annualized contribution series.
type WeeklyReturn struct {
	WeekLabel        string   `json:"week_label"`
	AnnualizedReturn *float64 `json:"annualized_return"`
}

// BeijingMonthlyReturn is one row of the Beijing exchange monthly series.
type BeijingMonthlyReturn struct {
	ListingMonth     time.Time `json:"listing_month"`
	AnnualizedReturn *float64  `json:"annualized_return"`
}

// LotteryStat holds weekly offline allotment rates by investor class.
type LotteryStat struct {
	WeekLabel  string   `json:"week_label"`
	LotteryA   *float64 `json:"lottery_a"`
	LotteryB   *float64 `json:"lottery_b"`
	LotteryA2B *float64 `json:"lottery_a2b"`
}

// IssuanceStat holds weekly issuance volume.
type IssuanceStat struct {
	WeekLabel       string   `json:"week_label"`
	StockCount      *float64 `json:"stock_count"`
	TotalRaisedFund *float64 `json:"total_raised_fund"`
}

// SectorReturn holds the average first-day change per board for one period.
type SectorReturn struct {
	PeriodLabel string             `json:"period_label"`
	Returns     map[Board]*float64 `json:"returns"`
}

// PEStat holds weekly issue and industry valuation multiples.
type PEStat struct {
	WeekLabel  string   `json:"week_label"`
	IssuePE    *float64 `json:"ipo_pe"`
	IndustryPE *float64 `json:"industry_pe"`
}

// Dataset is an immutable snapshot handed to the estimator and the statistics
// helpers. Nothing downstream of the provider mutates it.
type Dataset struct {
	Records        []AllotmentRecord      `json:"records"`
	WeeklyReturns  []WeeklyReturn         `json:"weekly_returns"`
	BeijingReturns []BeijingMonthlyReturn `json:"beijing_returns"`
	LotteryStats   []LotteryStat          `json:"lottery_stats"`
	Issuance       []IssuanceStat         `json:"issuance"`
	SectorReturns  []SectorReturn         `json:"sector_returns"`
	PEStats        []PEStat               `json:"pe_stats"`

	Source        string    `json:"source"`
	LoadedAt      time.Time `json:"loaded_at"`
	DroppedRows   int       `json:"dropped_rows"`
	InvalidValues int       `json:"invalid_values"`
}

// CompleteRecordCount returns how many records carry every yield input.
func (d *Dataset) CompleteRecordCount() int {
	if d == nil {
		return 0
	}
	count := 0
	for i := range d.Records {
		if d.Records[i].HasYieldInputs() {
			count++
		}
	}
	return count
}
