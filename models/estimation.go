package models

import "time"

// EstimationRequest describes one return estimate. An empty Boards set means
// every venue.
type EstimationRequest struct {
	AUM          float64   `json:"aum"`
	RiskFreeRate float64   `json:"risk_free_rate"`
	Boards       []Board   `json:"boards"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// EstimationResult is the blended annualized return of an estimate.
// TotalYield is always IPOYield + IdleCashYield.
type EstimationResult struct {
	IPOYield              float64 `json:"ipo_yield"`
	IdleCashYield         float64 `json:"idle_cash_yield"`
	TotalYield            float64 `json:"total_yield"`
	MatchedRecordCount    int     `json:"matched_record_count"`
	TotalSubscriptionGain float64 `json:"total_subscription_gain"`
	WindowDays            int     `json:"window_days"`
}
