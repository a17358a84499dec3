package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Board identifies the listing venue of a new share.
type Board string

const (
	BoardMainSH  Board = "MainBoardSH"
	BoardMainSZ  Board = "MainBoardSZ"
	BoardSciTech Board = "SciTech"
	BoardChiNext Board = "ChiNext"
	BoardBeijing Board = "Beijing"
)

// AllBoards lists the known venues in display order.
var AllBoards = []Board{BoardMainSH, BoardMainSZ, BoardSciTech, BoardChiNext, BoardBeijing}

// boardLabels maps each venue to the name used by the exchange statistics exports
var boardLabels = map[Board]string{
	BoardMainSH:  "上证主板",
	BoardMainSZ:  "深证主板",
	BoardSciTech: "科创板",
	BoardChiNext: "创业板",
	BoardBeijing: "北交所",
}

// ParseBoard resolves an enum code or a venue label to a Board.
// Unrecognised identifiers are returned trimmed but unchanged, so they never
// compare equal to a known venue.
func ParseBoard(text string) Board {
	trimmed := strings.TrimSpace(text)
	for _, board := range AllBoards {
		if strings.EqualFold(trimmed, string(board)) || trimmed == boardLabels[board] {
			return board
		}
	}
	return Board(trimmed)
}

// IsKnown reports whether b is one of the five venues.
func (b Board) IsKnown() bool {
	_, ok := boardLabels[b]
	return ok
}

// Label returns the venue name, or the raw identifier for unknown boards.
func (b Board) Label() string {
	if label, ok := boardLabels[b]; ok {
		return label
	}
	return string(b)
}

// AllotmentRecord is one historical new-share listing with its offline
// allotment outcome. Optional numeric fields are nil when the source had no
// usable value; that is decided once at ingestion.
type AllotmentRecord struct {
	ID           uuid.UUID `json:"id"`
	SecurityName string    `json:"security_name"`
	ListingDate  time.Time `json:"listing_date"`
	Board        Board     `json:"board"`

	// Inputs of the subscription yield formula
	OfflineMaxBuyAmount *float64 `json:"offline_max_buy_amount"`
	FirstDayPriceChange *float64 `json:"first_day_price_change"`
	OfflineLotteryRateB *float64 `json:"offline_lottery_rate_b"`

	// Auxiliary fields used by the summary statistics
	OfflineLotteryRateA *float64 `json:"offline_lottery_rate_a,omitempty"`
	OnlineLotteryRate   *float64 `json:"online_lottery_rate,omitempty"`
	ActualRaisedFund    *float64 `json:"actual_raised_fund,omitempty"`
	IssuePE             *float64 `json:"issue_pe,omitempty"`
}

// HasYieldInputs reports whether all three subscription yield inputs are present.
func (r *AllotmentRecord) HasYieldInputs() bool {
	return r.OfflineMaxBuyAmount != nil && r.FirstDayPriceChange != nil && r.OfflineLotteryRateB != nil
}
