package services

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/models"
)

// Sheet names of the dashboard export
const (
	SheetRawData       = "原始数据"
	SheetWeeklyReturns = "周度收益"
	SheetBeijing       = "北交所"
	SheetLottery       = "中签率统计"
	SheetIssuance      = "发行统计"
	SheetSectorReturns = "板块涨跌幅"
	SheetPE            = "市盈率统计"
)

// RawRow is one loosely typed row as decoded from a source
type RawRow map[string]interface{}

// RawDocument maps sheet names to their rows
type RawDocument map[string][]RawRow

// recordNamespace seeds the deterministic record ids
var recordNamespace = uuid.MustParse("6f0c7a52-3d8e-4b51-9a8e-0b6f3c2e1d47")

// Column aliases per field. The first alias is the export's own key.
var (
	securityNameAliases = []string{"sec_name", "security_name", "证券简称", "name"}
	listingDateAliases  = []string{"listing_date", "上市日期"}
	boardAliases        = []string{"ipo_board", "board", "上市板块"}
	maxBuyAliases       = []string{"offline_maxbuyamt", "offline_max_buy_amount", "网下申购上限"}
	priceChangeAliases  = []string{"pctchg", "first_day_price_change", "首日涨跌幅"}
	lotteryBAliases     = []string{"lottery_b", "offline_lottery_rate_b", "B类中签率"}
	lotteryAAliases     = []string{"lottery_a", "offline_lottery_rate_a", "A类中签率"}
	onlineLotteryAlias  = []string{"lottery_online", "online_lottery_rate", "网上中签率"}
	raisedFundAliases   = []string{"actual_raised_fund", "实际募资"}
	issuePEAliases      = []string{"ipo_pe", "issue_pe", "发行市盈率"}
	weekLabelAliases    = []string{"week_label", "周"}
	monthLabelAliases   = []string{"month_label", "月份"}
)

// IngestStats counts what ingestion rejected
type IngestStats struct {
	Rows          int `json:"rows"`
	DroppedRows   int `json:"dropped_rows"`
	InvalidValues int `json:"invalid_values"`
}

func (s *IngestStats) add(other IngestStats) {
	s.Rows += other.Rows
	s.DroppedRows += other.DroppedRows
	s.InvalidValues += other.InvalidValues
}

// RecordIngestor converts decoded rows into typed records, deciding null
// semantics once
type RecordIngestor struct {
	utility *UtilityService
	logger  *logrus.Entry
}

// NewRecordIngestor creates an ingestor. A nil utility gets a fresh one.
func NewRecordIngestor(utility *UtilityService) *RecordIngestor {
	if utility == nil {
		utility = NewUtilityService()
	}
	return &RecordIngestor{
		utility: utility,
		logger:  logrus.WithField("component", "RecordIngestor"),
	}
}

// BuildDataset ingests every known sheet of doc into a snapshot
func (i *RecordIngestor) BuildDataset(doc RawDocument, source string) *models.Dataset {
	start := time.Now()
	dataset := &models.Dataset{Source: source, LoadedAt: start.UTC()}
	var stats IngestStats

	var recordStats IngestStats
	dataset.Records, recordStats = i.IngestRecords(doc[SheetRawData])
	stats.add(recordStats)

	var seriesStats IngestStats
	dataset.WeeklyReturns, seriesStats = i.ingestWeeklyReturns(doc[SheetWeeklyReturns])
	stats.add(seriesStats)
	dataset.BeijingReturns, seriesStats = i.ingestBeijingReturns(doc[SheetBeijing])
	stats.add(seriesStats)
	dataset.LotteryStats, seriesStats = i.ingestLotteryStats(doc[SheetLottery])
	stats.add(seriesStats)
	dataset.Issuance, seriesStats = i.ingestIssuance(doc[SheetIssuance])
	stats.add(seriesStats)
	dataset.SectorReturns, seriesStats = i.ingestSectorReturns(doc[SheetSectorReturns])
	stats.add(seriesStats)
	dataset.PEStats, seriesStats = i.ingestPEStats(doc[SheetPE])
	stats.add(seriesStats)

	dataset.DroppedRows = stats.DroppedRows
	dataset.InvalidValues = stats.InvalidValues

	i.utility.RecordOperation("build_dataset", true, time.Since(start))
	i.logger.WithFields(logrus.Fields{
		"source":         source,
		"records":        len(dataset.Records),
		"complete":       dataset.CompleteRecordCount(),
		"rows":           stats.Rows,
		"dropped_rows":   stats.DroppedRows,
		"invalid_values": stats.InvalidValues,
	}).Info("Dataset ingested")

	return dataset
}

// IngestRecords converts raw listing rows. Rows without a parseable listing
// date are dropped; out-of-range yield inputs become missing.
func (i *RecordIngestor) IngestRecords(rows []RawRow) ([]models.AllotmentRecord, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	records := make([]models.AllotmentRecord, 0, len(rows))

	for index, row := range rows {
		record, invalid, ok := i.ingestRecord(row)
		stats.InvalidValues += invalid
		if !ok {
			stats.DroppedRows++
			i.logger.WithField("row", index).Debug("Dropped row without listing date")
			continue
		}
		records = append(records, record)
	}

	return records, stats
}

func (i *RecordIngestor) ingestRecord(row RawRow) (models.AllotmentRecord, int, bool) {
	listingDate := i.dateField(row, listingDateAliases)
	if listingDate == nil {
		return models.AllotmentRecord{}, 0, false
	}

	record := models.AllotmentRecord{
		SecurityName:        i.textField(row, securityNameAliases),
		ListingDate:         *listingDate,
		Board:               models.ParseBoard(i.textField(row, boardAliases)),
		OfflineMaxBuyAmount: i.numberField(row, maxBuyAliases),
		FirstDayPriceChange: i.numberField(row, priceChangeAliases),
		OfflineLotteryRateB: i.numberField(row, lotteryBAliases),
		OfflineLotteryRateA: i.numberField(row, lotteryAAliases),
		OnlineLotteryRate:   i.numberField(row, onlineLotteryAlias),
		ActualRaisedFund:    i.numberField(row, raisedFundAliases),
		IssuePE:             i.numberField(row, issuePEAliases),
	}
	record.ID = RecordID(record.SecurityName, record.ListingDate)

	invalid := 0
	if record.OfflineMaxBuyAmount != nil && *record.OfflineMaxBuyAmount < 0 {
		record.OfflineMaxBuyAmount = nil
		invalid++
	}
	if record.OfflineLotteryRateB != nil && (*record.OfflineLotteryRateB < 0 || *record.OfflineLotteryRateB > 1) {
		record.OfflineLotteryRateB = nil
		invalid++
	}

	return record, invalid, true
}

// RecordID derives a stable id from the listing identity
func RecordID(securityName string, listingDate time.Time) uuid.UUID {
	key := fmt.Sprintf("%s|%s", securityName, listingDate.Format("2006-01-02"))
	return uuid.NewSHA1(recordNamespace, []byte(key))
}

func (i *RecordIngestor) ingestWeeklyReturns(rows []RawRow) ([]models.WeeklyReturn, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	series := make([]models.WeeklyReturn, 0, len(rows))
	for _, row := range rows {
		label := i.textField(row, weekLabelAliases)
		if label == "" {
			stats.DroppedRows++
			continue
		}
		series = append(series, models.WeeklyReturn{
			WeekLabel:        label,
			AnnualizedReturn: i.numberField(row, []string{"年化收益贡献", "annualized_return"}),
		})
	}
	return series, stats
}

func (i *RecordIngestor) ingestBeijingReturns(rows []RawRow) ([]models.BeijingMonthlyReturn, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	series := make([]models.BeijingMonthlyReturn, 0, len(rows))
	for _, row := range rows {
		listed := i.dateField(row, listingDateAliases)
		if listed == nil {
			stats.DroppedRows++
			continue
		}
		series = append(series, models.BeijingMonthlyReturn{
			ListingMonth:     time.Date(listed.Year(), listed.Month(), 1, 0, 0, 0, 0, time.UTC),
			AnnualizedReturn: i.numberField(row, []string{"北交所年化收益贡献", "annualized_return"}),
		})
	}
	return series, stats
}

func (i *RecordIngestor) ingestLotteryStats(rows []RawRow) ([]models.LotteryStat, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	series := make([]models.LotteryStat, 0, len(rows))
	for _, row := range rows {
		label := i.textField(row, weekLabelAliases)
		if label == "" {
			stats.DroppedRows++
			continue
		}
		series = append(series, models.LotteryStat{
			WeekLabel:  label,
			LotteryA:   i.numberField(row, lotteryAAliases),
			LotteryB:   i.numberField(row, lotteryBAliases),
			LotteryA2B: i.numberField(row, []string{"lottery_a2b"}),
		})
	}
	return series, stats
}

func (i *RecordIngestor) ingestIssuance(rows []RawRow) ([]models.IssuanceStat, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	series := make([]models.IssuanceStat, 0, len(rows))
	for _, row := range rows {
		label := i.textField(row, weekLabelAliases)
		if label == "" {
			stats.DroppedRows++
			continue
		}
		series = append(series, models.IssuanceStat{
			WeekLabel:       label,
			StockCount:      i.numberField(row, []string{"stock_count"}),
			TotalRaisedFund: i.numberField(row, []string{"total_raised_fund"}),
		})
	}
	return series, stats
}

// ingestSectorReturns reads one column per board label. Periods are monthly
// when the sheet carries month_label, weekly otherwise.
func (i *RecordIngestor) ingestSectorReturns(rows []RawRow) ([]models.SectorReturn, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	series := make([]models.SectorReturn, 0, len(rows))
	for _, row := range rows {
		label := i.textField(row, monthLabelAliases)
		if label == "" {
			label = i.textField(row, weekLabelAliases)
		}
		if label == "" {
			stats.DroppedRows++
			continue
		}

		returns := make(map[models.Board]*float64)
		for key, value := range row {
			board := models.ParseBoard(key)
			if !board.IsKnown() {
				continue
			}
			returns[board] = i.toNumber(value)
		}
		series = append(series, models.SectorReturn{PeriodLabel: label, Returns: returns})
	}
	return series, stats
}

func (i *RecordIngestor) ingestPEStats(rows []RawRow) ([]models.PEStat, IngestStats) {
	stats := IngestStats{Rows: len(rows)}
	series := make([]models.PEStat, 0, len(rows))
	for _, row := range rows {
		label := i.textField(row, weekLabelAliases)
		if label == "" {
			stats.DroppedRows++
			continue
		}
		series = append(series, models.PEStat{
			WeekLabel:  label,
			IssuePE:    i.numberField(row, issuePEAliases),
			IndustryPE: i.numberField(row, []string{"industry_pe", "行业市盈率"}),
		})
	}
	return series, stats
}

// lookup finds the first alias present in row, exact keys first and then
// keys that differ only in case, spacing or separators. Loose matches follow
// alias order, then sorted key order, so duplicate headers resolve the same
// way on every run.
func (i *RecordIngestor) lookup(row RawRow, aliases []string) (interface{}, bool) {
	for _, alias := range aliases {
		if value, ok := row[alias]; ok {
			return value, true
		}
	}

	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, alias := range aliases {
		normalizedAlias := i.utility.normalizeLabel(alias)
		for _, key := range keys {
			if i.utility.normalizeLabel(key) == normalizedAlias {
				return row[key], true
			}
		}
	}
	return nil, false
}

func (i *RecordIngestor) textField(row RawRow, aliases []string) string {
	value, ok := i.lookup(row, aliases)
	if !ok || value == nil {
		return ""
	}

	var text string
	switch typed := value.(type) {
	case string:
		text = typed
	case json.Number:
		text = typed.String()
	case float64:
		text = fmt.Sprintf("%g", typed)
	default:
		text = fmt.Sprint(typed)
	}

	text = i.utility.NormalizeTextContent(text)
	if i.utility.IsNotAvailable(text) {
		return ""
	}
	return text
}

func (i *RecordIngestor) numberField(row RawRow, aliases []string) *float64 {
	value, ok := i.lookup(row, aliases)
	if !ok {
		return nil
	}
	return i.toNumber(value)
}

// toNumber resolves a decoded value to a finite float or nil
func (i *RecordIngestor) toNumber(value interface{}) *float64 {
	var number float64
	switch typed := value.(type) {
	case nil:
		return nil
	case float64:
		number = typed
	case float32:
		number = float64(typed)
	case int:
		number = float64(typed)
	case int64:
		number = float64(typed)
	case json.Number:
		return i.utility.ParseNumericValueAsFloat(typed.String())
	case string:
		return i.utility.ParseNumericValueAsFloat(typed)
	default:
		return nil
	}

	if math.IsNaN(number) || math.IsInf(number, 0) {
		return nil
	}
	return &number
}

func (i *RecordIngestor) dateField(row RawRow, aliases []string) *time.Time {
	value, ok := i.lookup(row, aliases)
	if !ok || value == nil {
		return nil
	}

	switch typed := value.(type) {
	case time.Time:
		day := calendarDay(typed)
		return &day
	case float64:
		return i.utility.DateFromNumber(typed)
	case json.Number:
		return i.utility.ParseDate(typed.String())
	case string:
		return i.utility.ParseDate(typed)
	}
	return nil
}

// TableToRows keys each data row by the header cells. Blank header cells are
// skipped and short rows leave trailing fields absent.
func TableToRows(header []string, rows [][]string) []RawRow {
	converted := make([]RawRow, 0, len(rows))
	for _, cells := range rows {
		row := make(RawRow, len(header))
		for column, name := range header {
			name = strings.TrimSpace(name)
			if name == "" || column >= len(cells) {
				continue
			}
			row[name] = cells[column]
		}
		converted = append(converted, row)
	}
	return converted
}

// sheetSignatures identifies a sheet by its header when its name is not one
// of the export's sheet names. Checked in order.
var sheetSignatures = []struct {
	sheet   string
	columns []string
}{
	{SheetRawData, []string{"listing_date", "pctchg"}},
	{SheetBeijing, []string{"北交所年化收益贡献"}},
	{SheetWeeklyReturns, []string{"年化收益贡献"}},
	{SheetLottery, []string{"lottery_a2b"}},
	{SheetIssuance, []string{"stock_count"}},
	{SheetPE, []string{"industry_pe"}},
}

// ResolveSheet maps a table to the export sheet it holds, by name first and
// then by header signature
func (i *RecordIngestor) ResolveSheet(name string, header []string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	switch trimmed {
	case SheetRawData, SheetWeeklyReturns, SheetBeijing, SheetLottery, SheetIssuance, SheetSectorReturns, SheetPE:
		return trimmed, true
	}

	for _, signature := range sheetSignatures {
		matched := true
		for _, column := range signature.columns {
			if _, ok := i.utility.FindColumn(header, []string{column}); !ok {
				matched = false
				break
			}
		}
		if matched {
			return signature.sheet, true
		}
	}

	boardColumns := 0
	for _, cell := range header {
		if models.ParseBoard(cell).IsKnown() {
			boardColumns++
		}
	}
	if boardColumns > 0 {
		return SheetSectorReturns, true
	}

	return "", false
}

// HeaderRowIndex returns the first of the leading rows with at least two
// non-empty cells
func HeaderRowIndex(rows [][]string) (int, bool) {
	const scanLimit = 10
	for index := 0; index < len(rows) && index < scanLimit; index++ {
		filled := 0
		for _, cell := range rows[index] {
			if strings.TrimSpace(cell) != "" {
				filled++
			}
		}
		if filled >= 2 {
			return index, true
		}
	}
	return -1, false
}

// AddTable resolves and appends one parsed table to doc. Tables that match no
// sheet are skipped.
func (i *RecordIngestor) AddTable(doc RawDocument, name string, rows [][]string) bool {
	headerIndex, ok := HeaderRowIndex(rows)
	if !ok {
		return false
	}
	header := rows[headerIndex]

	sheet, ok := i.ResolveSheet(name, header)
	if !ok {
		i.logger.WithField("table", name).Debug("Skipping table with unrecognised header")
		return false
	}

	doc[sheet] = append(doc[sheet], TableToRows(header, rows[headerIndex+1:])...)
	return true
}
