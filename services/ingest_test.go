package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilmodi00/ipo-yield-backend/models"
)

func TestIngestRecordsResolvesNullSemantics(t *testing.T) {
	ingestor := NewRecordIngestor(nil)
	rows := []RawRow{
		{
			"sec_name":          "甲股份",
			"listing_date":      "2025-03-14",
			"ipo_board":         "科创板",
			"offline_maxbuyamt": 1_000_000.0,
			"pctchg":            "0.2",
			"lottery_b":         json.Number("0.0003"),
			"ipo_pe":            nil,
		},
		{
			"sec_name":          "乙股份",
			"listing_date":      "2025-03-15",
			"ipo_board":         "MainBoardSZ",
			"offline_maxbuyamt": -5.0,
			"pctchg":            "--",
			"lottery_b":         1.5,
		},
		{
			"sec_name":     "丙股份",
			"listing_date": "",
		},
	}

	records, stats := ingestor.IngestRecords(rows)

	require.Len(t, records, 2)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.DroppedRows)
	assert.Equal(t, 2, stats.InvalidValues)

	first := records[0]
	assert.Equal(t, models.BoardSciTech, first.Board)
	assert.True(t, first.HasYieldInputs())
	assert.InDelta(t, 0.2, *first.FirstDayPriceChange, 1e-12)
	assert.Nil(t, first.IssuePE)
	assert.Equal(t, RecordID("甲股份", first.ListingDate), first.ID)

	second := records[1]
	assert.Equal(t, models.BoardMainSZ, second.Board)
	assert.Nil(t, second.OfflineMaxBuyAmount)
	assert.Nil(t, second.FirstDayPriceChange)
	assert.Nil(t, second.OfflineLotteryRateB)
	assert.False(t, second.HasYieldInputs())
}

func TestIngestRecordsAcceptsLooseHeaders(t *testing.T) {
	ingestor := NewRecordIngestor(nil)
	rows := TableToRows(
		[]string{"Sec Name", "Listing Date", "IPO Board", "Offline MaxBuyAmt", "PctChg", "Lottery B", ""},
		[][]string{{"丁股份", "2025/4/1", "北交所", "2,000,000", "35%", "0.001", "ignored"}},
	)

	records, stats := ingestor.IngestRecords(rows)
	require.Len(t, records, 1)
	assert.Zero(t, stats.DroppedRows)

	rec := records[0]
	assert.Equal(t, models.BoardBeijing, rec.Board)
	assert.Equal(t, "2025-04-01", rec.ListingDate.Format("2006-01-02"))
	assert.InDelta(t, 2_000_000, *rec.OfflineMaxBuyAmount, 1e-9)
	assert.InDelta(t, 0.35, *rec.FirstDayPriceChange, 1e-12)
	assert.InDelta(t, 0.001, *rec.OfflineLotteryRateB, 1e-12)
}

func TestIngestRecordsResolvesDuplicateHeadersStably(t *testing.T) {
	ingestor := NewRecordIngestor(nil)
	row := RawRow{
		"Sec Name":      "乙股份",
		"SEC-NAME":      "甲股份",
		"Security Name": "丙股份",
		"Listing Date":  "2025-04-01",
	}

	for i := 0; i < 20; i++ {
		records, _ := ingestor.IngestRecords([]RawRow{row})
		require.Len(t, records, 1)
		// sec_name outranks security_name; "SEC-NAME" sorts before "Sec Name"
		assert.Equal(t, "甲股份", records[0].SecurityName)
	}
}

func TestBuildDatasetFromExportDocument(t *testing.T) {
	const export = `{
		"原始数据": {"data": [
			{"sec_name": "甲股份", "listing_date": "2025-03-14", "ipo_board": "科创板",
			 "offline_maxbuyamt": 1000000, "pctchg": 0.2, "lottery_b": 0.0003}
		]},
		"周度收益": {"data": [{"week_label": "25W11", "年化收益贡献": 0.012}]},
		"北交所": {"data": [{"listing_date": "2025-03-20", "北交所年化收益贡献": 0.004}]},
		"中签率统计": {"data": [{"week_label": "25W11", "lottery_a": 0.0004, "lottery_b": 0.0003, "lottery_a2b": 1.33}]},
		"发行统计": {"data": [{"week_label": "25W11", "stock_count": 3, "total_raised_fund": 25.5}]},
		"板块涨跌幅": {"data": [{"month_label": "2025-03", "科创板": 1.2, "北交所": null}]},
		"市盈率统计": {"data": [{"week_label": "25W11", "ipo_pe": 22.5, "industry_pe": 30.1}]}
	}`

	doc, err := DecodeExportDocument(strings.NewReader(export))
	require.NoError(t, err)

	dataset := NewRecordIngestor(nil).BuildDataset(doc, "test")

	require.Len(t, dataset.Records, 1)
	assert.Equal(t, 1, dataset.CompleteRecordCount())
	require.Len(t, dataset.WeeklyReturns, 1)
	assert.InDelta(t, 0.012, *dataset.WeeklyReturns[0].AnnualizedReturn, 1e-12)
	require.Len(t, dataset.BeijingReturns, 1)
	assert.Equal(t, "2025-03-01", dataset.BeijingReturns[0].ListingMonth.Format("2006-01-02"))
	require.Len(t, dataset.LotteryStats, 1)
	require.Len(t, dataset.Issuance, 1)
	require.Len(t, dataset.SectorReturns, 1)
	assert.Equal(t, "2025-03", dataset.SectorReturns[0].PeriodLabel)
	assert.InDelta(t, 1.2, *dataset.SectorReturns[0].Returns[models.BoardSciTech], 1e-12)
	assert.Nil(t, dataset.SectorReturns[0].Returns[models.BoardBeijing])
	require.Len(t, dataset.PEStats, 1)
	assert.Equal(t, "test", dataset.Source)
}
