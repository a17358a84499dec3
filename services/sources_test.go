package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

const sampleExport = `{
	"原始数据": {"data": [
		{"sec_name": "甲股份", "listing_date": "2025-03-14", "ipo_board": "科创板",
		 "offline_maxbuyamt": 1000000, "pctchg": 0.2, "lottery_b": 0.0003},
		{"sec_name": "乙股份", "listing_date": "2025-04-02", "ipo_board": "北交所",
		 "offline_maxbuyamt": null, "pctchg": 1.1, "lottery_b": 0.001, "lottery_online": 0.02}
	]},
	"generated_at": "2025-07-21"
}`

const sampleTablePage = `<html><body>
<table data-sheet="原始数据">
	<tr><th>sec_name</th><th>listing_date</th><th>ipo_board</th><th>offline_maxbuyamt</th><th>pctchg</th><th>lottery_b</th></tr>
	<tr><td>甲股份</td><td>2025-03-14</td><td>科创板</td><td>1,000,000</td><td>20%</td><td>0.0003</td></tr>
</table>
<table>
	<caption>板块</caption>
	<tr><th>month_label</th><th>科创板</th><th>创业板</th></tr>
	<tr><td>2025-03</td><td>1.2</td><td>--</td></tr>
</table>
<table id="noise"><tr><td>only</td></tr></table>
</body></html>`

func TestJSONFileSourceTriesCandidatesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "newest_data.json"), []byte(`{"原始数据": {"data": []}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "excel_data_summary.json"), []byte(sampleExport), 0o644))

	source := NewJSONFileSource(dir, NewRecordIngestor(nil))
	dataset, err := source.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "file:excel_data_summary.json", dataset.Source)
	require.Len(t, dataset.Records, 2)
	assert.Equal(t, 1, dataset.CompleteRecordCount())
}

func TestJSONFileSourceMissingFiles(t *testing.T) {
	source := NewJSONFileSource(t.TempDir(), NewRecordIngestor(nil))

	_, err := source.Load(context.Background())
	require.Error(t, err)

	serviceErr, ok := shared.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodeDatasetUnavailable, serviceErr.Code)
}

func TestRemoteJSONSourceFallsThroughNotFound(t *testing.T) {
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("t"))
		if r.URL.Path != "/exports/excel_data_summary.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleExport)
	}))
	defer server.Close()

	config := shared.NewDefaultUnifiedConfiguration().Service
	config.MaxRetryAttempts = 0
	metrics := shared.NewHTTPMetrics()
	client := shared.NewHTTPClientFactory(5*time.Second).NewRestyClient(config, metrics)

	limiter := shared.NewHTTPRequestRateLimiter(time.Millisecond)
	source := NewRemoteJSONSource(server.URL+"/exports/", client, limiter, NewRecordIngestor(nil))
	dataset, err := source.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/exports/excel_data_optimized.json", "/exports/excel_data_summary.json"}, requested)
	assert.Len(t, dataset.Records, 2)
	assert.Equal(t, int64(2), limiter.GetRequestCount())
	assert.Equal(t, 100.0, metrics.GetHTTPSuccessRate())
}

func TestRemoteJSONSourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	config := shared.NewDefaultUnifiedConfiguration().Service
	config.MaxRetryAttempts = 0
	client := shared.NewHTTPClientFactory(5*time.Second).NewRestyClient(config, nil)

	source := NewRemoteJSONSource(server.URL+"/data.json", client, nil, NewRecordIngestor(nil))
	_, err := source.Load(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsRetryableError(err))
}

func TestExcelSourceReadsRecognisedSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.xlsx")

	f := excelize.NewFile()
	defer f.Close()

	sheets := map[string][][]interface{}{
		// unnamed sheet recognised by its header, with a title row above it
		"listings": {
			{"新股统计"},
			{"sec_name", "listing_date", "ipo_board", "offline_maxbuyamt", "pctchg", "lottery_b"},
			{"甲股份", "2025-03-14", "科创板", 1000000, 0.2, 0.0003},
			{"乙股份", "2025-05-06", "ChiNext", 2000000, 0.5, 0.0002},
		},
		SheetPE: {
			{"week_label", "ipo_pe", "industry_pe"},
			{"25W11", 22.5, 30.1},
		},
		"notes": {
			{"free text"},
		},
	}
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for rowIndex, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIndex+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))

	dataset, err := NewExcelSource(path, NewRecordIngestor(nil)).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, dataset.Records, 2)
	assert.Equal(t, models.BoardChiNext, dataset.Records[1].Board)
	assert.InDelta(t, 0.0002, *dataset.Records[1].OfflineLotteryRateB, 1e-12)
	require.Len(t, dataset.PEStats, 1)
	assert.Equal(t, "xlsx:stats.xlsx", dataset.Source)
}

func TestExcelSourceWithoutListingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := NewExcelSource(path, NewRecordIngestor(nil)).Load(context.Background())
	require.Error(t, err)
}

func TestHTMLTableSourceCrawlsTables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, sampleTablePage)
	}))
	defer server.Close()

	utility := NewUtilityService()
	source := NewHTMLTableSource(server.URL, nil, 5*time.Second, nil, utility, NewRecordIngestor(utility))

	dataset, err := source.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, dataset.Records, 1)
	assert.InDelta(t, 0.2, *dataset.Records[0].FirstDayPriceChange, 1e-12)
	require.Len(t, dataset.SectorReturns, 1)
	assert.InDelta(t, 1.2, *dataset.SectorReturns[0].Returns[models.BoardSciTech], 1e-12)
	assert.Nil(t, dataset.SectorReturns[0].Returns[models.BoardChiNext])
}

func TestHTMLTableSourceReadsLocalDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.html")
	require.NoError(t, os.WriteFile(path, []byte(sampleTablePage), 0o644))

	utility := NewUtilityService()
	dataset, err := NewHTMLTableSource(path, nil, 0, nil, utility, NewRecordIngestor(utility)).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, dataset.Records, 1)
	assert.Equal(t, models.BoardSciTech, dataset.Records[0].Board)
}

type stubRecordStore struct {
	records []models.AllotmentRecord
	err     error
}

func (s *stubRecordStore) ListRecords(ctx context.Context) ([]models.AllotmentRecord, error) {
	return s.records, s.err
}

func (s *stubRecordStore) UpsertRecords(ctx context.Context, records []models.AllotmentRecord) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.records = append(s.records, records...)
	return len(records), nil
}

func TestPostgresSourceWrapsStoredRecords(t *testing.T) {
	store := &stubRecordStore{records: []models.AllotmentRecord{{SecurityName: "甲股份"}}}

	dataset, err := NewPostgresSource(store).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, dataset.Records, 1)
	assert.Equal(t, "postgres:ipo_allotments", dataset.Source)
}
