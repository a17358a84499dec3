package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

var (
	whitespaceRegex    = regexp.MustCompile(`\s+`)
	numericLiteralRgx  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	excelSerialMinimum = 20000.0
	excelSerialMaximum = 80000.0
	epochMillisMinimum = 1e11
)

// excelEpoch is day zero of spreadsheet serial dates
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// UtilityService provides text processing, normalization, and table parsing utilities
type UtilityService struct {
	serviceMetrics *shared.ServiceMetrics
}

// NewUtilityService creates a new utility service instance
func NewUtilityService() *UtilityService {
	return &UtilityService{
		serviceMetrics: shared.NewServiceMetrics("Utility_Service"),
	}
}

// NormalizeTextContent trims, collapses whitespace and folds full-width
// punctuation used by the exchange exports to ASCII
func (s *UtilityService) NormalizeTextContent(text string) string {
	if text == "" {
		return ""
	}

	text = strings.TrimSpace(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")

	replacer := strings.NewReplacer(
		"％", "%",
		"，", ",",
		"．", ".",
		"－", "-",
		"￥", "",
		"¥", "",
		"元", "",
	)
	text = replacer.Replace(text)

	return strings.TrimSpace(text)
}

// IsNotAvailable checks if a value is a "no data" placeholder
func (s *UtilityService) IsNotAvailable(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))

	notAvailableValues := []string{
		"",
		"-",
		"--",
		"—",
		"n/a",
		"na",
		"nan",
		"null",
		"none",
		"nil",
		"inf",
		"-inf",
		"暂无",
		"无",
	}

	for _, na := range notAvailableValues {
		if text == na {
			return true
		}
	}

	return false
}

// ParseDate parses a listing date into midnight UTC of its calendar date.
// Accepts ISO dates and timestamps, slash and Chinese date formats, compact
// yyyymmdd, spreadsheet serial numbers and epoch milliseconds.
func (s *UtilityService) ParseDate(dateStr string) *time.Time {
	dateStr = s.NormalizeTextContent(dateStr)
	if s.IsNotAvailable(dateStr) {
		return nil
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"2006/1/2",
		"2006-1-2",
		"2006年01月02日",
		"2006年1月2日",
		"20060102",
		"2006-01",
		"2006/01",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			day := calendarDay(t)
			return &day
		}
	}

	if numericLiteralRgx.MatchString(dateStr) {
		if value, err := strconv.ParseFloat(dateStr, 64); err == nil {
			return s.DateFromNumber(value)
		}
	}

	return nil
}

// DateFromNumber interprets a numeric date cell: spreadsheet serial days or
// epoch milliseconds
func (s *UtilityService) DateFromNumber(value float64) *time.Time {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}

	switch {
	case value >= excelSerialMinimum && value <= excelSerialMaximum:
		day := excelEpoch.AddDate(0, 0, int(value))
		return &day
	case value >= epochMillisMinimum:
		day := calendarDay(time.UnixMilli(int64(value)).UTC())
		return &day
	}

	return nil
}

// ParseNumericValueAsFloat parses a formatted number. Thousands separators and
// currency marks are dropped; a trailing percent sign divides by 100.
// Placeholders, non-numeric text and non-finite values return nil.
func (s *UtilityService) ParseNumericValueAsFloat(numericText string) *float64 {
	cleanedText := s.NormalizeTextContent(numericText)
	if s.IsNotAvailable(cleanedText) {
		return nil
	}

	cleanedText = strings.ReplaceAll(cleanedText, ",", "")
	cleanedText = strings.ReplaceAll(cleanedText, " ", "")

	percent := strings.HasSuffix(cleanedText, "%")
	cleanedText = strings.TrimSuffix(cleanedText, "%")

	if !numericLiteralRgx.MatchString(cleanedText) {
		return nil
	}

	parsedValue, err := strconv.ParseFloat(cleanedText, 64)
	if err != nil || math.IsNaN(parsedValue) || math.IsInf(parsedValue, 0) {
		return nil
	}

	if percent {
		parsedValue /= 100
	}
	return &parsedValue
}

// TableRow is one parsed table row
type TableRow struct {
	Index int      // Row index in the table
	Cells []string // Cleaned cell texts, th and td alike
}

// ParseHTMLTable parses a table element collected by colly
func (s *UtilityService) ParseHTMLTable(table *colly.HTMLElement) []TableRow {
	return s.ParseTableSelection(table.DOM)
}

// ParseTableSelection parses every non-empty row of a table selection
func (s *UtilityService) ParseTableSelection(table *goquery.Selection) []TableRow {
	var rows []TableRow

	table.Find("tr").Each(func(index int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, s.cleanCellText(cell.Text()))
		})

		empty := true
		for _, cell := range cells {
			if cell != "" {
				empty = false
				break
			}
		}
		if empty {
			return
		}

		rows = append(rows, TableRow{Index: index, Cells: cells})
		logrus.Debugf("Parsed table row %d with %d cells", index, len(cells))
	})

	return rows
}

// FindColumn returns the header position best matching one of targetLabels
func (s *UtilityService) FindColumn(header []string, targetLabels []string) (int, bool) {
	bestIndex := -1
	bestScore := 0.0

	for index, cell := range header {
		normalizedCell := s.normalizeLabel(cell)
		for _, target := range targetLabels {
			score := s.calculateMatchScore(normalizedCell, s.normalizeLabel(target))
			if score > bestScore {
				bestScore = score
				bestIndex = index
			}
		}
	}

	// Only accept matches with reasonable confidence
	if bestScore < 0.8 {
		return -1, false
	}
	return bestIndex, true
}

// normalizeLabel normalizes a label for matching
func (s *UtilityService) normalizeLabel(label string) string {
	normalized := strings.ToLower(label)

	replacer := strings.NewReplacer(
		":", "",
		"：", "",
		"(", "",
		")", "",
		"（", "",
		"）", "",
		"-", " ",
		"_", " ",
	)
	normalized = replacer.Replace(normalized)

	return strings.Join(strings.Fields(normalized), " ")
}

// calculateMatchScore scores a normalized header cell against a normalized
// target label. A cell that decorates the target ("pctchg %") scores 0.8; the
// reverse does not, so "年化收益贡献" never matches "北交所年化收益贡献".
func (s *UtilityService) calculateMatchScore(cellLabel, targetLabel string) float64 {
	if cellLabel == "" || targetLabel == "" {
		return 0.0
	}

	if cellLabel == targetLabel {
		return 1.0
	}

	if strings.Contains(cellLabel, targetLabel) {
		return 0.8
	}

	words1 := strings.Fields(cellLabel)
	words2 := strings.Fields(targetLabel)

	matchingWords := 0
	for _, word1 := range words1 {
		for _, word2 := range words2 {
			if word1 == word2 {
				matchingWords++
				break
			}
		}
	}

	// Jaccard similarity
	totalWords := len(words1) + len(words2) - matchingWords
	if totalWords == 0 {
		return 0.0
	}
	return float64(matchingWords) / float64(totalWords)
}

// cleanCellText cleans up extracted cell text
func (s *UtilityService) cleanCellText(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// GetServiceMetrics returns the current service metrics
func (s *UtilityService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}

// RecordOperation records a utility service operation with metrics tracking
func (s *UtilityService) RecordOperation(operationName string, success bool, processingTime time.Duration) {
	if s.serviceMetrics != nil {
		s.serviceMetrics.RecordRequest(success, processingTime)
		s.serviceMetrics.IncrementCustomCounter(operationName)
	}
}
