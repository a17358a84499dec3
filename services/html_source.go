package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// HTMLTableSource reads statistics published as HTML tables, either crawled
// from a URL or parsed from a local document. Each table is named by its
// data-sheet attribute, its caption, or its id.
type HTMLTableSource struct {
	Target      string
	transport   http.RoundTripper
	timeout     time.Duration
	rateLimiter *shared.HTTPRequestRateLimiter
	utility     *UtilityService
	ingestor    *RecordIngestor
	logger      *logrus.Entry
}

// NewHTMLTableSource creates an HTML source. A nil transport uses colly's default.
func NewHTMLTableSource(target string, transport http.RoundTripper, timeout time.Duration, rateLimiter *shared.HTTPRequestRateLimiter, utility *UtilityService, ingestor *RecordIngestor) *HTMLTableSource {
	return &HTMLTableSource{
		Target:      target,
		transport:   transport,
		timeout:     timeout,
		rateLimiter: rateLimiter,
		utility:     utility,
		ingestor:    ingestor,
		logger:      logrus.WithField("component", "HTMLTableSource"),
	}
}

// Name identifies the source in logs and cache keys
func (s *HTMLTableSource) Name() string {
	return "html:" + s.Target
}

// Load crawls or reads the document and ingests its tables
func (s *HTMLTableSource) Load(ctx context.Context) (*models.Dataset, error) {
	var (
		doc RawDocument
		err error
	)

	if strings.HasPrefix(s.Target, "http://") || strings.HasPrefix(s.Target, "https://") {
		doc, err = s.crawl(ctx)
	} else {
		doc, err = s.readLocal()
	}
	if err != nil {
		return nil, err
	}

	if len(doc[SheetRawData]) == 0 {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryProcessing, shared.CodeDatasetUnavailable,
			fmt.Sprintf("no listing data table found at %s", s.Target),
			"dataset-provider", "HTMLTableSource.Load", false, nil,
		)
	}

	return s.ingestor.BuildDataset(doc, "html:"+s.Target), nil
}

func (s *HTMLTableSource) crawl(ctx context.Context) (RawDocument, error) {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	doc := make(RawDocument)
	tableCount := 0

	c := colly.NewCollector()
	if s.transport != nil {
		c.WithTransport(s.transport)
	}
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("User-Agent", "ipo-yield-backend/1.0")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	c.OnHTML("table", func(e *colly.HTMLElement) {
		tableCount++
		s.addTable(doc, tableName(e.DOM, tableCount), s.utility.ParseHTMLTable(e))
	})

	var crawlErr error
	c.OnError(func(r *colly.Response, err error) {
		crawlErr = err
		s.logger.WithError(err).WithField("status", r.StatusCode).Error("Failed to crawl statistics page")
	})

	if err := c.Visit(s.Target); err != nil && crawlErr == nil {
		crawlErr = err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if crawlErr != nil {
		return nil, shared.WrapError(crawlErr, shared.ErrorCategoryNetwork, shared.CodeDatasetUnavailable, "dataset-provider", "HTMLTableSource.Load", true)
	}

	s.logger.WithFields(logrus.Fields{
		"url":    s.Target,
		"tables": tableCount,
	}).Info("Crawled statistics page")
	return doc, nil
}

func (s *HTMLTableSource) readLocal() (RawDocument, error) {
	file, err := os.Open(s.Target)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryResource, shared.CodeDatasetUnavailable, "dataset-provider", "HTMLTableSource.Load", false)
	}
	defer file.Close()

	document, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeDatasetUnavailable, "dataset-provider", "HTMLTableSource.Load", false)
	}

	doc := make(RawDocument)
	document.Find("table").Each(func(index int, table *goquery.Selection) {
		s.addTable(doc, tableName(table, index+1), s.utility.ParseTableSelection(table))
	})
	return doc, nil
}

func (s *HTMLTableSource) addTable(doc RawDocument, name string, rows []TableRow) {
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, row.Cells)
	}
	s.ingestor.AddTable(doc, name, cells)
}

// tableName picks the most specific label a table carries
func tableName(table *goquery.Selection, position int) string {
	if sheet, ok := table.Attr("data-sheet"); ok && strings.TrimSpace(sheet) != "" {
		return sheet
	}
	if caption := strings.TrimSpace(table.Find("caption").First().Text()); caption != "" {
		return caption
	}
	if id, ok := table.Attr("id"); ok && id != "" {
		return id
	}
	return "table-" + strconv.Itoa(position)
}
