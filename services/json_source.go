package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// DefaultExportCandidates are the export file names tried in order
var DefaultExportCandidates = []string{
	"excel_data_optimized.json",
	"excel_data_summary.json",
	"newest_data.json",
}

// DatasetSource loads a complete snapshot from one backing store
type DatasetSource interface {
	Name() string
	Load(ctx context.Context) (*models.Dataset, error)
}

// DecodeExportDocument decodes the dashboard export: an object of sheets,
// each either {"data": [...]} or a bare array of rows. Numbers are kept as
// json.Number so ingestion decides their meaning.
func DecodeExportDocument(reader io.Reader) (RawDocument, error) {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	var sheets map[string]json.RawMessage
	if err := decoder.Decode(&sheets); err != nil {
		return nil, fmt.Errorf("failed to decode export document: %w", err)
	}

	doc := make(RawDocument, len(sheets))
	for name, raw := range sheets {
		rows, err := decodeSheet(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode sheet %q: %w", name, err)
		}
		if rows != nil {
			doc[name] = rows
		}
	}
	return doc, nil
}

func decodeSheet(raw json.RawMessage) ([]RawRow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	if trimmed[0] == '[' {
		var rows []RawRow
		err := decoder.Decode(&rows)
		return rows, err
	}

	if trimmed[0] != '{' {
		// scalar metadata entries carry no rows
		return nil, nil
	}

	var wrapped struct {
		Data []RawRow `json:"data"`
	}
	err := decoder.Decode(&wrapped)
	return wrapped.Data, err
}

// JSONFileSource reads the export from disk. Path is either the export file
// itself or a directory searched for the candidate names.
type JSONFileSource struct {
	Path       string
	Candidates []string
	ingestor   *RecordIngestor
	logger     *logrus.Entry
}

// NewJSONFileSource creates a file source with the default candidate names
func NewJSONFileSource(path string, ingestor *RecordIngestor) *JSONFileSource {
	return &JSONFileSource{
		Path:       path,
		Candidates: DefaultExportCandidates,
		ingestor:   ingestor,
		logger:     logrus.WithField("component", "JSONFileSource"),
	}
}

// Name identifies the source in logs and cache keys
func (s *JSONFileSource) Name() string {
	return "file:" + s.Path
}

// Load reads the first candidate that exists
func (s *JSONFileSource) Load(ctx context.Context) (*models.Dataset, error) {
	for _, path := range s.candidatePaths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			s.logger.WithField("path", path).Debug("Export candidate not found, trying next")
			continue
		}
		if err != nil {
			return nil, shared.WrapError(err, shared.ErrorCategoryResource, shared.CodeDatasetUnavailable, "dataset-provider", "JSONFileSource.Load", true)
		}

		doc, err := DecodeExportDocument(file)
		file.Close()
		if err != nil {
			return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeDatasetUnavailable, "dataset-provider", "JSONFileSource.Load", false)
		}

		s.logger.WithField("path", path).Info("Loaded export document")
		return s.ingestor.BuildDataset(doc, "file:"+filepath.Base(path)), nil
	}

	return nil, shared.NewServiceError(
		shared.ErrorCategoryResource, shared.CodeDatasetUnavailable,
		fmt.Sprintf("no export file found under %s", s.Path),
		"dataset-provider", "JSONFileSource.Load", false, nil,
	)
}

func (s *JSONFileSource) candidatePaths() []string {
	if strings.HasSuffix(strings.ToLower(s.Path), ".json") {
		return []string{s.Path}
	}

	paths := make([]string, 0, len(s.Candidates))
	for _, candidate := range s.Candidates {
		paths = append(paths, filepath.Join(s.Path, candidate))
	}
	return paths
}

// RemoteJSONSource fetches the export over HTTP
type RemoteJSONSource struct {
	BaseURL     string
	Candidates  []string
	client      *resty.Client
	rateLimiter *shared.HTTPRequestRateLimiter
	ingestor    *RecordIngestor
	logger      *logrus.Entry
}

// NewRemoteJSONSource creates a remote source. A baseURL ending in .json is
// fetched as-is; otherwise each candidate name is tried under it.
func NewRemoteJSONSource(baseURL string, client *resty.Client, rateLimiter *shared.HTTPRequestRateLimiter, ingestor *RecordIngestor) *RemoteJSONSource {
	return &RemoteJSONSource{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Candidates:  DefaultExportCandidates,
		client:      client,
		rateLimiter: rateLimiter,
		ingestor:    ingestor,
		logger:      logrus.WithField("component", "RemoteJSONSource"),
	}
}

// Name identifies the source in logs and cache keys
func (s *RemoteJSONSource) Name() string {
	return "remote:" + s.BaseURL
}

// Load fetches the first candidate URL that answers 200
func (s *RemoteJSONSource) Load(ctx context.Context) (*models.Dataset, error) {
	var lastErr error

	for _, url := range s.candidateURLs() {
		if s.rateLimiter != nil {
			if err := s.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		response, err := s.client.R().
			SetContext(ctx).
			SetQueryParam("t", strconv.FormatInt(time.Now().UnixMilli(), 10)).
			Get(url)
		if err != nil {
			lastErr = shared.WrapError(err, shared.ErrorCategoryNetwork, shared.CodeDatasetUnavailable, "dataset-provider", "RemoteJSONSource.Load", true)
			s.logger.WithError(err).WithField("url", url).Warn("Export fetch failed")
			continue
		}

		if response.StatusCode() == http.StatusNotFound {
			s.logger.WithField("url", url).Debug("Export candidate not found, trying next")
			continue
		}
		if !response.IsSuccess() {
			lastErr = shared.NewServiceError(
				shared.ErrorCategoryNetwork, shared.CodeDatasetUnavailable,
				fmt.Sprintf("unexpected status %d from %s", response.StatusCode(), url),
				"dataset-provider", "RemoteJSONSource.Load", response.StatusCode() >= 500, nil,
			)
			continue
		}

		doc, err := DecodeExportDocument(bytes.NewReader(response.Body()))
		if err != nil {
			return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeDatasetUnavailable, "dataset-provider", "RemoteJSONSource.Load", false)
		}

		s.logger.WithFields(logrus.Fields{
			"url":      url,
			"bytes":    len(response.Body()),
			"duration": response.Time(),
		}).Info("Fetched export document")
		return s.ingestor.BuildDataset(doc, "remote:"+url), nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, shared.NewServiceError(
		shared.ErrorCategoryResource, shared.CodeDatasetUnavailable,
		fmt.Sprintf("no export document found at %s", s.BaseURL),
		"dataset-provider", "RemoteJSONSource.Load", false, nil,
	)
}

func (s *RemoteJSONSource) candidateURLs() []string {
	if strings.HasSuffix(strings.ToLower(s.BaseURL), ".json") {
		return []string{s.BaseURL}
	}

	urls := make([]string, 0, len(s.Candidates))
	for _, candidate := range s.Candidates {
		urls = append(urls, s.BaseURL+"/"+candidate)
	}
	return urls
}
