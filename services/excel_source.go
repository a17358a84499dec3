package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// ExcelSource reads the statistics workbook directly. Each sheet is matched
// to an export sheet by name or header.
type ExcelSource struct {
	Path     string
	ingestor *RecordIngestor
	logger   *logrus.Entry
}

// NewExcelSource creates a workbook source
func NewExcelSource(path string, ingestor *RecordIngestor) *ExcelSource {
	return &ExcelSource{
		Path:     path,
		ingestor: ingestor,
		logger:   logrus.WithField("component", "ExcelSource"),
	}
}

// Name identifies the source in logs and cache keys
func (s *ExcelSource) Name() string {
	return "xlsx:" + s.Path
}

// Load opens the workbook and ingests every recognised sheet
func (s *ExcelSource) Load(ctx context.Context) (*models.Dataset, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryResource, shared.CodeDatasetUnavailable, "dataset-provider", "ExcelSource.Load", true)
	}
	defer f.Close()

	doc := make(RawDocument)
	for _, sheetName := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			s.logger.WithError(err).WithField("sheet", sheetName).Warn("Failed to read sheet")
			continue
		}

		if s.ingestor.AddTable(doc, sheetName, rows) {
			s.logger.WithFields(logrus.Fields{
				"sheet": sheetName,
				"rows":  len(rows),
			}).Debug("Read workbook sheet")
		}
	}

	if len(doc[SheetRawData]) == 0 {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryProcessing, shared.CodeDatasetUnavailable,
			fmt.Sprintf("workbook %s has no listing data sheet", filepath.Base(s.Path)),
			"dataset-provider", "ExcelSource.Load", false, nil,
		)
	}

	return s.ingestor.BuildDataset(doc, "xlsx:"+filepath.Base(s.Path)), nil
}
