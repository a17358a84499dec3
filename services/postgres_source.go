package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/models"
)

// RecordStore is the persistence the Postgres source reads from and the
// import endpoint writes to
type RecordStore interface {
	ListRecords(ctx context.Context) ([]models.AllotmentRecord, error)
	UpsertRecords(ctx context.Context, records []models.AllotmentRecord) (int, error)
}

// PostgresSource serves listing records from the database. The summary
// series are not persisted, so its snapshots carry records only.
type PostgresSource struct {
	store  RecordStore
	logger *logrus.Entry
}

// NewPostgresSource creates a database-backed source
func NewPostgresSource(store RecordStore) *PostgresSource {
	return &PostgresSource{
		store:  store,
		logger: logrus.WithField("component", "PostgresSource"),
	}
}

// Name identifies the source in logs and cache keys
func (s *PostgresSource) Name() string {
	return "postgres:ipo_allotments"
}

// Load reads every stored record
func (s *PostgresSource) Load(ctx context.Context) (*models.Dataset, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("records", len(records)).Info("Loaded records from database")
	return &models.Dataset{
		Records:  records,
		Source:   s.Name(),
		LoadedAt: time.Now().UTC(),
	}, nil
}
