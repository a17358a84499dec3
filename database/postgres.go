package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-yield-backend/shared"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var DB *sql.DB

// Schema is the bundled DDL applied by Migrate when no schema file is given
//
//go:embed schema.sql
var Schema string

// Connect establishes database connection with the default pool configuration
func Connect(dbURL string) error {
	config := shared.NewDefaultUnifiedConfiguration().Database
	return ConnectWithConfig(dbURL, &config)
}

// ConnectWithConfig establishes database connection with custom configuration
func ConnectWithConfig(dbURL string, config *shared.DatabaseConfig) error {
	db, err := Open(dbURL, config)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens and pings a pooled connection without touching the package handle
func Open(dbURL string, config *shared.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns":     config.MaxOpenConns,
		"max_idle_conns":     config.MaxIdleConns,
		"conn_max_lifetime":  config.ConnMaxLifetime,
		"conn_max_idle_time": config.ConnMaxIdleTime,
	}).Info("Connected to database successfully")

	return db, nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logrus.Info("Database connection closed")
	}
}

// HealthCheck pings the database and logs pool statistics
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := DB.Stats()
	logrus.WithFields(logrus.Fields{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}).Debug("Database connection pool health check")

	return nil
}

// Migrate applies the schema file at schemaPath, or the bundled schema when
// schemaPath is empty
func Migrate(schemaPath string) error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	content := Schema
	if schemaPath != "" {
		raw, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		content = string(raw)
	}

	return MigrateSQL(DB, content)
}

// MigrateSQL executes every statement of content against db
func MigrateSQL(db *sql.DB, content string) error {
	failed := 0
	for _, stmt := range parseSQLStatements(content) {
		if _, err := db.Exec(stmt); err != nil {
			// Statements are idempotent DDL; keep going so later objects still get created
			logrus.Warnf("Migration statement failed (continuing): %v", err)
			failed++
		}
	}

	if failed > 0 {
		logrus.WithField("failed_statements", failed).Warn("Database migration completed with errors")
		return nil
	}
	logrus.Info("Database migration completed successfully")
	return nil
}

// parseSQLStatements parses SQL content into individual statements
// This handles multi-line statements and comments properly
func parseSQLStatements(content string) []string {
	var statements []string
	var currentStatement strings.Builder

	lines := strings.Split(content, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Skip empty lines and comment-only lines
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentStatement.Len() > 0 {
			currentStatement.WriteString(" ")
		}
		currentStatement.WriteString(line)

		// If line ends with semicolon, we have a complete statement
		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSuffix(currentStatement.String(), ";")
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				statements = append(statements, stmt)
			}
			currentStatement.Reset()
		}
	}

	// Handle any remaining statement without semicolon
	if currentStatement.Len() > 0 {
		stmt := strings.TrimSpace(currentStatement.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}

// ValidationResult represents the result of validating one table
type ValidationResult struct {
	TableName      string   `json:"table_name"`
	IsValid        bool     `json:"is_valid"`
	MissingColumns []string `json:"missing_columns"`
	MissingIndexes []string `json:"missing_indexes"`
}

// SchemaValidator checks the live schema against what the repository expects
type SchemaValidator struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewSchemaValidator creates a new schema validator instance
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{
		db:     db,
		logger: logrus.WithField("component", "SchemaValidator"),
	}
}

// expectedAllotmentColumns maps column names to the data_type reported by information_schema
var expectedAllotmentColumns = map[string]string{
	"id":                     "uuid",
	"security_name":          "text",
	"listing_date":           "date",
	"board":                  "text",
	"offline_max_buy_amount": "numeric",
	"first_day_price_change": "numeric",
	"offline_lottery_rate_b": "numeric",
	"offline_lottery_rate_a": "numeric",
	"online_lottery_rate":    "numeric",
	"actual_raised_fund":     "numeric",
	"issue_pe":               "numeric",
}

var expectedAllotmentIndexes = []string{
	"idx_ipo_allotments_listing_date",
	"idx_ipo_allotments_board_listing_date",
}

// ValidateAllotmentTable reports missing or mistyped columns and missing indexes
func (v *SchemaValidator) ValidateAllotmentTable(ctx context.Context) (*ValidationResult, error) {
	result := &ValidationResult{TableName: allotmentTable, IsValid: true}

	columns, err := v.getTableColumns(ctx, allotmentTable)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", allotmentTable, err)
	}

	for column, expectedType := range expectedAllotmentColumns {
		actualType, exists := columns[column]
		if !exists || !strings.EqualFold(actualType, expectedType) {
			result.MissingColumns = append(result.MissingColumns, column)
			result.IsValid = false
		}
	}

	indexes, err := v.getTableIndexes(ctx, allotmentTable)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", allotmentTable, err)
	}
	for _, index := range expectedAllotmentIndexes {
		if !indexes[index] {
			result.MissingIndexes = append(result.MissingIndexes, index)
			result.IsValid = false
		}
	}

	v.logger.WithFields(logrus.Fields{
		"table":           result.TableName,
		"valid":           result.IsValid,
		"missing_columns": len(result.MissingColumns),
		"missing_indexes": len(result.MissingIndexes),
	}).Info("Completed schema validation")

	return result, nil
}

// getTableColumns returns a map of column names to their data types
func (v *SchemaValidator) getTableColumns(ctx context.Context, tableName string) (map[string]string, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
	`
	rows, err := v.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]string)
	for rows.Next() {
		var columnName, dataType string
		if err := rows.Scan(&columnName, &dataType); err != nil {
			return nil, err
		}
		columns[columnName] = dataType
	}

	return columns, rows.Err()
}

// getTableIndexes returns the set of index names defined on a table
func (v *SchemaValidator) getTableIndexes(ctx context.Context, tableName string) (map[string]bool, error) {
	query := `
		SELECT indexname
		FROM pg_indexes
		WHERE schemaname = 'public' AND tablename = $1
	`
	rows, err := v.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make(map[string]bool)
	for rows.Next() {
		var indexName string
		if err := rows.Scan(&indexName); err != nil {
			return nil, err
		}
		indexes[indexName] = true
	}

	return indexes, rows.Err()
}
