package shared

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DateLayout is the calendar date format used by configuration and the API
const DateLayout = "2006-01-02"

// UnifiedConfiguration holds all configuration parameters for the entire application
type UnifiedConfiguration struct {
	Service   ServiceConfig   `json:"service"`
	Database  DatabaseConfig  `json:"database"`
	Batch     BatchConfig     `json:"batch"`
	Cache     CacheConfig     `json:"cache"`
	Logging   LoggingConfig   `json:"logging"`
	Estimator EstimatorConfig `json:"estimator"`
}

// ServiceConfig holds configuration for remote dataset fetching
type ServiceConfig struct {
	BaseURL            string        `json:"base_url"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	RequestRateLimit   time.Duration `json:"rate_limit"`
	MaxRetryAttempts   int           `json:"max_retries"`
	EnableMetrics      bool          `json:"enable_metrics"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// BatchConfig holds batch estimation configuration
type BatchConfig struct {
	MaxBatchSize   int           `json:"max_batch_size"`
	MaxConcurrency int           `json:"max_concurrency"`
	Timeout        time.Duration `json:"timeout"`
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxSize    int           `json:"max_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
	// FilePath enables a daily rotated log file next to stdout
	FilePath string `json:"file_path"`
	SaveDays uint   `json:"save_days"`
}

// EstimatorConfig holds the defaults applied to estimate requests that omit
// a parameter
type EstimatorConfig struct {
	DefaultRiskFreeRate float64 `json:"default_risk_free_rate"`
	DefaultWindowStart  string  `json:"default_window_start"`
	DefaultWindowEnd    string  `json:"default_window_end"`
}

// WindowBounds parses the default window dates
func (c EstimatorConfig) WindowBounds() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.DefaultWindowStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid default window start %q: %w", c.DefaultWindowStart, err)
	}
	end, err := time.Parse(DateLayout, c.DefaultWindowEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid default window end %q: %w", c.DefaultWindowEnd, err)
	}
	return start, end, nil
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Service: ServiceConfig{
			HTTPRequestTimeout: 30 * time.Second,
			RequestRateLimit:   1 * time.Second,
			MaxRetryAttempts:   3,
			EnableMetrics:      true,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Batch: BatchConfig{
			MaxBatchSize:   100,
			MaxConcurrency: 5,
			Timeout:        30 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL: 15 * time.Minute,
			MaxSize:    100,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "ipo-yield-backend",
		},
		Estimator: EstimatorConfig{
			DefaultRiskFreeRate: 0.014,
			DefaultWindowStart:  "2025-01-01",
			DefaultWindowEnd:    "2025-07-21",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Service.HTTPRequestTimeout <= 0 {
		c.Service.HTTPRequestTimeout = defaults.Service.HTTPRequestTimeout
		logger.Debug("Applied default Service.HTTPRequestTimeout")
	}

	if c.Service.RequestRateLimit <= 0 {
		c.Service.RequestRateLimit = defaults.Service.RequestRateLimit
		logger.Debug("Applied default Service.RequestRateLimit")
	}

	if c.Service.MaxRetryAttempts < 0 {
		c.Service.MaxRetryAttempts = defaults.Service.MaxRetryAttempts
		logger.Debug("Applied default Service.MaxRetryAttempts")
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
		logger.Debug("Applied default Database.MaxOpenConns")
	}

	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
		logger.Debug("Applied default Database.MaxIdleConns")
	}

	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}

	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}

	if c.Batch.MaxBatchSize <= 0 {
		c.Batch.MaxBatchSize = defaults.Batch.MaxBatchSize
		logger.Debug("Applied default Batch.MaxBatchSize")
	}

	if c.Batch.MaxConcurrency <= 0 {
		c.Batch.MaxConcurrency = defaults.Batch.MaxConcurrency
		logger.Debug("Applied default Batch.MaxConcurrency")
	}

	if c.Batch.Timeout <= 0 {
		c.Batch.Timeout = defaults.Batch.Timeout
		logger.Debug("Applied default Batch.Timeout")
	}

	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = defaults.Cache.DefaultTTL
		logger.Debug("Applied default Cache.DefaultTTL")
	}

	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = defaults.Cache.MaxSize
		logger.Debug("Applied default Cache.MaxSize")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}

	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}

	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}

	if c.Estimator.DefaultRiskFreeRate < 0 {
		c.Estimator.DefaultRiskFreeRate = defaults.Estimator.DefaultRiskFreeRate
		logger.Debug("Applied default Estimator.DefaultRiskFreeRate")
	}

	if _, _, err := c.Estimator.WindowBounds(); err != nil {
		c.Estimator.DefaultWindowStart = defaults.Estimator.DefaultWindowStart
		c.Estimator.DefaultWindowEnd = defaults.Estimator.DefaultWindowEnd
		logger.WithError(err).Warn("Applied default estimator window")
	}
}
