package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// Dataset source kinds accepted by DATASET_SOURCE
const (
	SourceJSON     = "json"
	SourceExcel    = "xlsx"
	SourceHTML     = "html"
	SourcePostgres = "postgres"
)

type Config struct {
	ServerPort          string
	DatabaseURL         string
	AdminToken          string
	CacheTTLHours       string
	LogLevel            string
	LogFormat           string
	LogFile             string
	LogSaveDays         string
	DatasetPath         string
	DatasetURL          string
	DatasetSource       string
	DatasetRefreshHours string
	DefaultRiskFreeRate string
	DefaultWindowStart  string
	DefaultWindowEnd    string
}

// SimplifiedRateLimitConfig holds simplified rate limiting configuration
type SimplifiedRateLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	PolitenessDelay   time.Duration `json:"politeness_delay"`
}

// DefaultRateLimitConfig returns default rate limiting configuration for remote dataset fetches
func DefaultRateLimitConfig() *SimplifiedRateLimitConfig {
	return &SimplifiedRateLimitConfig{
		RequestsPerSecond: 2.0,
		PolitenessDelay:   500 * time.Millisecond,
	}
}

// MinimumDelay is the gap enforced between requests: the politeness delay, or
// the interval implied by RequestsPerSecond when that is longer
func (c *SimplifiedRateLimitConfig) MinimumDelay() time.Duration {
	delay := c.PolitenessDelay
	if c.RequestsPerSecond > 0 {
		if interval := time.Duration(float64(time.Second) / c.RequestsPerSecond); interval > delay {
			delay = interval
		}
	}
	return delay
}

// GetCacheTTL returns the cache TTL from environment or default
func (c *Config) GetCacheTTL() time.Duration {
	return parseHours("CACHE_TTL_HOURS", c.CacheTTLHours, 24*time.Hour)
}

// GetDatasetRefreshInterval returns how often the snapshot is reloaded
func (c *Config) GetDatasetRefreshInterval() time.Duration {
	return parseHours("DATASET_REFRESH_HOURS", c.DatasetRefreshHours, 6*time.Hour)
}

// ToUnified overlays the environment settings on the default unified configuration
func (c *Config) ToUnified() *shared.UnifiedConfiguration {
	unified := shared.NewDefaultUnifiedConfiguration()

	unified.Service.BaseURL = c.DatasetURL
	unified.Cache.DefaultTTL = c.GetCacheTTL()
	unified.Logging.Level = c.LogLevel
	unified.Logging.Format = c.LogFormat
	unified.Logging.FilePath = c.LogFile
	if c.LogSaveDays != "" {
		days, err := strconv.ParseUint(c.LogSaveDays, 10, 32)
		if err != nil {
			logrus.Warnf("Invalid LOG_SAVE_DAYS value: %s, keeping logs for 7 days", c.LogSaveDays)
		} else {
			unified.Logging.SaveDays = uint(days)
		}
	}

	if c.DefaultRiskFreeRate != "" {
		rate, err := strconv.ParseFloat(c.DefaultRiskFreeRate, 64)
		if err != nil {
			logrus.Warnf("Invalid DEFAULT_RISK_FREE_RATE value: %s, using default %.4f", c.DefaultRiskFreeRate, unified.Estimator.DefaultRiskFreeRate)
		} else {
			unified.Estimator.DefaultRiskFreeRate = rate
		}
	}
	if c.DefaultWindowStart != "" {
		unified.Estimator.DefaultWindowStart = c.DefaultWindowStart
	}
	if c.DefaultWindowEnd != "" {
		unified.Estimator.DefaultWindowEnd = c.DefaultWindowEnd
	}

	unified.ValidateAndApplyDefaults()
	return unified
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		AdminToken:          getEnv("ADMIN_TOKEN", ""),
		CacheTTLHours:       getEnv("CACHE_TTL_HOURS", "24"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		LogFile:             getEnv("LOG_FILE", ""),
		LogSaveDays:         getEnv("LOG_SAVE_DAYS", ""),
		DatasetPath:         getEnv("DATASET_PATH", "."),
		DatasetURL:          getEnv("DATASET_URL", ""),
		DatasetSource:       getEnv("DATASET_SOURCE", SourceJSON),
		DatasetRefreshHours: getEnv("DATASET_REFRESH_HOURS", "6"),
		DefaultRiskFreeRate: getEnv("DEFAULT_RISK_FREE_RATE", ""),
		DefaultWindowStart:  getEnv("DEFAULT_WINDOW_START", ""),
		DefaultWindowEnd:    getEnv("DEFAULT_WINDOW_END", ""),
	}
}

func parseHours(key, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}

	hours, err := strconv.Atoi(value)
	if err != nil || hours <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %s", key, value, fallback)
		return fallback
	}

	return time.Duration(hours) * time.Hour
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
