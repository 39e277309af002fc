package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/forecast"
	"spendcast/internal/history"
	"spendcast/internal/outlier"
	"spendcast/internal/trend"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage backend
	DataBackend        string
	SQLiteDBPath       string
	FirestoreProjectID string

	// Upstream transaction source
	Upstream              string
	InvestecBaseURL       string
	InvestecClientID      string
	InvestecClientSecret  string
	InvestecAPIKey        string
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	SheetsPageSize        int
	MemorySeedFile        string

	// AMQP refresh queue
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Fetching
	HistoryMonths       int
	FetchMaxRetries     int
	FetchInitialBackoff time.Duration
	FetchMaxBackoff     time.Duration
	FetchPageTimeout    time.Duration

	// Pipeline
	OutlierMultiple   float64
	OutlierPolicy     string
	MinHistoryMonths  int
	ConfidenceLevel   float64
	SeasonalMinMonths int
	TrendDeadBand     float64
	ReportTimeout     time.Duration

	// Worker
	RefreshInterval    time.Duration
	RefreshConcurrency int
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES", nil),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:        getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/spendcast.db"),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),

		Upstream:              getEnv("UPSTREAM", "memory"),
		InvestecBaseURL:       getEnv("INVESTEC_API_URL", "https://openapi.investec.com"),
		InvestecClientID:      getEnv("INVESTEC_CLIENT_ID", ""),
		InvestecClientSecret:  getEnv("INVESTEC_CLIENT_SECRET", ""),
		InvestecAPIKey:        getEnv("INVESTEC_API_KEY", ""),
		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		SheetsPageSize:        getEnvInt("SHEETS_PAGE_SIZE", 500),
		MemorySeedFile:        getEnv("MEMORY_SEED_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendcast"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "history_refresh"),

		HistoryMonths:       getEnvInt("HISTORY_MONTHS", 24),
		FetchMaxRetries:     getEnvInt("FETCH_MAX_RETRIES", 4),
		FetchInitialBackoff: getEnvDuration("FETCH_INITIAL_BACKOFF", 500*time.Millisecond),
		FetchMaxBackoff:     getEnvDuration("FETCH_MAX_BACKOFF", 15*time.Second),
		FetchPageTimeout:    getEnvDuration("FETCH_PAGE_TIMEOUT", 20*time.Second),

		OutlierMultiple:   getEnvFloat("OUTLIER_MULTIPLE", 3),
		OutlierPolicy:     getEnv("OUTLIER_POLICY", string(core.PolicyCap)),
		MinHistoryMonths:  getEnvInt("MIN_HISTORY_MONTHS", 3),
		ConfidenceLevel:   getEnvFloat("CONFIDENCE_LEVEL", 0.80),
		SeasonalMinMonths: getEnvInt("SEASONAL_MIN_MONTHS", 24),
		TrendDeadBand:     getEnvFloat("TREND_DEAD_BAND", 1.0),
		ReportTimeout:     getEnvDuration("REPORT_TIMEOUT", 2*time.Minute),

		RefreshInterval:    getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),
		RefreshConcurrency: getEnvInt("REFRESH_CONCURRENCY", 4),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy CIDR '%s'", cidr))
		}
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite", "firestore"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "firestore" && c.FirestoreProjectID == "" {
		errors = append(errors, "FIRESTORE_PROJECT_ID is required when using firestore backend")
	}

	// Validate upstream source
	validUpstreams := []string{"memory", "investec", "sheets"}
	if !slices.Contains(validUpstreams, c.Upstream) {
		errors = append(errors, fmt.Sprintf("invalid upstream '%s': must be one of %v", c.Upstream, validUpstreams))
	}

	if c.Upstream == "investec" {
		if parsedURL, err := url.Parse(c.InvestecBaseURL); err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid Investec API URL '%s'", c.InvestecBaseURL))
		}
		if c.InvestecClientID == "" || c.InvestecClientSecret == "" {
			errors = append(errors, "INVESTEC_CLIENT_ID and INVESTEC_CLIENT_SECRET are required for investec upstream")
		}
		if c.InvestecAPIKey == "" {
			errors = append(errors, "INVESTEC_API_KEY is required for investec upstream")
		}
	}

	if c.Upstream == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets upstream")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets upstream")
		}
		if (c.GoogleOAuthClientFile == "") != (c.GoogleOAuthTokenFile == "") {
			errors = append(errors, "GOOGLE_OAUTH_CLIENT_FILE and GOOGLE_OAUTH_TOKEN_FILE must be set together")
		}
		if c.SheetsPageSize < 1 || c.SheetsPageSize > 10000 {
			errors = append(errors, fmt.Sprintf("invalid sheets page size %d: must be between 1 and 10000", c.SheetsPageSize))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate fetching
	if c.HistoryMonths < 1 || c.HistoryMonths > 120 {
		errors = append(errors, fmt.Sprintf("invalid history months %d: must be between 1 and 120", c.HistoryMonths))
	}
	if c.FetchMaxRetries < 0 || c.FetchMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid fetch max retries %d: must be between 0 and 10", c.FetchMaxRetries))
	}
	if c.FetchInitialBackoff <= 0 || c.FetchMaxBackoff < c.FetchInitialBackoff {
		errors = append(errors, fmt.Sprintf("invalid fetch backoff %v..%v: initial must be positive and not above max", c.FetchInitialBackoff, c.FetchMaxBackoff))
	}

	// Validate pipeline
	if c.OutlierMultiple <= 0 {
		errors = append(errors, fmt.Sprintf("invalid outlier multiple %v: must be positive", c.OutlierMultiple))
	}
	if !core.CorrectionPolicy(c.OutlierPolicy).IsValid() {
		errors = append(errors, fmt.Sprintf("invalid outlier policy '%s': must be 'cap' or 'remove'", c.OutlierPolicy))
	}
	if c.MinHistoryMonths < 1 {
		errors = append(errors, fmt.Sprintf("invalid min history months %d: must be at least 1", c.MinHistoryMonths))
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		errors = append(errors, fmt.Sprintf("invalid confidence level %v: must be between 0 and 1", c.ConfidenceLevel))
	}
	if c.SeasonalMinMonths < 12 {
		errors = append(errors, fmt.Sprintf("invalid seasonal min months %d: must be at least 12", c.SeasonalMinMonths))
	}
	if c.TrendDeadBand < 0 {
		errors = append(errors, fmt.Sprintf("invalid trend dead band %v: must not be negative", c.TrendDeadBand))
	}

	// Validate worker configuration
	if c.RefreshConcurrency < 1 || c.RefreshConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid refresh concurrency %d: must be between 1 and 64", c.RefreshConcurrency))
	}
	if c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Pipeline bundles the per-stage settings derived from the configuration.
type Pipeline struct {
	Retry    history.RetryConfig
	Fetch    history.Config
	Outlier  outlier.Config
	Forecast forecast.Config
	Trend    trend.Analyzer
}

// Pipeline converts the flat environment configuration into stage configs.
func (c *Config) Pipeline() Pipeline {
	retry := history.DefaultRetryConfig()
	retry.MaxRetries = c.FetchMaxRetries
	retry.InitialDelay = c.FetchInitialBackoff
	retry.MaxDelay = c.FetchMaxBackoff

	fc := forecast.DefaultConfig()
	fc.Level = c.ConfidenceLevel
	fc.SeasonalMinMonths = c.SeasonalMinMonths

	oc := outlier.DefaultConfig()
	oc.Multiple = c.OutlierMultiple
	oc.Policy = core.CorrectionPolicy(c.OutlierPolicy)
	oc.MinHistory = c.MinHistoryMonths

	return Pipeline{
		Retry:    retry,
		Fetch:    history.Config{Retry: retry, PageTimeout: c.FetchPageTimeout},
		Outlier:  oc,
		Forecast: fc,
		Trend:    trend.Analyzer{DeadBand: c.TrendDeadBand},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
