package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendNotion = "notion"
	BackendSheets = "sheets"
)

type Config struct {
	// HTTP server
	Port               string
	MaxUploadBytes     int64
	CORSOrigins        []string
	RateLimitPerMinute int
	TrustProxyHeaders  bool
	ShutdownTimeout    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Record store
	DataBackend         string
	SeedDir             string
	NotionToken         string
	NotionTokenFile     string
	NotionDatabasesFile string
	GoogleSpreadsheetID string
	ReferenceCacheTTL   time.Duration
	// Cron spec for re-reading reference lists; empty disables it
	ReferenceRefresh string

	// Classification
	RulesFile      string
	DefaultAccount string

	// Ledger
	SQLiteDBPath string

	// AMQP; an empty URL creates records synchronously
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	SyncBatchSize int
	SyncSchedule  string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", true),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:         strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),
		SeedDir:             getEnv("SEED_DIR", "./data"),
		NotionToken:         getEnv("NOTION_TOKEN", ""),
		NotionTokenFile:     getEnv("NOTION_TOKEN_FILE", ""),
		NotionDatabasesFile: getEnv("NOTION_DATABASES_FILE", "./database_ids.csv"),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		ReferenceCacheTTL:   getEnvDuration("REFERENCE_CACHE_TTL", 5*time.Minute),
		ReferenceRefresh:    getEnv("REFERENCE_REFRESH_SCHEDULE", ""),

		RulesFile:      getEnv("RULES_FILE", ""),
		DefaultAccount: getEnv("DEFAULT_ACCOUNT", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/moviments.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moviments"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_records"),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncSchedule:  getEnv("SYNC_SCHEDULE", "@every 5m"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	switch c.DataBackend {
	case BackendMemory:
	case BackendNotion:
		if c.NotionToken == "" && c.NotionTokenFile == "" {
			errs = append(errs, "NOTION_TOKEN or NOTION_TOKEN_FILE is required when using notion backend")
		}
		if c.NotionDatabasesFile == "" {
			errs = append(errs, "NOTION_DATABASES_FILE is required when using notion backend")
		} else if _, err := os.Stat(c.NotionDatabasesFile); err != nil {
			errs = append(errs, fmt.Sprintf("notion databases file not readable: %s", c.NotionDatabasesFile))
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, "Google Spreadsheet ID is required when using sheets backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of [memory notion sheets]", c.DataBackend))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 || c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be between 1 and 1000", c.SyncBatchSize))
	}
	if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("invalid sync schedule '%s': %v", c.SyncSchedule, err))
	}
	if c.ReferenceRefresh != "" {
		if _, err := cron.ParseStandard(c.ReferenceRefresh); err != nil {
			errs = append(errs, fmt.Sprintf("invalid reference refresh schedule '%s': %v", c.ReferenceRefresh, err))
		}
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadBytes))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}
	if c.ReferenceCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid reference cache TTL %v: must not be negative", c.ReferenceCacheTTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// QueueEnabled reports whether records go through AMQP and the worker.
func (c *Config) QueueEnabled() bool {
	return c.AMQPURL != ""
}

// NotionAPIToken returns NOTION_TOKEN, or the trimmed content of
// NOTION_TOKEN_FILE.
func (c *Config) NotionAPIToken() (string, error) {
	if c.NotionToken != "" {
		return c.NotionToken, nil
	}
	b, err := os.ReadFile(c.NotionTokenFile)
	if err != nil {
		return "", fmt.Errorf("read notion token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
