// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environments recognized by the data lake layout.
const (
	EnvDevelop    = "develop"
	EnvProduction = "production"
)

// Config holds application configuration
type Config struct {
	Environment string // "develop" or "production", selects the S3 prefix
	DataDir     string // Base directory for the run ledger and series cache (always absolute)
	Port        int
	LogLevel    string
	LogPretty   bool

	// AWS / data lake
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	S3Bucket           string

	// Google Sheets ingestion
	GoogleSheetID         string
	GoogleCredentialsJSON string // Service account key, inline JSON
	GoogleCredentialsFile string // Path alternative, takes precedence when set

	// Pension pipeline
	PensionPlatforms []string
	BoundaryPolicy   string // "flat" or "invested"
	ScheduleEnabled  bool
	Schedule         string // cron expression with seconds field
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Data directory holds the sqlite run ledger and the msgpack series
	// cache. Resolve to an absolute path and make sure it exists so the
	// rest of startup can assume both.
	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelop),
		DataDir:     absDataDir,
		Port:        getEnvAsInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", true),

		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:          getEnv("AWS_REGION", "eu-west-2"),
		S3Bucket:           getEnv("S3_BUCKET_NAME", ""),

		GoogleSheetID:         getEnv("GOOGLE_SHEET_ID", ""),
		GoogleCredentialsJSON: getEnv("GCP_SERVICE_ACCOUNT_JSON", ""),
		GoogleCredentialsFile: getEnv("GCP_SERVICE_ACCOUNT_FILE", ""),

		PensionPlatforms: getEnvAsList("PENSION_PLATFORMS", []string{"Wahed", "Standard Life"}),
		BoundaryPolicy:   getEnv("BOUNDARY_POLICY", "flat"),
		ScheduleEnabled:  getEnvAsBool("PIPELINE_SCHEDULE_ENABLED", true),
		Schedule:         getEnv("PIPELINE_SCHEDULE", "0 0 7 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Environment != EnvDevelop && c.Environment != EnvProduction {
		return fmt.Errorf("ENVIRONMENT must be %q or %q, got %q", EnvDevelop, EnvProduction, c.Environment)
	}
	if len(c.PensionPlatforms) == 0 {
		return fmt.Errorf("PENSION_PLATFORMS must name at least one platform")
	}
	if c.BoundaryPolicy != "flat" && c.BoundaryPolicy != "invested" {
		return fmt.Errorf("BOUNDARY_POLICY must be \"flat\" or \"invested\", got %q", c.BoundaryPolicy)
	}
	return nil
}

// ValidateLake checks the settings needed to reach S3. Kept separate from
// Validate so the API server can start without credentials and only the
// pipeline commands insist on them.
func (c *Config) ValidateLake() error {
	if c.AWSAccessKeyID == "" || c.AWSSecretAccessKey == "" {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET_NAME is required")
	}
	return nil
}

// ValidateSheets checks the settings needed to reach Google Sheets.
func (c *Config) ValidateSheets() error {
	if c.GoogleSheetID == "" {
		return fmt.Errorf("GOOGLE_SHEET_ID is required")
	}
	if c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile == "" {
		return fmt.Errorf("GCP_SERVICE_ACCOUNT_JSON or GCP_SERVICE_ACCOUNT_FILE is required")
	}
	return nil
}

// GoogleCredentials returns the service account key material, reading the
// file variant when configured.
func (c *Config) GoogleCredentials() ([]byte, error) {
	if c.GoogleCredentialsFile != "" {
		data, err := os.ReadFile(c.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		return data, nil
	}
	if c.GoogleCredentialsJSON == "" {
		return nil, fmt.Errorf("no Google service account credentials configured")
	}
	return []byte(c.GoogleCredentialsJSON), nil
}

// LedgerPath returns the sqlite file holding pipeline run history.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// CacheDir returns the directory holding the msgpack series cache.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
