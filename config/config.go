// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/snow-ghost/trials/pkg/logging"
	"github.com/snow-ghost/trials/pkg/tracing"
)

// Config holds configuration for experiment runs
type Config struct {
	LogLevel      string
	LogFormat     string
	LogOutput     string
	SortMetric    string
	ReportFile    string
	MetricsFile   string
	ReportWorkers int
	Seed          int64

	JaegerEndpoint string
	Environment    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	config := &Config{
		LogLevel:      getEnv("TRIALS_LOG_LEVEL", "info"),
		LogFormat:     getEnv("TRIALS_LOG_FORMAT", "console"),
		LogOutput:     getEnv("TRIALS_LOG_OUTPUT", "stderr"),
		SortMetric:    getEnv("TRIALS_SORT_METRIC", "accuracy"),
		ReportFile:    getEnv("TRIALS_REPORT_FILE", "experiment_report.md"),
		MetricsFile:   getEnv("TRIALS_METRICS_FILE", ""),
		ReportWorkers: getEnvInt("TRIALS_REPORT_WORKERS", 4),
		Seed:          getEnvInt64("TRIALS_SEED", 0),

		JaegerEndpoint: getEnv("TRIALS_JAEGER_ENDPOINT", ""),
		Environment:    getEnv("TRIALS_ENVIRONMENT", "development"),
	}

	if config.ReportWorkers < 1 {
		config.ReportWorkers = 1
	}

	return config
}

// Logging returns the logger settings
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		Output: c.LogOutput,
	}
}

// Tracing returns the tracer settings
func (c *Config) Tracing(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    "trials",
		ServiceVersion: version,
		JaegerEndpoint: c.JaegerEndpoint,
		Environment:    c.Environment,
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
