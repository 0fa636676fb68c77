// Package config provides configuration management for flambe-go.
package config

import (
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/flambeai/flambe-go/logger"
)

// Exporter names accepted by OtelExporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds immutable configuration for flambe-go.
type Config struct {
	ProjectName string

	// Evaluation defaults
	Device        string
	EvalData      string
	EvalBatchSize int
	LogPrefix     string

	// Scalar log
	ScalarDB string

	// Tracing configuration
	OtelExporter    string
	OtelEndpoint    string
	OtelInsecure    bool
	SpanFilterFuncs []SpanFilterFunc
	Exporter        trace.SpanExporter

	// Logger
	Logger logger.Logger
}

// SpanFilterFunc is a function that decides which spans to export.
// Return >0 to keep the span, <0 to drop the span, or 0 to not influence the decision.
type SpanFilterFunc func(span trace.ReadOnlySpan) int

// FromEnv loads configuration from environment variables with defaults.
//
// Supported environment variables:
//   - FLAMBE_PROJECT: Project name stamped on spans (default: "default-go-project")
//   - FLAMBE_DEVICE: Device to evaluate on (default: auto-detected)
//   - FLAMBE_EVAL_DATA: Split to evaluate (default: "test")
//   - FLAMBE_EVAL_BATCH_SIZE: Evaluation batch size (default: 16)
//   - FLAMBE_LOG_PREFIX: Prefix applied to logged scalar tags
//   - FLAMBE_SCALAR_DB: Path of the sqlite scalar log (default: disabled)
//   - FLAMBE_OTEL_EXPORTER: none, stdout or otlp (default: "none")
//   - FLAMBE_OTEL_ENDPOINT: OTLP HTTP endpoint URL
//   - FLAMBE_OTEL_INSECURE: Use plain HTTP for OTLP (default: false)
func FromEnv() *Config {
	return &Config{
		ProjectName:   getEnvString("FLAMBE_PROJECT", "default-go-project"),
		Device:        getEnvString("FLAMBE_DEVICE", ""),
		EvalData:      getEnvString("FLAMBE_EVAL_DATA", "test"),
		EvalBatchSize: getEnvInt("FLAMBE_EVAL_BATCH_SIZE", 16),
		LogPrefix:     getEnvString("FLAMBE_LOG_PREFIX", ""),
		ScalarDB:      getEnvString("FLAMBE_SCALAR_DB", ""),
		OtelExporter:  strings.ToLower(getEnvString("FLAMBE_OTEL_EXPORTER", ExporterNone)),
		OtelEndpoint:  getEnvString("FLAMBE_OTEL_ENDPOINT", ""),
		OtelInsecure:  getEnvBool("FLAMBE_OTEL_INSECURE", false),
	}
}

// getEnvString returns the trimmed environment variable value or the default
func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a bool or the default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(strings.TrimSpace(value)) == "true"
	}
	return defaultValue
}

// getEnvInt returns the environment variable as a positive int or the default
func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
