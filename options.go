package flambe

import (
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/flambeai/flambe-go/config"
	"github.com/flambeai/flambe-go/logger"
)

// Option is a functional option for configuring a Client
type Option func(*config.Config)

// WithProject sets the project name (overrides FLAMBE_PROJECT)
func WithProject(projectName string) Option {
	return func(c *config.Config) {
		c.ProjectName = projectName
	}
}

// WithDevice sets the evaluation device: cpu, cuda or cuda:N (overrides FLAMBE_DEVICE)
func WithDevice(device string) Option {
	return func(c *config.Config) {
		c.Device = device
	}
}

// WithEvalData sets the split evaluators read (overrides FLAMBE_EVAL_DATA)
func WithEvalData(split string) Option {
	return func(c *config.Config) {
		c.EvalData = split
	}
}

// WithEvalBatchSize sets the evaluation batch size (overrides FLAMBE_EVAL_BATCH_SIZE)
func WithEvalBatchSize(n int) Option {
	return func(c *config.Config) {
		c.EvalBatchSize = n
	}
}

// WithLogPrefix sets the prefix of logged scalar tags (overrides FLAMBE_LOG_PREFIX)
func WithLogPrefix(prefix string) Option {
	return func(c *config.Config) {
		c.LogPrefix = prefix
	}
}

// WithScalarDB enables the sqlite scalar log at path (overrides FLAMBE_SCALAR_DB)
func WithScalarDB(path string) Option {
	return func(c *config.Config) {
		c.ScalarDB = path
	}
}

// WithOtelExporter selects none, stdout or otlp and the OTLP endpoint
// (overrides FLAMBE_OTEL_EXPORTER and FLAMBE_OTEL_ENDPOINT)
func WithOtelExporter(kind, endpoint string) Option {
	return func(c *config.Config) {
		c.OtelExporter = kind
		c.OtelEndpoint = endpoint
	}
}

// WithLogger sets a custom logger
// If not provided, a default logger will be used
func WithLogger(l logger.Logger) Option {
	return func(c *config.Config) {
		c.Logger = l
	}
}

// WithExporter injects a custom OpenTelemetry SpanExporter
// This is primarily useful for testing with a memory exporter
func WithExporter(exporter trace.SpanExporter) Option {
	return func(c *config.Config) {
		c.Exporter = exporter
	}
}

// WithSpanFilterFuncs adds custom span filter functions
// Filters are evaluated in order. Return >0 to keep, <0 to drop, 0 to continue
func WithSpanFilterFuncs(filterFuncs ...config.SpanFilterFunc) Option {
	return func(c *config.Config) {
		c.SpanFilterFuncs = append(c.SpanFilterFuncs, filterFuncs...)
	}
}
