// Package trace sets up OpenTelemetry tracing for flambe experiments.
//
// Every span started through a provider from this package is stamped with
// the project, the run ID and, when one is set on the context, the name of
// the experiment block that produced it.
//
//	tp, err := trace.NewTracerProvider(ctx, trace.Config{
//	    ProjectName:  "mnist",
//	    ExporterKind: config.ExporterOTLP,
//	    Endpoint:     "http://localhost:4318",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tp.Shutdown(context.Background())
//
//	ctx = trace.SetBlock(ctx, "eval")
//	ctx, span := tp.Tracer("my-app").Start(ctx, "my-operation")
//	span.End()
package trace

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flambeai/flambe-go/config"
	"github.com/flambeai/flambe-go/logger"
)

// Attribute keys stamped on every span.
const (
	ProjectAttrKey = "flambe.project"
	RunAttrKey     = "flambe.run_id"
	BlockAttrKey   = "flambe.block"
)

// defaultOTLPPath is where OTLP/HTTP collectors accept traces.
const defaultOTLPPath = "/v1/traces"

// SpanFilterFunc decides which spans to export.
// Return >0 to keep, <0 to drop, 0 to not influence.
type SpanFilterFunc = config.SpanFilterFunc

// Config holds tracing configuration.
type Config struct {
	ProjectName string
	// RunID identifies this process's run. Generated when empty.
	RunID string

	// ExporterKind is one of config.ExporterNone, ExporterStdout or ExporterOTLP.
	ExporterKind string
	Endpoint     string
	Insecure     bool

	SpanFilterFuncs []SpanFilterFunc

	// Test override: provide custom exporter (e.g., memory exporter for tests)
	Exporter sdktrace.SpanExporter

	Logger logger.Logger
}

// FromConfig maps the process configuration onto a tracing Config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		ProjectName:     cfg.ProjectName,
		ExporterKind:    cfg.OtelExporter,
		Endpoint:        cfg.OtelEndpoint,
		Insecure:        cfg.OtelInsecure,
		SpanFilterFuncs: cfg.SpanFilterFuncs,
		Exporter:        cfg.Exporter,
		Logger:          cfg.Logger,
	}
}

// NewTracerProvider creates a tracer provider exporting according to cfg.
// With no exporter, spans are still recorded and stamped but never leave
// the process.
func NewTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	tp := sdktrace.NewTracerProvider()
	if err := AddSpanProcessor(ctx, tp, cfg); err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return tp, nil
}

// AddSpanProcessor registers the stamping span processor on tp.
func AddSpanProcessor(ctx context.Context, tp *sdktrace.TracerProvider, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	processor, err := GetSpanProcessor(ctx, cfg)
	if err != nil {
		return err
	}
	tp.RegisterSpanProcessor(processor)
	log.Debug("registered flambe span processor", "run_id", processor.RunID())
	return nil
}

// GetSpanProcessor builds the exporter named by cfg and wraps it in a batch
// processor that stamps and filters spans.
func GetSpanProcessor(ctx context.Context, cfg Config) (*SpanProcessor, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	exporter, err := newExporter(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var wrapped sdktrace.SpanProcessor
	if exporter != nil {
		wrapped = sdktrace.NewBatchSpanProcessor(exporter)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	return newSpanProcessor(wrapped, cfg.ProjectName, runID, cfg.SpanFilterFuncs, log), nil
}

func newExporter(ctx context.Context, cfg Config, log logger.Logger) (sdktrace.SpanExporter, error) {
	if cfg.Exporter != nil {
		log.Debug("using provided exporter")
		return cfg.Exporter, nil
	}

	switch strings.ToLower(cfg.ExporterKind) {
	case "", config.ExporterNone:
		return nil, nil
	case config.ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		log.Debug("created stdout trace exporter")
		return exporter, nil
	case config.ExporterOTLP:
		opts, err := getHTTPOtelOpts(cfg.Endpoint, cfg.Insecure)
		if err != nil {
			return nil, err
		}
		exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Debug("created OTLP HTTP exporter", "endpoint", cfg.Endpoint)
		return exporter, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.ExporterKind)
	}
}

// getHTTPOtelOpts accepts "host:port" or a full URL. A plain http URL or
// insecure forces an unencrypted connection; a URL path replaces /v1/traces.
func getHTTPOtelOpts(endpoint string, insecure bool) ([]otlptracehttp.Option, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("otlp exporter requires an endpoint")
	}

	host, path := endpoint, defaultOTLPPath
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid url: %s", endpoint)
		}
		host = u.Host
		if u.Path != "" && u.Path != "/" {
			path = u.Path
		}
		switch u.Scheme {
		case "http":
			insecure = true
		case "https":
		default:
			return nil, fmt.Errorf("invalid url scheme: %s", endpoint)
		}
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithURLPath(path),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts, nil
}

type contextKey string

// a context key that cannot possibly collide with any other keys
var blockContextKey contextKey = BlockAttrKey

// SetBlock records the experiment block running under ctx. Spans started
// with the returned context are stamped with it.
//
// The block is stored both as a context value and as W3C baggage so it
// survives process boundaries.
func SetBlock(ctx context.Context, name string) context.Context {
	ctx = context.WithValue(ctx, blockContextKey, name)

	member, err := baggage.NewMemberRaw(BlockAttrKey, name)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// GetBlock returns the block set on ctx, checking the context value before
// baggage.
func GetBlock(ctx context.Context) (string, bool) {
	if name, ok := ctx.Value(blockContextKey).(string); ok {
		return name, true
	}
	if name := baggage.FromContext(ctx).Member(BlockAttrKey).Value(); name != "" {
		return name, true
	}
	return "", false
}

// DropSpansNamed returns a filter that drops non-root spans with any of the given names.
func DropSpansNamed(names ...string) SpanFilterFunc {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	return func(span sdktrace.ReadOnlySpan) int {
		if drop[span.Name()] {
			return -1
		}
		return 0
	}
}

// SpanProcessor stamps spans and forwards those kept by its filters.
type SpanProcessor struct {
	wrapped sdktrace.SpanProcessor
	filters []SpanFilterFunc
	always  []attribute.KeyValue
	runID   string
	logger  logger.Logger
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

func newSpanProcessor(wrapped sdktrace.SpanProcessor, project, runID string, filters []SpanFilterFunc, log logger.Logger) *SpanProcessor {
	always := []attribute.KeyValue{attribute.String(RunAttrKey, runID)}
	if project != "" {
		always = append(always, attribute.String(ProjectAttrKey, project))
	}
	return &SpanProcessor{
		wrapped: wrapped,
		filters: filters,
		always:  always,
		runID:   runID,
		logger:  log,
	}
}

// RunID returns the run ID stamped on spans.
func (sp *SpanProcessor) RunID() string {
	return sp.runID
}

// OnStart stamps the run attributes and the block from the context.
func (sp *SpanProcessor) OnStart(ctx context.Context, span sdktrace.ReadWriteSpan) {
	span.SetAttributes(sp.always...)
	if !hasAttr(span, BlockAttrKey) {
		if block, ok := GetBlock(ctx); ok {
			span.SetAttributes(attribute.String(BlockAttrKey, block))
		}
	}
	if sp.wrapped != nil {
		sp.wrapped.OnStart(ctx, span)
	}
}

// OnEnd forwards the span unless a filter drops it.
func (sp *SpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if sp.wrapped != nil && sp.shouldForwardSpan(span) {
		sp.wrapped.OnEnd(span)
	}
}

// shouldForwardSpan keeps root spans; otherwise the first filter with an
// opinion decides, and the default is to keep.
func (sp *SpanProcessor) shouldForwardSpan(span sdktrace.ReadOnlySpan) bool {
	if !span.Parent().IsValid() {
		return true
	}
	for _, filter := range sp.filters {
		switch result := filter(span); {
		case result > 0:
			return true
		case result < 0:
			return false
		}
	}
	return true
}

// Shutdown shuts down the wrapped processor.
func (sp *SpanProcessor) Shutdown(ctx context.Context) error {
	if sp.wrapped == nil {
		return nil
	}
	return sp.wrapped.Shutdown(ctx)
}

// ForceFlush flushes the wrapped processor.
func (sp *SpanProcessor) ForceFlush(ctx context.Context) error {
	if sp.wrapped == nil {
		return nil
	}
	return sp.wrapped.ForceFlush(ctx)
}

func hasAttr(span sdktrace.ReadWriteSpan, key attribute.Key) bool {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return true
		}
	}
	return false
}
