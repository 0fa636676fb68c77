package flambe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/flambeai/flambe-go/component"
	"github.com/flambeai/flambe-go/config"
	"github.com/flambeai/flambe-go/dataset"
	"github.com/flambeai/flambe-go/eval"
	"github.com/flambeai/flambe-go/logger"
	"github.com/flambeai/flambe-go/logging"
	"github.com/flambeai/flambe-go/metric"
	"github.com/flambeai/flambe-go/nn"
	"github.com/flambeai/flambe-go/sampler"
	"github.com/flambeai/flambe-go/store"
	"github.com/flambeai/flambe-go/tensor"
	fltrace "github.com/flambeai/flambe-go/trace"
)

// Client holds the configuration, tracing and scalar logging shared by the
// blocks of one experiment run.
type Client struct {
	config         *config.Config
	logger         logger.Logger
	tracerProvider *trace.TracerProvider
	device         tensor.Device
	runID          string
	sink           logging.Sink
	store          *store.Store
}

// New creates a client with the provided TracerProvider.
//
// The TracerProvider is required and should be managed by the caller.
// The client will NOT shut down the provider - you must do this yourself.
//
// Configuration is loaded from environment variables first, then
// explicit options are applied (options take precedence).
//
// Example:
//
//	tp := trace.NewTracerProvider()
//	client, err := flambe.New(tp,
//	    flambe.WithProject("mnist"),
//	    flambe.WithScalarDB("scalars.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//	defer tp.Shutdown(context.Background())
func New(tp *trace.TracerProvider, opts ...Option) (*Client, error) {
	if tp == nil {
		return nil, fmt.Errorf("tracer provider is required")
	}

	cfg := config.FromEnv()
	for _, opt := range opts {
		opt(cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
		cfg.Logger = log
	}

	device := tensor.DefaultDevice()
	if cfg.Device != "" {
		d, err := tensor.ParseDevice(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("invalid device: %w", err)
		}
		device = d
	}

	log.Debug("initializing flambe client",
		"project", cfg.ProjectName,
		"device", device,
		"eval_data", cfg.EvalData,
		"exporter", cfg.OtelExporter)

	ctx := context.Background()
	sinks := []logging.Sink{logging.Default(log)}
	tc := fltrace.FromConfig(cfg)

	var db *store.Store
	if cfg.ScalarDB != "" {
		s, err := store.NewStore(cfg.ScalarDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open scalar db: %w", err)
		}
		run, err := s.NewRun(ctx, cfg.ProjectName)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to register run: %w", err)
		}
		db = s
		tc.RunID = run.ID
		sinks = append(sinks, run)
		log.Debug("logging scalars to sqlite", "path", cfg.ScalarDB, "run_id", run.ID)
	}

	processor, err := fltrace.GetSpanProcessor(ctx, tc)
	if err != nil {
		if db != nil {
			db.Close()
		}
		log.Error("failed to setup tracing", "error", err)
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}
	tp.RegisterSpanProcessor(processor)

	client := &Client{
		config:         cfg,
		logger:         log,
		tracerProvider: tp,
		device:         device,
		runID:          processor.RunID(),
		store:          db,
	}
	client.sink = logging.Multi(sinks...)

	return client, nil
}

// Close releases the scalar store, if one is open. It does not shut down
// the tracer provider.
func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// String returns a string representation of the client
func (c *Client) String() string {
	db := c.config.ScalarDB
	if db == "" {
		db = "<disabled>"
	}
	return fmt.Sprintf(`Flambe Client:
  Project: %s
  Device: %s
  Eval Data: %s
  Scalar DB: %s
  Exporter: %s`,
		c.config.ProjectName,
		c.device,
		c.config.EvalData,
		db,
		c.config.OtelExporter,
	)
}

// Config returns the client's configuration.
func (c *Client) Config() *config.Config {
	return c.config
}

// RunID returns the identifier of this run. Scalars in the scalar DB are
// keyed by it.
func (c *Client) RunID() string {
	return c.runID
}

// Store returns the scalar store, or nil when FLAMBE_SCALAR_DB is unset.
func (c *Client) Store() *store.Store {
	return c.store
}

// Sink returns the sink scalars are logged to.
func (c *Client) Sink() logging.Sink {
	return c.sink
}

// TracerProvider returns the OpenTelemetry TracerProvider used by this client.
func (c *Client) TracerProvider() *trace.TracerProvider {
	return c.tracerProvider
}

// Tracer returns an OpenTelemetry Tracer with the given name.
// This is a convenience method equivalent to calling TracerProvider().Tracer(name, opts...).
func (c *Client) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	return c.tracerProvider.Tracer(name, opts...)
}

// NewEvaluator creates an evaluator configured from the client: device,
// split, batch size, log prefix, sink, tracer and logger. Explicit options
// take precedence.
//
// Example:
//
//	evaluator, err := client.NewEvaluator(ds, model, metric.Accuracy())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := client.Runner().Run(ctx, component.Block{Name: "eval", Component: evaluator})
func (c *Client) NewEvaluator(ds dataset.Dataset, model nn.Module, metricFn metric.Metric, opts ...eval.Option) (*eval.Evaluator, error) {
	defaults := []eval.Option{
		eval.WithDevice(c.device),
		eval.WithEvalData(c.config.EvalData),
		eval.WithSampler(sampler.NewBaseSampler(sampler.WithBatchSize(c.config.EvalBatchSize))),
		eval.WithLogPrefix(c.config.LogPrefix),
		eval.WithSink(c.sink),
		eval.WithTracer(c.Tracer("flambe.eval")),
		eval.WithLogger(c.logger),
	}
	return eval.New(ds, model, metricFn, append(defaults, opts...)...)
}

// Runner creates a block runner that traces through the client.
func (c *Client) Runner(opts ...component.Option) *component.Runner {
	defaults := []component.Option{
		component.WithTracer(c.Tracer("flambe.component")),
		component.WithLogger(c.logger),
	}
	return component.NewRunner(append(defaults, opts...)...)
}
