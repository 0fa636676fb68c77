// Package component runs experiment blocks.
//
// A Component is one step of an experiment, such as a trainer or an
// evaluator. The Runner calls a component's Run repeatedly until it reports
// that it is done, and then moves to the next block.
package component

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/flambeai/flambe-go/internal/otelutil"
	"github.com/flambeai/flambe-go/logger"
	"github.com/flambeai/flambe-go/trace"
)

// ErrMaxSteps is returned when a block still wants to continue after the
// runner's step limit.
var ErrMaxSteps = errors.New("component: step limit reached")

var errBlock = errors.New("block error")

// DefaultMaxSteps bounds how many times a block is run.
const DefaultMaxSteps = 10000

// Component is a step of an experiment.
type Component interface {
	// Run executes one step of the block. It returns true if the block
	// should be run again.
	Run(ctx context.Context, blockName string) (bool, error)
	// Metric returns the component's latest metric, if it has one.
	Metric() (float64, bool)
}

// Block is a named component.
type Block struct {
	Name      string
	Component Component
}

// Runner executes blocks in order.
type Runner struct {
	tracer   oteltrace.Tracer
	logger   logger.Logger
	maxSteps int
	out      io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithTracer sets the tracer used for block spans.
func WithTracer(t oteltrace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithLogger sets the runner's logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMaxSteps bounds the number of steps per block. Values below one are ignored.
func WithMaxSteps(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithOutput prints the result summary to w after every Run. A nil writer
// disables the summary.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// NewRunner creates a Runner. The summary is printed to stdout by default.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		maxSteps: DefaultMaxSteps,
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.GetTracerProvider().Tracer("flambe.component")
	}
	if r.logger == nil {
		r.logger = logger.NewDefaultLogger()
	}
	return r
}

// Run executes every block in order and stops at the first failure.
// The returned Result is non-nil even when err is not.
func (r *Runner) Run(ctx context.Context, blocks ...Block) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var err error
	for _, b := range blocks {
		br, berr := r.runBlock(ctx, b)
		result.Blocks = append(result.Blocks, br)
		if berr != nil {
			err = berr
			break
		}
	}

	result.err = err
	result.elapsed = time.Since(start)
	if r.out != nil {
		fmt.Fprintln(r.out, result.String())
	}
	return result, err
}

func (r *Runner) runBlock(ctx context.Context, b Block) (BlockResult, error) {
	start := time.Now()
	br := BlockResult{Name: b.Name}
	ctx = trace.SetBlock(ctx, b.Name)
	log := logger.With(r.logger, "block", b.Name)

	var errs []error
	for br.Steps < r.maxSteps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		more, err := r.step(ctx, b, br.Steps)
		br.Steps++
		if err != nil {
			errs = append(errs, err)
			break
		}
		if !more {
			break
		}
		if br.Steps == r.maxSteps {
			errs = append(errs, fmt.Errorf("%w: block %q ran %d steps", ErrMaxSteps, b.Name, r.maxSteps))
		}
	}

	br.Metric, br.HasMetric = b.Component.Metric()
	br.Elapsed = time.Since(start)
	br.Err = errors.Join(errs...)
	if br.HasMetric {
		log.Debug("block finished", "steps", br.Steps, "metric", br.Metric)
	}
	return br, br.Err
}

func (r *Runner) step(ctx context.Context, b Block, n int) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "block:"+b.Name, oteltrace.WithAttributes(
		attribute.String(trace.BlockAttrKey, b.Name),
		attribute.Int("flambe.step", n),
	))
	defer span.End()

	more, err := b.Component.Run(ctx, b.Name)
	if err != nil {
		werr := fmt.Errorf("%w: %q step %d: %w", errBlock, b.Name, n, err)
		otelutil.RecordError(span, "ErrBlock", werr)
		return false, werr
	}
	span.SetAttributes(attribute.Bool("flambe.continue", more))
	return more, nil
}

// BlockResult summarizes one block.
type BlockResult struct {
	Name      string
	Steps     int
	Metric    float64
	HasMetric bool
	Elapsed   time.Duration
	Err       error
}

// Result contains the outcome of a Runner.Run.
type Result struct {
	Blocks  []BlockResult
	err     error
	elapsed time.Duration
}

// Error returns the error that stopped the run, if any.
func (r *Result) Error() error {
	return r.err
}

// Elapsed returns the wall time of the run.
func (r *Result) Elapsed() time.Duration {
	return r.elapsed
}

// Metric returns the metric of the named block.
func (r *Result) Metric(block string) (float64, bool) {
	for _, b := range r.Blocks {
		if b.Name == block {
			return b.Metric, b.HasMetric
		}
	}
	return 0, false
}

// String returns a summary for printing on the console.
//
// The format it prints will change and shouldn't be relied on for programmatic use.
func (r *Result) String() string {
	lines := []string{
		"",
		"=== Experiment ===",
		fmt.Sprintf("Duration: %.1fs", r.elapsed.Seconds()),
	}
	for _, b := range r.Blocks {
		metric := "-"
		if b.HasMetric {
			metric = fmt.Sprintf("%.4f", b.Metric)
		}
		lines = append(lines, fmt.Sprintf("Block %s: steps=%d metric=%s (%.1fs)", b.Name, b.Steps, metric, b.Elapsed.Seconds()))
	}
	if r.err != nil {
		lines = append(lines, "Errors:", "  "+r.err.Error())
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}
