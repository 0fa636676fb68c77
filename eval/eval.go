// Package eval implements the evaluation block of an experiment.
//
// An Evaluator takes a dataset and a trained model, runs a single inference
// pass over one split and scores the concatenated predictions with a metric.
// It is a single step component: Run always reports that it is done.
package eval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/flambeai/flambe-go/component"
	"github.com/flambeai/flambe-go/dataset"
	"github.com/flambeai/flambe-go/internal/otelutil"
	"github.com/flambeai/flambe-go/logger"
	"github.com/flambeai/flambe-go/logging"
	"github.com/flambeai/flambe-go/metric"
	"github.com/flambeai/flambe-go/nn"
	"github.com/flambeai/flambe-go/sampler"
	"github.com/flambeai/flambe-go/tensor"
)

var (
	errEval    = errors.New("eval error")
	errSampler = errors.New("sampler error")
	errForward = errors.New("forward error")
	errMetric  = errors.New("metric error")
	errLog     = errors.New("log error")
)

var (
	// ErrForward wraps failures of the model's forward pass.
	ErrForward = errForward

	// ErrMetric wraps failures while concatenating or scoring predictions.
	ErrMetric = errMetric

	// ErrNoBatches is returned when the evaluation split yields no batches.
	ErrNoBatches = errors.New("eval: no batches to evaluate")
)

// Evaluator runs one evaluation pass. It implements component.Component.
type Evaluator struct {
	model    nn.Module
	metricFn metric.Metric
	sampler  sampler.Sampler
	evalData string
	data     []dataset.Example
	device   tensor.Device
	sink     logging.Sink
	tracer   oteltrace.Tracer
	logger   logger.Logger

	mu         sync.Mutex
	logPrefix  string
	evalMetric float64
	hasMetric  bool
}

var _ component.Component = (*Evaluator)(nil)

// New creates an Evaluator for model on the split of ds selected by
// WithEvalData (test by default).
func New(ds dataset.Dataset, model nn.Module, metricFn metric.Metric, opts ...Option) (*Evaluator, error) {
	switch {
	case ds == nil:
		return nil, fmt.Errorf("%w: dataset is required", errEval)
	case model == nil:
		return nil, fmt.Errorf("%w: model is required", errEval)
	case metricFn == nil:
		return nil, fmt.Errorf("%w: metric is required", errEval)
	}

	e := &Evaluator{
		model:    model,
		metricFn: metricFn,
		evalData: dataset.SplitTest,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sampler == nil {
		e.sampler = sampler.NewBaseSampler(sampler.WithBatchSize(16))
	}
	if e.device == "" {
		e.device = tensor.DefaultDevice()
	}
	if e.logger == nil {
		e.logger = logger.NewDefaultLogger()
	}
	if e.sink == nil {
		e.sink = logging.Default(e.logger)
	}
	if e.tracer == nil {
		e.tracer = otel.GetTracerProvider().Tracer("flambe.eval")
	}

	data, err := dataset.Split(ds, e.evalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errEval, err)
	}
	e.data = data
	return e, nil
}

// Run evaluates the model once and logs the metric. It never asks to be
// run again, so the returned bool is always false.
func (e *Evaluator) Run(ctx context.Context, blockName string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "eval", oteltrace.WithAttributes(
		attribute.String("flambe.eval.data", e.evalData),
		attribute.String("flambe.eval.device", string(e.device)),
		attribute.String("flambe.eval.metric", e.metricFn.String()),
		attribute.Int("flambe.eval.examples", len(e.data)),
	))
	defer span.End()

	value, err := e.run(ctx)
	if err != nil {
		recordSpanError(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Float64("flambe.eval.value", value))
	logger.With(e.logger, "block", blockName).Debug("evaluation finished", "metric", e.metricFn.String(), "value", value)
	return false, nil
}

func (e *Evaluator) run(ctx context.Context) (float64, error) {
	if err := e.model.To(e.device); err != nil {
		return 0, fmt.Errorf("%w: move model to %s: %w", errEval, e.device, err)
	}
	e.model.Eval()

	it, err := e.sampler.Sample(e.data)
	if errors.Is(err, sampler.ErrNoExamples) {
		return 0, fmt.Errorf("%w: %w: split %q is empty", errEval, ErrNoBatches, e.evalData)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSampler, err)
	}

	var preds, targets []*tensor.Tensor
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: batch %d: %w", errSampler, i, err)
		}

		pred, target, err := e.forward(ctx, i, batch)
		if err != nil {
			return 0, err
		}
		preds = append(preds, pred)
		targets = append(targets, target)
	}
	if len(preds) == 0 {
		return 0, fmt.Errorf("%w: %w: split %q", errEval, ErrNoBatches, e.evalData)
	}

	value, err := e.score(ctx, preds, targets)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.evalMetric, e.hasMetric = value, true
	prefix := e.logPrefix
	e.mu.Unlock()

	tag := logging.Tag(prefix, "Eval", e.metricFn.String())
	if err := logging.Log(ctx, e.sink, tag, value, 0); err != nil {
		return value, fmt.Errorf("%w: %q: %w", errLog, tag, err)
	}
	return value, nil
}

// forward runs the model on one batch and returns its outputs on the CPU.
func (e *Evaluator) forward(ctx context.Context, index int, batch sampler.Batch) (*tensor.Tensor, *tensor.Tensor, error) {
	attrs := []attribute.KeyValue{attribute.Int("flambe.batch.index", index)}
	if len(batch) > 0 {
		attrs = append(attrs, attribute.Int("flambe.batch.size", batch[0].Len()))
	}
	ctx, span := e.tracer.Start(ctx, "batch", oteltrace.WithAttributes(attrs...))
	defer span.End()

	inputs := make([]*tensor.Tensor, len(batch))
	for i, t := range batch {
		inputs[i] = t.To(e.device)
	}

	pred, target, err := e.model.Forward(ctx, inputs...)
	if err == nil && (pred == nil || target == nil) {
		err = errors.New("model returned a nil prediction or target")
	}
	if err != nil {
		werr := fmt.Errorf("%w: batch %d: %w", errForward, index, err)
		recordSpanError(span, werr)
		return nil, nil, werr
	}
	return pred.CPU(), target.CPU(), nil
}

// score concatenates the batch outputs along dimension 0 and computes the metric.
func (e *Evaluator) score(ctx context.Context, preds, targets []*tensor.Tensor) (float64, error) {
	_, span := e.tracer.Start(ctx, "metric", oteltrace.WithAttributes(
		attribute.String("flambe.metric.name", e.metricFn.String()),
		attribute.Int("flambe.metric.batches", len(preds)),
	))
	defer span.End()

	value, err := e.compute(preds, targets)
	if err != nil {
		recordSpanError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Float64("flambe.metric.value", value))
	return value, nil
}

func (e *Evaluator) compute(preds, targets []*tensor.Tensor) (float64, error) {
	pred, err := tensor.Cat(preds, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: concatenate predictions: %w", errMetric, err)
	}
	target, err := tensor.Cat(targets, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: concatenate targets: %w", errMetric, err)
	}

	out, err := e.metricFn.Compute(pred, target)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errMetric, e.metricFn, err)
	}
	value, err := out.Item()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errMetric, e.metricFn, err)
	}
	return value, nil
}

// Metric returns the metric computed by the last successful Run. It
// reports false before then.
func (e *Evaluator) Metric() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evalMetric, e.hasMetric
}

// SetLogPrefix sets the prefix of the logged scalar tag.
func (e *Evaluator) SetLogPrefix(prefix string) {
	e.mu.Lock()
	e.logPrefix = prefix
	e.mu.Unlock()
}

// Device returns the device the evaluation runs on.
func (e *Evaluator) Device() tensor.Device {
	return e.device
}

// EvalData returns the name of the evaluated split.
func (e *Evaluator) EvalData() string {
	return e.evalData
}

func recordSpanError(span oteltrace.Span, err error) {
	// name the sentinel instead of the *fmt.wrapErrors type
	var errType string
	switch {
	case errors.Is(err, ErrNoBatches):
		errType = "ErrNoBatches"
	case errors.Is(err, errForward):
		errType = "ErrForward"
	case errors.Is(err, errMetric):
		errType = "ErrMetric"
	case errors.Is(err, errSampler):
		errType = "ErrSampler"
	case errors.Is(err, errLog):
		errType = "ErrLog"
	case errors.Is(err, errEval):
		errType = "ErrEval"
	default:
		errType = fmt.Sprintf("%T", err)
	}
	otelutil.RecordError(span, errType, err)
}
