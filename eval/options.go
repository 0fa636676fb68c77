package eval

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/flambeai/flambe-go/logger"
	"github.com/flambeai/flambe-go/logging"
	"github.com/flambeai/flambe-go/sampler"
	"github.com/flambeai/flambe-go/tensor"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSampler sets the sampler over the evaluation split. The default is a
// BaseSampler with batch size 16 and no shuffling.
func WithSampler(s sampler.Sampler) Option {
	return func(e *Evaluator) { e.sampler = s }
}

// WithEvalData selects the split to evaluate: train, val or test (default).
func WithEvalData(split string) Option {
	return func(e *Evaluator) { e.evalData = split }
}

// WithDevice sets the device. The default is CUDA when available, else CPU.
func WithDevice(d tensor.Device) Option {
	return func(e *Evaluator) { e.device = d }
}

// WithLogPrefix sets the prefix of the logged scalar tag.
func WithLogPrefix(prefix string) Option {
	return func(e *Evaluator) { e.logPrefix = prefix }
}

// WithSink sets where the evaluation scalar is logged.
func WithSink(s logging.Sink) Option {
	return func(e *Evaluator) { e.sink = s }
}

// WithTracer sets the tracer.
func WithTracer(t oteltrace.Tracer) Option {
	return func(e *Evaluator) { e.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}
