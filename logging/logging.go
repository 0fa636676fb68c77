// Package logging records experiment scalars such as evaluation metrics.
//
// A Sink receives every scalar an experiment step logs. Sinks can be combined
// with Multi; the store package provides a persistent sqlite sink.
package logging

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/flambeai/flambe-go/logger"
)

// ScalarAttrPrefix prefixes the span attribute SpanSink sets for each tag.
const ScalarAttrPrefix = "flambe.scalar."

// Scalar is one logged value.
type Scalar struct {
	Tag        string
	Value      float64
	GlobalStep int
	Time       time.Time
}

// Sink receives scalars.
type Sink interface {
	LogScalar(ctx context.Context, s Scalar) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, s Scalar) error

// LogScalar calls f.
func (f SinkFunc) LogScalar(ctx context.Context, s Scalar) error {
	return f(ctx, s)
}

// Tag joins the non-empty parts of a scalar tag with single spaces, so an
// unset prefix leaves no leading space.
func Tag(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// Log writes a scalar stamped with the current time to sink.
func Log(ctx context.Context, sink Sink, tag string, value float64, step int) error {
	return sink.LogScalar(ctx, Scalar{Tag: tag, Value: value, GlobalStep: step, Time: time.Now()})
}

// LoggerSink writes scalars as info lines.
type LoggerSink struct {
	Logger logger.Logger
}

// NewLoggerSink returns a sink writing to log. A nil log discards.
func NewLoggerSink(log logger.Logger) *LoggerSink {
	if log == nil {
		log = logger.Discard()
	}
	return &LoggerSink{Logger: log}
}

// LogScalar logs the scalar.
func (s *LoggerSink) LogScalar(_ context.Context, sc Scalar) error {
	s.Logger.Info("scalar", "tag", sc.Tag, "value", sc.Value, "step", sc.GlobalStep)
	return nil
}

// SpanSink records scalars on the span active in the context, as a "scalar"
// event and as a flambe.scalar.<tag> attribute.
type SpanSink struct{}

// LogScalar annotates the current span. It is a no-op without a recording span.
func (SpanSink) LogScalar(ctx context.Context, sc Scalar) error {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	span.AddEvent("scalar", oteltrace.WithAttributes(
		attribute.String("tag", sc.Tag),
		attribute.Float64("value", sc.Value),
		attribute.Int("global_step", sc.GlobalStep),
	))
	span.SetAttributes(attribute.Float64(ScalarAttrPrefix+sc.Tag, sc.Value))
	return nil
}

// Multi fans a scalar out to every sink. All sinks are called; their errors
// are joined.
func Multi(sinks ...Sink) Sink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return multiSink(kept)
}

type multiSink []Sink

func (m multiSink) LogScalar(ctx context.Context, sc Scalar) error {
	var errs []error
	for _, s := range m {
		if err := s.LogScalar(ctx, sc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Default is the sink used when none is configured: log lines plus span annotations.
func Default(log logger.Logger) Sink {
	return Multi(NewLoggerSink(log), SpanSink{})
}
