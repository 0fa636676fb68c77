// Package oteltest provides an in-memory span exporter and assertion helpers
// for verifying the spans emitted by evaluations and runners.
package oteltest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	attr "go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Setup installs a synchronous tracer provider that keeps spans in memory.
// It returns a Tracer and an Exporter used to flush the recorded spans.
// Extra span processors run before the exporter.
func Setup(t *testing.T, processors ...sdktrace.SpanProcessor) (oteltrace.Tracer, *Exporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors)+1)
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))

	tp := sdktrace.NewTracerProvider(opts...)
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Errorf("Error shutting down tracer provider: %v", err)
		}
		otel.SetTracerProvider(original)
	})

	return tp.Tracer(t.Name()), &Exporter{exporter: exporter, t: t}
}

// Exporter wraps the OTel InMemoryExporter.
type Exporter struct {
	exporter *tracetest.InMemoryExporter
	t        *testing.T
}

// Flush returns the finished spans in end order and clears the buffer.
func (e *Exporter) Flush() []Span {
	stubs := e.exporter.GetSpans()
	e.exporter.Reset()

	spans := make([]Span, len(stubs))
	for i, stub := range stubs {
		spans[i] = Span{t: e.t, Stub: stub}
	}
	return spans
}

// FlushOne returns the only buffered span and fails if there is not exactly one.
func (e *Exporter) FlushOne() Span {
	e.t.Helper()
	spans := e.Flush()
	if len(spans) != 1 {
		e.t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	return spans[0]
}

// Named filters spans by name, keeping their order.
func Named(spans []Span, name string) []Span {
	var out []Span
	for _, s := range spans {
		if s.Stub.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Span wraps an OTel SpanStub.
type Span struct {
	t    *testing.T
	Stub tracetest.SpanStub
}

// Name returns the span's name.
func (s *Span) Name() string {
	return s.Stub.Name
}

// Status returns the span's status.
func (s *Span) Status() sdktrace.Status {
	return s.Stub.Status
}

// Events returns the span's events.
func (s *Span) Events() []sdktrace.Event {
	return s.Stub.Events
}

// IsChildOf reports whether s was started under parent.
func (s *Span) IsChildOf(parent Span) bool {
	return s.Stub.Parent.SpanID() == parent.Stub.SpanContext.SpanID()
}

// AssertOK asserts the span did not record an error.
func (s *Span) AssertOK() {
	s.t.Helper()
	assert.NotEqual(s.t, codes.Error, s.Stub.Status.Code, "span %s has error status %q", s.Stub.Name, s.Stub.Status.Description)
}

// AssertErrored asserts the span has error status and an exception event
// whose message contains msg.
func (s *Span) AssertErrored(msg string) {
	s.t.Helper()
	assert.Equal(s.t, codes.Error, s.Stub.Status.Code, "span %s", s.Stub.Name)
	assert.Contains(s.t, s.Stub.Status.Description, msg)

	ev, ok := s.Event("exception")
	if assert.True(s.t, ok, "span %s has no exception event", s.Stub.Name) {
		assert.Contains(s.t, ev.Attrs["exception.message"], msg)
	}
}

// Event is a summary of an otel event.
type Event struct {
	Name  string
	Attrs map[string]any
}

// Event returns the first event with the given name.
func (s *Span) Event(name string) (Event, bool) {
	for _, e := range s.Stub.Events {
		if e.Name == name {
			return summarize(e), true
		}
	}
	return Event{}, false
}

// EventsNamed returns every event with the given name.
func (s *Span) EventsNamed(name string) []Event {
	var out []Event
	for _, e := range s.Stub.Events {
		if e.Name == name {
			out = append(out, summarize(e))
		}
	}
	return out
}

func summarize(e sdktrace.Event) Event {
	attrs := make(map[string]any, len(e.Attributes))
	for _, kv := range e.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	return Event{Name: e.Name, Attrs: attrs}
}

// AssertAttrEquals asserts that the attribute is equal to the expected value.
func (s *Span) AssertAttrEquals(key string, expected any) {
	s.t.Helper()
	s.Attr(key).AssertEquals(expected)
}

// Attrs returns all the span's attributes matching the key.
func (s *Span) Attrs(key string) []Attr {
	attrs := []Attr{}
	for _, kv := range s.Stub.Attributes {
		if string(kv.Key) == key {
			attrs = append(attrs, Attr{t: s.t, Key: key, Value: kv.Value})
		}
	}
	return attrs
}

// Attr returns the attribute matching the key and fails if there isn't
// exactly one.
func (s *Span) Attr(key string) Attr {
	s.t.Helper()
	attrs := s.Attrs(key)
	require.Len(s.t, attrs, 1, "attribute %s on span %s", key, s.Stub.Name)
	return attrs[0]
}

// HasAttr returns true if the span has at least one attribute with the given key.
func (s *Span) HasAttr(key string) bool {
	return len(s.Attrs(key)) > 0
}

// Attr wraps an OTel attribute value.
type Attr struct {
	t     *testing.T
	Key   string
	Value attr.Value
}

// String returns the attribute as a string and fails if it is not one.
func (a Attr) String() string {
	a.t.Helper()
	require.Equal(a.t, attr.STRING, a.Value.Type(), "attribute %s", a.Key)
	return a.Value.AsString()
}

// AssertEquals asserts that the attribute is equal to the expected value.
// Floats are compared with a small tolerance.
func (a Attr) AssertEquals(expected any) {
	a.t.Helper()
	switch v := expected.(type) {
	case string:
		assert.Equal(a.t, v, a.String())
	case int:
		assert.Equal(a.t, int64(v), a.Value.AsInt64(), "attribute %s", a.Key)
	case int64:
		assert.Equal(a.t, v, a.Value.AsInt64(), "attribute %s", a.Key)
	case float64:
		assert.InDelta(a.t, v, a.Value.AsFloat64(), 1e-6, "attribute %s", a.Key)
	case bool:
		assert.Equal(a.t, v, a.Value.AsBool(), "attribute %s", a.Key)
	case []string:
		assert.Equal(a.t, v, a.Value.AsStringSlice(), "attribute %s", a.Key)
	default:
		assert.Failf(a.t, "unsupported type", "expected type %T is not supported", expected)
	}
}

// testingT is the subset of testing.T used by the comparison helpers.
type testingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// AssertAttrs asserts the span carries at least the given attributes.
// Attributes not listed are ignored.
func (s *Span) AssertAttrs(expected map[string]any) {
	s.t.Helper()
	assertHasAttrs(s.t, s.Stub.Attributes, expected)
}

func assertHasAttrs(t testingT, got []attr.KeyValue, expected map[string]any) {
	t.Helper()
	values := make(map[string]any, len(got))
	for _, kv := range got {
		values[string(kv.Key)] = kv.Value.AsInterface()
	}
	for key, want := range expected {
		have, ok := values[key]
		if !ok {
			t.Errorf("missing expected attribute %s", key)
			continue
		}
		if fmt.Sprint(normalize(want)) != fmt.Sprint(have) {
			t.Errorf("attribute %s mismatch: expected %v, got %v", key, want, have)
		}
	}
}

// normalize maps Go values onto the types attribute.Value.AsInterface returns.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
