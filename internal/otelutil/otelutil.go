// Package otelutil holds span helpers shared by the evaluation packages.
package otelutil

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RecordError adds an exception event to span and marks it failed.
// errType names the error in the event; callers pass the sentinel name so
// wrapped errors are not reported as *fmt.wrapErrors.
func RecordError(span oteltrace.Span, errType string, err error) {
	span.AddEvent("exception", oteltrace.WithAttributes(
		attribute.String("exception.type", errType),
		attribute.String("exception.message", err.Error()),
	))
	span.SetStatus(codes.Error, err.Error())
}
