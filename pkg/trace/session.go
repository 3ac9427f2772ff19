package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span and event names of a live conversation
const (
	SpanSession = "live.session"
	SpanConnect = "live.connect"

	EventSessionOpen   = "session.open"
	EventInterrupted   = "session.interrupted"
	EventTurnComplete  = "session.turn_complete"
	EventSessionError  = "session.error"
	EventSessionClosed = "session.closed"
)

// InstrumentSession creates the root span of one live session
func InstrumentSession(ctx context.Context, sessionID, model, voice string) (context.Context, trace.Span) {
	attrs := append(SessionAttrs(sessionID), LiveAttrs(model, voice)...)
	return startSpan(ctx, SpanSession, trace.WithAttributes(attrs...))
}

// InstrumentConnect creates a span for opening the remote session
func InstrumentConnect(ctx context.Context, sessionID, transport string) (context.Context, trace.Span) {
	attrs := append(SessionAttrs(sessionID), attribute.String(AttrLiveTransport, transport))
	return startSpan(ctx, SpanConnect,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SessionError records err on span as a session error event
func SessionError(span trace.Span, kind string, err error) {
	if err == nil {
		return
	}
	AddEvent(span, EventSessionError, ErrorAttrs(kind, err.Error())...)
	RecordError(span, err)
}

// RecordError marks span failed with err.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// TraceID returns the trace id of the span in ctx, or "" when ctx carries
// no sampled span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
