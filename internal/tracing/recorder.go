// Package tracing records analysis runs as OpenTelemetry spans.
// Without an installed provider the global no-op tracer is used, so
// recording is always safe to call.
package tracing

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/nextlevelbuilder/hedgewatch"
	previewMaxLen       = 500
)

// Run describes the analysis run a span is opened for.
type Run struct {
	ID     string
	Symbol string
	Agents []string
	Model  string
}

// Recorder opens one span per analysis run and annotates it as the
// stream progresses.
type Recorder struct {
	tracer trace.Tracer
}

// NewRecorder creates a recorder on tp. A nil tp uses the global provider,
// which the otel build replaces with the OTLP exporter.
func NewRecorder(tp trace.TracerProvider) *Recorder {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Recorder{tracer: tp.Tracer(instrumentationName)}
}

// StartRun opens the "analysis.run" span.
func (r *Recorder) StartRun(ctx context.Context, run Run) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, "analysis.run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("hedgewatch.run_id", run.ID),
			attribute.String("hedgewatch.symbol", run.Symbol),
			attribute.StringSlice("hedgewatch.agents", run.Agents),
			attribute.String("gen_ai.request.model", run.Model),
		),
	)
}

// AgentSeen adds an event for the first update of an agent.
func (r *Recorder) AgentSeen(span trace.Span, agent string) {
	if r == nil {
		return
	}
	span.AddEvent("agent.seen", trace.WithAttributes(attribute.String("hedgewatch.agent", agent)))
}

// EndRun sets the final status and ends the span.
func (r *Recorder) EndRun(span trace.Span, state string, frames, agents int, err error) {
	if r == nil {
		return
	}
	span.SetAttributes(
		attribute.String("hedgewatch.state", state),
		attribute.Int("hedgewatch.frames", frames),
		attribute.Int("hedgewatch.agent_count", agents),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, truncatePreview(err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// truncatePreview sanitizes and truncates a string to previewMaxLen bytes.
func truncatePreview(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= previewMaxLen {
		return s
	}
	maxLen := previewMaxLen
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
