// Package telemetry exports a run's event stream as OpenTelemetry
// spans over OTLP. The run becomes the root span, each iteration a
// child span, each phase event a leaf. Export is post-hoc: it reads
// the persisted stream, so the loop carries no tracing hooks.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/runloop/internal/runlog"
)

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string            `json:"endpoint"`               // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS for local dev
	ServiceName string            `json:"service_name,omitempty"` // default "runloop"
	Headers     map[string]string `json:"headers,omitempty"`      // auth tokens etc.
}

// Exporter sends run event streams to an OTLP backend.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "runloop"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // grpc
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	return &Exporter{provider: tp, tracer: tp.Tracer("runloop")}, nil
}

// ExportRun emits the span tree for one run's event stream.
func (e *Exporter) ExportRun(ctx context.Context, runID, status string, events []runlog.Event) {
	if e == nil || len(events) == 0 {
		return
	}

	start, end := spanBounds(events)
	rootCtx, root := e.tracer.Start(ctx, "run "+runID,
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("runloop.run_id", runID),
			attribute.String("runloop.status", status),
			attribute.Int("runloop.events", len(events)),
		),
	)

	for _, group := range groupByIteration(events) {
		gStart, gEnd := spanBounds(group.events)
		iterCtx, iterSpan := e.tracer.Start(rootCtx,
			fmt.Sprintf("iteration %d", group.iteration),
			trace.WithTimestamp(gStart),
			trace.WithAttributes(attribute.Int("runloop.iteration", group.iteration)),
		)
		for _, ev := range group.events {
			_, span := e.tracer.Start(iterCtx, ev.Phase,
				trace.WithTimestamp(ev.TS),
				trace.WithAttributes(eventAttrs(ev)...),
			)
			if ev.Status == runlog.StatusError {
				span.SetStatus(codes.Error, ev.Summary)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End(trace.WithTimestamp(ev.TS))
		}
		iterSpan.End(trace.WithTimestamp(gEnd))
	}

	if status == "failed" {
		root.SetStatus(codes.Error, status)
	} else {
		root.SetStatus(codes.Ok, "")
	}
	root.End(trace.WithTimestamp(end))
}

// Shutdown flushes buffered spans and releases the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}

type iterationGroup struct {
	iteration int
	events    []runlog.Event
}

// groupByIteration splits the stream into per-iteration groups,
// preserving stream order within and across groups.
func groupByIteration(events []runlog.Event) []iterationGroup {
	var groups []iterationGroup
	byIter := map[int]int{}
	for _, ev := range events {
		idx, ok := byIter[ev.Iteration]
		if !ok {
			idx = len(groups)
			byIter[ev.Iteration] = idx
			groups = append(groups, iterationGroup{iteration: ev.Iteration})
		}
		groups[idx].events = append(groups[idx].events, ev)
	}
	return groups
}

func eventAttrs(ev runlog.Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("runloop.seq", ev.Seq),
		attribute.String("runloop.phase", ev.Phase),
		attribute.String("runloop.status", ev.Status),
	}
	if ev.Summary != "" {
		summary := ev.Summary
		if len(summary) > 500 {
			summary = summary[:500] + "..."
		}
		attrs = append(attrs, attribute.String("runloop.summary", summary))
	}
	return attrs
}

func spanBounds(events []runlog.Event) (time.Time, time.Time) {
	start, end := events[0].TS, events[0].TS
	for _, ev := range events {
		if ev.TS.Before(start) {
			start = ev.TS
		}
		if ev.TS.After(end) {
			end = ev.TS
		}
	}
	return start, end
}
