// Package tracing wires the runtime's run/generation/tool span tree to an
// OpenTelemetry exporter. One root span per agentic-loop run, one child
// span per LLM generation and per tool execution.
//
// When telemetry is disabled Init is never called and every helper falls
// through to otel's global no-op tracer, so call sites never branch.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/agentrt/internal/config"
)

const tracerName = "github.com/nextlevelbuilder/agentrt"

// Init installs a TracerProvider exporting to the configured OTLP
// endpoint and returns a shutdown func the host must call on exit.
func Init(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	var exp *otlptrace.Exporter
	var err error

	switch cfg.Protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	case "http", "":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("tracing: unknown protocol %q", cfg.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentrt"
	}
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the runtime's named tracer from the global provider
// (the no-op provider when Init was never called).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartRun opens the root span for one agentic-loop run.
func StartRun(ctx context.Context, sessionKey, runID, taskType string, inputChars int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("session.key", sessionKey),
		attribute.String("run.id", runID),
		attribute.String("task.type", taskType),
		attribute.Int("input.chars", inputChars),
	))
}

// StartGeneration opens a child span for one LLM generation.
func StartGeneration(ctx context.Context, iteration int, model string, messageCount int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.Int("iteration", iteration),
		attribute.String("model", model),
		attribute.Int("messages", messageCount),
	))
}

// StartTool opens a child span for one tool execution.
func StartTool(ctx context.Context, toolName, callID string, argsLen int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", callID),
		attribute.Int("tool.args_len", argsLen),
	))
}

// EndSpan records status (and the error, if any) and ends the span.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordUsage attaches generation token counts to a span.
func RecordUsage(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int("tokens.prompt", promptTokens),
		attribute.Int("tokens.completion", completionTokens),
	)
}
