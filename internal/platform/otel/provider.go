// Package otel wires OpenTelemetry tracing for folio binaries.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	envEndpoint = "FOLIO_OTEL_ENDPOINT"
	envEnabled  = "FOLIO_OTEL_ENABLED"
	envRatio    = "FOLIO_OTEL_SAMPLE_RATIO"
)

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when FOLIO_OTEL_ENDPOINT is empty or FOLIO_OTEL_ENABLED
// is "false", Setup returns a no-op shutdown function and no global provider
// is registered. FOLIO_OTEL_SAMPLE_RATIO samples that fraction of root spans;
// children follow their parent.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if strings.EqualFold(os.Getenv(envEnabled), "false") {
		return noop, nil
	}

	endpoint := strings.TrimSpace(os.Getenv(envEndpoint))
	if endpoint == "" {
		return noop, nil
	}

	ratio, err := ParseSampleRatio(os.Getenv(envRatio))
	if err != nil {
		return noop, err
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/louisbranch/folio/" + name)
}

// ParseSampleRatio reads a sampling fraction. Empty means sample everything.
func ParseSampleRatio(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 1, nil
	}
	ratio, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", envRatio, err)
	}
	if ratio < 0 || ratio > 1 {
		return 0, fmt.Errorf("%s must be within [0, 1], got %v", envRatio, ratio)
	}
	return ratio, nil
}
