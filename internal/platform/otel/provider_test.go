package otel_test

import (
	"context"
	"testing"

	"github.com/louisbranch/folio/internal/platform/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("FOLIO_OTEL_ENDPOINT", "")
	t.Setenv("FOLIO_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("FOLIO_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("FOLIO_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export happens.
	t.Setenv("FOLIO_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("FOLIO_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestTracerStartsSpans(t *testing.T) {
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if span == nil {
		t.Fatal("expected span")
	}
}

func TestSetup_RejectsBadSampleRatio(t *testing.T) {
	t.Setenv("FOLIO_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("FOLIO_OTEL_ENABLED", "")
	t.Setenv("FOLIO_OTEL_SAMPLE_RATIO", "2")

	if _, err := otel.Setup(context.Background(), "test-service"); err == nil {
		t.Fatal("expected error for ratio above 1")
	}
}

func TestParseSampleRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "", want: 1},
		{in: " 0.25 ", want: 0.25},
		{in: "0", want: 0},
		{in: "-0.1", wantErr: true},
		{in: "half", wantErr: true},
	}
	for _, tt := range tests {
		got, err := otel.ParseSampleRatio(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseSampleRatio(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseSampleRatio(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
