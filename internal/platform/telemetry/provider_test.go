package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Setup(ctx, Config{ServiceName: "clinic-test", Exporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, span := otel.Tracer("github.com/clinic/clinic/internal/domain/treatment").Start(ctx, "treatment.CreateTreatment")
	if !span.SpanContext().IsSampled() {
		t.Error("expected the span to be sampled")
	}
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "treatment.CreateTreatment") {
		t.Errorf("span not exported: %s", out)
	}
	if !strings.Contains(out, "clinic-test") {
		t.Errorf("service name missing from resource: %s", out)
	}
}

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), Config{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestMiddleware_SDKProviderJoinsIncomingTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	sr := tracetest.NewSpanRecorder()
	tp := NewProvider(Config{ServiceName: "clinic-test"}, sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var logs bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/treatments", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req = req.WithContext(zerolog.New(&logs).WithContext(req.Context()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/treatments")

	err := Middleware(tp)(func(c echo.Context) error {
		zerolog.Ctx(c.Request().Context()).Info().Msg("listing")
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "HTTP GET /api/treatments" {
		t.Errorf("span name = %q", s.Name())
	}
	if got := s.SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the incoming one", got)
	}
	if got := s.Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span id = %s", got)
	}
	if !strings.Contains(logs.String(), `"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736"`) {
		t.Errorf("trace id missing from request log: %s", logs.String())
	}
}
