// Package telemetry sets up the OpenTelemetry SDK and traces HTTP requests.
// Setup registers the global TracerProvider; domain packages start spans
// through otel.Tracer and Fail.
package telemetry

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/clinic/clinic/internal/platform/telemetry"

// Middleware starts a server span per request, named after the route
// pattern, and marks it failed on 5xx. An incoming traceparent header becomes
// the span's parent. When the span is sampled its trace id is added to the
// request logger.
func Middleware(tp trace.TracerProvider) echo.MiddlewareFunc {
	tracer := tp.Tracer(instrumentationName)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			rid, _ := c.Get("request_id").(string)

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx, "HTTP "+req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("request.id", rid),
				))
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() && sc.IsSampled() {
				l := zerolog.Ctx(ctx).With().Str("trace_id", sc.TraceID().String()).Logger()
				ctx = l.WithContext(ctx)
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := statusOf(c, err)
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= http.StatusInternalServerError {
				Fail(span, err)
			}
			return err
		}
	}
}

// statusOf predicts the status the error handler will write.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Fail records err on span and marks the span as failed.
func Fail(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Error, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
