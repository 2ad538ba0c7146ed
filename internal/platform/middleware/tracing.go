package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing opens an otelhttp server span per request, continuing any W3C
// trace context the caller sent. Once routing is known the span is renamed
// to the route template and tagged with the request id.
//
// Errors are rendered inside the span so the recorded status code is the
// one the caller sees; outer middleware therefore receives nil.
func Tracing(serviceName string, opts ...otelhttp.Option) echo.MiddlewareFunc {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}, opts...)
	server := echo.WrapMiddleware(otelhttp.NewMiddleware(serviceName, opts...))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return server(func(c echo.Context) error {
			span := trace.SpanFromContext(c.Request().Context())
			if route := c.Path(); route != "" {
				span.SetName(c.Request().Method + " " + route)
				span.SetAttributes(attribute.String("http.route", route))
			}
			if rid, ok := c.Get("request_id").(string); ok {
				span.SetAttributes(attribute.String("request.id", rid))
			}
			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		})
	}
}
