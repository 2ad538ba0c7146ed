package request

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/symptra/symptra/internal/platform/telemetry"
)

var tracer = otel.Tracer("github.com/symptra/symptra/internal/domain/request")

// startOp opens a span for op. The returned func ends it, records the
// error kind on the span and observes the latency when metrics are set.
func startOp(ctx context.Context, m *telemetry.Metrics, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "request."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("request.error_kind", resultLabel(err)))
			if KindOf(err) == KindStoreUnavailable || KindOf(err) == "" {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		if m != nil {
			m.ObserveOp(op, start)
		}
	}
}

// resultLabel is the metrics label for an operation outcome.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
