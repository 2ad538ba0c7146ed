package request

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/symptra/symptra/internal/platform/auth"
	"github.com/symptra/symptra/internal/platform/telemetry"
)

// Factory validates submissions and persists them as pending requests. It
// is the only writer of new records.
type Factory struct {
	store    Store
	payloads *PayloadValidator
	now      func() time.Time
	metrics  *telemetry.Metrics
}

func NewFactory(store Store, payloads *PayloadValidator) *Factory {
	return &Factory{store: store, payloads: payloads, now: time.Now}
}

// SetClock replaces the timestamp source used for createdAt/updatedAt.
func (f *Factory) SetClock(now func() time.Time) { f.now = now }

func (f *Factory) SetMetrics(m *telemetry.Metrics) { f.metrics = m }

// Submit checks, in order, the caller identity, its submit capability, the
// type and the payload. Nothing is written unless every check passes.
func (f *Factory) Submit(ctx context.Context, p *auth.Principal, sub Submission) (r *Request, err error) {
	ctx, end := startOp(ctx, f.metrics, "submit", attribute.String("request.type", string(sub.Type)))
	defer func() {
		end(err)
		if f.metrics != nil {
			f.metrics.RequestsSubmitted.WithLabelValues(typeLabel(sub.Type), resultLabel(err)).Inc()
		}
	}()

	if !p.Authenticated() {
		return nil, newError(KindUnauthenticatedSubmitter, "a signed-in submitter is required")
	}
	if !p.Has(auth.CanSubmit) {
		return nil, newError(KindForbidden, "principal %s may not submit requests", p.ID)
	}
	if !sub.Type.Valid() {
		return nil, newError(KindUnrecognizedType, "unrecognized request type %q", sub.Type)
	}

	_, data, err := f.payloads.Parse(sub.Type, sub.Data)
	if err != nil {
		return nil, err
	}

	// Postgres keeps microseconds; truncating here keeps the returned
	// record equal to what a later Get reads back.
	now := f.now().UTC().Truncate(time.Microsecond)
	r = &Request{
		ID:          uuid.New(),
		Type:        sub.Type,
		Data:        data,
		Status:      StatusPending,
		SubmittedBy: p.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// typeLabel keeps caller-supplied garbage out of metric label values.
func typeLabel(t Type) string {
	if t.Valid() {
		return string(t)
	}
	return "unrecognized"
}
