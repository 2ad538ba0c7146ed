package request

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/symptra/symptra/internal/platform/auth"
	"github.com/symptra/symptra/internal/platform/telemetry"
)

// Views are the read-side projections for submitters and reviewers. They
// read straight from the store, so every call sees the latest committed
// state.
type Views struct {
	store   Store
	metrics *telemetry.Metrics
}

func NewViews(store Store) *Views {
	return &Views{store: store}
}

func (v *Views) SetMetrics(m *telemetry.Metrics) { v.metrics = m }

// MyRequests lists what p submitted, optionally narrowed to opts.Types.
func (v *Views) MyRequests(ctx context.Context, p *auth.Principal, opts ListOptions) (items []*Request, total int, err error) {
	ctx, end := startOp(ctx, v.metrics, "list_mine")
	defer func() { end(err) }()

	if !p.Authenticated() {
		return nil, 0, newError(KindUnauthenticatedSubmitter, "a signed-in submitter is required")
	}
	return v.store.ListBySubmitter(ctx, p.ID, normalizeOpts(opts))
}

// PendingQueue lists requests awaiting a decision.
func (v *Views) PendingQueue(ctx context.Context, p *auth.Principal, opts ListOptions) ([]*Request, int, error) {
	return v.ListByStatus(ctx, p, StatusPending, opts)
}

// ListByStatus lists requests in status; an empty status lists all of them.
func (v *Views) ListByStatus(ctx context.Context, p *auth.Principal, status Status, opts ListOptions) (items []*Request, total int, err error) {
	ctx, end := startOp(ctx, v.metrics, "list_status", attribute.String("request.status", string(status)))
	defer func() { end(err) }()

	if !p.Has(auth.CanViewQueue) {
		return nil, 0, newError(KindForbidden, "queue access required")
	}
	if status != "" && !status.Valid() {
		return nil, 0, malformed(FieldError{Field: "status", Reason: "must be pending, approved or rejected"})
	}
	return v.store.ListByStatus(ctx, status, normalizeOpts(opts))
}

// Get returns one request to its submitter or to a queue viewer. Anyone
// else gets NotFound so ids of other users' requests cannot be discovered.
func (v *Views) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (r *Request, err error) {
	ctx, end := startOp(ctx, v.metrics, "get", attribute.String("request.id", id.String()))
	defer func() { end(err) }()

	if !p.Authenticated() {
		return nil, newError(KindUnauthenticatedSubmitter, "a signed-in caller is required")
	}
	r, err = v.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.SubmittedBy != p.ID && !p.Has(auth.CanViewQueue) {
		return nil, newError(KindNotFound, "request %s not found", id)
	}
	return r, nil
}

func normalizeOpts(opts ListOptions) ListOptions {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}
