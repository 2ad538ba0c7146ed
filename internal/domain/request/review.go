package request

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/symptra/symptra/internal/platform/auth"
	"github.com/symptra/symptra/internal/platform/telemetry"
)

// MaxNotesLength bounds reviewNotes in characters.
const MaxNotesLength = 2000

// DecisionListener observes every successful decision. Listeners run after
// the transition is stored and cannot affect it.
type DecisionListener interface {
	OnDecision(ctx context.Context, r *Request)
}

type ListenerFunc func(ctx context.Context, r *Request)

func (f ListenerFunc) OnDecision(ctx context.Context, r *Request) { f(ctx, r) }

// OnApproved adapts fn into a listener that only sees approved requests,
// e.g. account provisioning for user_registration.
func OnApproved(fn func(ctx context.Context, r *Request)) DecisionListener {
	return ListenerFunc(func(ctx context.Context, r *Request) {
		if r.Status == StatusApproved {
			fn(ctx, r)
		}
	})
}

// ReviewEngine applies approve and reject decisions to pending requests.
type ReviewEngine struct {
	store   Store
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	mu        sync.RWMutex
	listeners []DecisionListener
	inflight  sync.WaitGroup
}

func NewReviewEngine(store Store, logger zerolog.Logger) *ReviewEngine {
	return &ReviewEngine{store: store, logger: logger}
}

func (e *ReviewEngine) SetMetrics(m *telemetry.Metrics) { e.metrics = m }

// Subscribe registers l for every future decision.
func (e *ReviewEngine) Subscribe(l DecisionListener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

func (e *ReviewEngine) Approve(ctx context.Context, p *auth.Principal, id uuid.UUID, notes *string) (*Request, error) {
	return e.Decide(ctx, p, id, DecisionApprove, notes)
}

func (e *ReviewEngine) Reject(ctx context.Context, p *auth.Principal, id uuid.UUID, notes *string) (*Request, error) {
	return e.Decide(ctx, p, id, DecisionReject, notes)
}

// Decide moves a pending request to the status d produces. A request that is
// no longer pending yields InvalidStateTransition and is left untouched.
func (e *ReviewEngine) Decide(ctx context.Context, p *auth.Principal, id uuid.UUID, d Decision, notes *string) (r *Request, err error) {
	ctx, end := startOp(ctx, e.metrics, string(d),
		attribute.String("request.id", id.String()),
		attribute.String("request.decision", string(d)))
	defer func() {
		end(err)
		if e.metrics != nil && d.Valid() {
			e.metrics.RequestsDecided.WithLabelValues(string(d), resultLabel(err)).Inc()
		}
	}()

	if !p.Authenticated() || !p.Has(auth.CanReview) {
		return nil, newError(KindForbidden, "reviewer capability required")
	}
	if !d.Valid() {
		return nil, malformed(FieldError{Field: "decision", Reason: "must be approve or reject"})
	}
	var text string
	if notes != nil {
		text = *notes
	}
	if utf8.RuneCountInString(text) > MaxNotesLength {
		return nil, malformed(FieldError{Field: "notes", Reason: "must be at most 2000 characters"})
	}

	next := d.Status()
	if err := checkTransition(StatusPending, next); err != nil {
		return nil, err
	}
	r, err = e.store.CompareAndSetStatus(ctx, id, StatusPending, next, p.ID, text)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("request_id", r.ID.String()).
		Str("type", string(r.Type)).
		Str("status", string(r.Status)).
		Str("reviewer", p.ID).
		Msg("request decided")

	e.dispatch(ctx, r)
	return r.Clone(), nil
}

// dispatch hands each listener its own copy of r without waiting. The
// listener context outlives the caller's request.
func (e *ReviewEngine) dispatch(ctx context.Context, r *Request) {
	e.mu.RLock()
	listeners := append([]DecisionListener(nil), e.listeners...)
	e.mu.RUnlock()

	bg := context.WithoutCancel(ctx)
	for _, l := range listeners {
		e.inflight.Add(1)
		go func(l DecisionListener, snapshot *Request) {
			defer e.inflight.Done()
			defer func() {
				if rec := recover(); rec != nil {
					e.logger.Error().
						Interface("panic", rec).
						Str("request_id", snapshot.ID.String()).
						Msg("decision listener panicked")
				}
			}()
			l.OnDecision(bg, snapshot)
		}(l, r.Clone())
	}
}

// Wait blocks until every dispatched listener has returned. Used on
// shutdown and in tests.
func (e *ReviewEngine) Wait() {
	e.inflight.Wait()
}

// IsReplay reports whether err is the conflict a retry produces after the
// same reviewer already applied the same decision.
func IsReplay(err error, reviewerID string, d Decision) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindInvalidStateTransition || e.Current == nil {
		return false
	}
	cur := e.Current
	return cur.ReviewedBy != nil && *cur.ReviewedBy == reviewerID && cur.Status == d.Status()
}
