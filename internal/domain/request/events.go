package request

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/symptra/symptra/internal/platform/events"
)

// Event types published for decisions.
const (
	EventApproved = "request.approved"
	EventRejected = "request.rejected"
)

// EventForwarder is a DecisionListener that publishes each decision with
// the full request record. Failures are logged and dropped.
type EventForwarder struct {
	pub    events.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewEventForwarder(pub events.Publisher, logger zerolog.Logger) *EventForwarder {
	return &EventForwarder{pub: pub, logger: logger, now: time.Now}
}

// EventFor builds the event announcing r's current status.
func EventFor(r *Request, at time.Time) (events.Event, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return events.Event{}, err
	}
	typ := EventRejected
	if r.Status == StatusApproved {
		typ = EventApproved
	}
	return events.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Subject:    r.ID.String(),
		OccurredAt: at.UTC(),
		Data:       data,
	}, nil
}

func (f *EventForwarder) OnDecision(ctx context.Context, r *Request) {
	evt, err := EventFor(r, f.now())
	if err != nil {
		f.logger.Error().Err(err).Str("request_id", r.ID.String()).Msg("encode decision event")
		return
	}
	if err := f.pub.Publish(ctx, evt); err != nil {
		f.logger.Warn().Err(err).
			Str("request_id", r.ID.String()).
			Str("event_type", evt.Type).
			Msg("publish decision event")
	}
}
