package request

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/symptra/symptra/internal/platform/auth"
)

// fixedNow is the booking calendar's "today" in every test.
var fixedNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

func submitter(id string) *auth.Principal {
	return auth.NewPrincipal(id, []string{"user"}, auth.CanSubmit)
}

func reviewer(id string) *auth.Principal {
	return auth.NewPrincipal(id, []string{"admin"}, auth.CanSubmit, auth.CanReview, auth.CanViewQueue)
}

func newTestValidator(t *testing.T) *PayloadValidator {
	t.Helper()
	v, err := NewPayloadValidator(time.UTC, func() time.Time { return fixedNow })
	require.NoError(t, err)
	return v
}

// tickingClock returns a clock that advances one second per call so list
// ordering by creation time is deterministic.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	cur := fixedNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

type fixture struct {
	store   *memStore
	factory *Factory
	engine  *ReviewEngine
	views   *Views
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	factory := NewFactory(store, newTestValidator(t))
	factory.SetClock(tickingClock())
	engine := NewReviewEngine(store, zerolog.Nop())
	t.Cleanup(engine.Wait)
	return &fixture{store: store, factory: factory, engine: engine, views: NewViews(store)}
}

func appointmentData() json.RawMessage {
	return json.RawMessage(`{
		"appointmentDate": "2025-06-01",
		"appointmentTime": "10:00 AM",
		"reasonForVisit": "checkup",
		"patientPhone": "555-0100",
		"patientEmail": "a@b.com"
	}`)
}

func (f *fixture) submitAppointment(t *testing.T, who string) *Request {
	t.Helper()
	r, err := f.factory.Submit(context.Background(), submitter(who),
		Submission{Type: TypeAppointmentBooking, Data: appointmentData()})
	require.NoError(t, err)
	return r
}

func (f *fixture) submitArticle(t *testing.T, who string) *Request {
	t.Helper()
	r, err := f.factory.Submit(context.Background(), submitter(who), Submission{
		Type: TypeArticleApproval,
		Data: json.RawMessage(`{"title":"Sleep hygiene","content":"Keep a schedule."}`),
	})
	require.NoError(t, err)
	return r
}

func ptr(s string) *string { return &s }

func ids(rs []*Request) []uuid.UUID {
	out := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
