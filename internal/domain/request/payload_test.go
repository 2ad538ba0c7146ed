package request

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, KindMalformedPayload, e.Kind)
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}

func TestParse_AppointmentBooking(t *testing.T) {
	v := newTestValidator(t)

	p, data, err := v.Parse(TypeAppointmentBooking, appointmentData())
	require.NoError(t, err)

	booking, ok := p.(*AppointmentBooking)
	require.True(t, ok)
	assert.Equal(t, "2025-06-01", booking.AppointmentDate)
	assert.Equal(t, "10:00 AM", booking.AppointmentTime)
	assert.Equal(t, "checkup", booking.ReasonForVisit)
	assert.JSONEq(t, `{
		"appointmentDate": "2025-06-01",
		"appointmentTime": "10:00 AM",
		"reasonForVisit": "checkup",
		"patientPhone": "555-0100",
		"patientEmail": "a@b.com"
	}`, string(data))
}

func TestParse_BookingTimeCanonicalized(t *testing.T) {
	v := newTestValidator(t)
	tests := map[string]string{
		"14:30":    "2:30 PM",
		"9:00am":   "9:00 AM",
		"09:15":    "9:15 AM",
		"11:45 pm": "11:45 PM",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			raw := json.RawMessage(`{"appointmentDate":"2025-05-01","appointmentTime":"` + in +
				`","reasonForVisit":"follow up","patientEmail":"x@y.org"}`)
			p, _, err := v.Parse(TypeAppointmentBooking, raw)
			require.NoError(t, err)
			assert.Equal(t, want, p.(*AppointmentBooking).AppointmentTime)
		})
	}
}

func TestParse_BookingRejections(t *testing.T) {
	v := newTestValidator(t)
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{
			name:  "date in the past",
			data:  `{"appointmentDate":"2025-04-30","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"1"}`,
			field: "appointmentDate",
		},
		{
			name:  "impossible date",
			data:  `{"appointmentDate":"2025-02-30","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"1"}`,
			field: "appointmentDate",
		},
		{
			name:  "date not in ISO form",
			data:  `{"appointmentDate":"06/01/2025","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"1"}`,
			field: "appointmentDate",
		},
		{
			name:  "unparseable time",
			data:  `{"appointmentDate":"2025-06-01","appointmentTime":"noonish","reasonForVisit":"x","patientPhone":"1"}`,
			field: "appointmentTime",
		},
		{
			name:  "missing reason",
			data:  `{"appointmentDate":"2025-06-01","appointmentTime":"10:00 AM","patientPhone":"1"}`,
			field: "reasonForVisit",
		},
		{
			name:  "unknown field",
			data:  `{"appointmentDate":"2025-06-01","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"1","ssn":"123"}`,
			field: "ssn",
		},
		{
			name:  "bad email",
			data:  `{"appointmentDate":"2025-06-01","appointmentTime":"10:00 AM","reasonForVisit":"x","patientEmail":"not-an-email"}`,
			field: "patientEmail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.Parse(TypeAppointmentBooking, json.RawMessage(tt.data))
			assert.Contains(t, fieldNames(t, err), tt.field)
		})
	}
}

func TestParse_BookingNeedsContact(t *testing.T) {
	v := newTestValidator(t)

	_, _, err := v.Parse(TypeAppointmentBooking,
		json.RawMessage(`{"appointmentDate":"2025-06-01","appointmentTime":"10:00 AM","reasonForVisit":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, _, err = v.Parse(TypeAppointmentBooking,
		json.RawMessage(`{"appointmentDate":"2025-06-01","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"  "}`))
	assert.Contains(t, fieldNames(t, err), "patientPhone")
}

func TestParse_TodayInBookingZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2025-05-01 20:00 UTC is already 2025-05-02 in Tokyo.
	now := func() time.Time { return time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC) }
	v, err := NewPayloadValidator(tokyo, now)
	require.NoError(t, err)

	_, _, err = v.Parse(TypeAppointmentBooking, json.RawMessage(
		`{"appointmentDate":"2025-05-01","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"1"}`))
	assert.Contains(t, fieldNames(t, err), "appointmentDate")

	_, _, err = v.Parse(TypeAppointmentBooking, json.RawMessage(
		`{"appointmentDate":"2025-05-02","appointmentTime":"10:00 AM","reasonForVisit":"x","patientPhone":"1"}`))
	assert.NoError(t, err)
}

func TestParse_FreeConsultation(t *testing.T) {
	v := newTestValidator(t)

	p, _, err := v.Parse(TypeFreeConsultation, json.RawMessage(`{
		"name": " Dana ", "email": " Dana@Example.COM ", "phone": "555-0101",
		"service": "mental", "date": "2025-05-03", "time": "3:30 PM"
	}`))
	require.NoError(t, err)
	fc := p.(*FreeConsultation)
	assert.Equal(t, "Dana", fc.Name)
	assert.Equal(t, "dana@example.com", fc.Email)

	_, _, err = v.Parse(TypeFreeConsultation, json.RawMessage(`{
		"name": "Dana", "email": "d@e.com", "phone": "1",
		"service": "dental", "date": "2025-05-03", "time": "3:30 PM"
	}`))
	assert.Contains(t, fieldNames(t, err), "service")
}

func TestParse_ValueRulesApplyAfterNormalizing(t *testing.T) {
	v := newTestValidator(t)

	p, _, err := v.Parse(TypeFreeConsultation, json.RawMessage(`{
		"name": "Dana", "email": "d@e.com", "phone": "1",
		"service": " General ", "date": " 2025-05-03 ", "time": " 3:30 pm "
	}`))
	require.NoError(t, err)
	fc := p.(*FreeConsultation)
	assert.Equal(t, "general", fc.Service)
	assert.Equal(t, "2025-05-03", fc.Date)
	assert.Equal(t, "3:30 PM", fc.Time)

	p, _, err = v.Parse(TypeAppointmentBooking, json.RawMessage(
		`{"appointmentDate":"2025-06-01","appointmentTime":" 10:00 AM ","reasonForVisit":"x","patientPhone":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, "10:00 AM", p.(*AppointmentBooking).AppointmentTime)

	long := strings.Repeat("a", 301)
	_, _, err = v.Parse(TypeArticleApproval, json.RawMessage(`{"title":"`+long+`","content":"Body"}`))
	assert.Contains(t, fieldNames(t, err), "title")
}

func TestParse_ArticleAndProduct(t *testing.T) {
	v := newTestValidator(t)

	_, data, err := v.Parse(TypeArticleApproval,
		json.RawMessage(`{"title":" Vitamins ","content":"Body","tags":[" diet "]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Vitamins","content":"Body","tags":["diet"]}`, string(data))

	_, _, err = v.Parse(TypeArticleApproval, json.RawMessage(`{"title":"   ","content":"Body"}`))
	assert.Contains(t, fieldNames(t, err), "title")

	_, _, err = v.Parse(TypeProductApproval,
		json.RawMessage(`{"name":"Mask","price":-1,"category":"ppe","description":"N95"}`))
	assert.Contains(t, fieldNames(t, err), "price")

	_, _, err = v.Parse(TypeProductApproval,
		json.RawMessage(`{"name":"Mask","price":3,"category":"ppe","description":"N95","imageUrl":"not a url"}`))
	assert.Contains(t, fieldNames(t, err), "imageUrl")
}

func TestParse_UserRegistration(t *testing.T) {
	v := newTestValidator(t)

	p, _, err := v.Parse(TypeUserRegistration, json.RawMessage(`{"name":"Lee","email":"LEE@clinic.io"}`))
	require.NoError(t, err)
	assert.Equal(t, "lee@clinic.io", p.(*UserRegistration).Email)
	assert.Equal(t, TypeUserRegistration, p.RequestType())
}

func TestParse_EmptyAndNonObject(t *testing.T) {
	v := newTestValidator(t)

	for _, raw := range []string{``, `null`, `  `} {
		_, _, err := v.Parse(TypeUserRegistration, json.RawMessage(raw))
		assert.Equal(t, []string{"data"}, fieldNames(t, err), "input %q", raw)
	}

	_, _, err := v.Parse(TypeUserRegistration, json.RawMessage(`["a"]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, _, err = v.Parse(TypeUserRegistration, json.RawMessage(`{"name":`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParse_UnrecognizedType(t *testing.T) {
	v := newTestValidator(t)
	_, _, err := v.Parse("not_a_real_type", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnrecognizedType)
}
