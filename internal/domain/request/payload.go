package request

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Payload is the typed form of Request.Data. Each recognized Type has
// exactly one implementation.
type Payload interface {
	RequestType() Type
	normalize()
	check(today time.Time, loc *time.Location) []FieldError
}

type AppointmentBooking struct {
	PatientName     string `json:"patientName,omitempty" validate:"omitempty,max=200"`
	PatientPhone    string `json:"patientPhone,omitempty" validate:"required_without=PatientEmail,omitempty,max=40"`
	PatientEmail    string `json:"patientEmail,omitempty" validate:"required_without=PatientPhone,omitempty,max=254,email"`
	AppointmentDate string `json:"appointmentDate" validate:"required"`
	AppointmentTime string `json:"appointmentTime" validate:"required"`
	ReasonForVisit  string `json:"reasonForVisit" validate:"required,max=2000"`
	Doctor          string `json:"doctor,omitempty" validate:"omitempty,max=200"`
	Department      string `json:"department,omitempty" validate:"omitempty,max=200"`
}

type FreeConsultation struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,max=254,email"`
	Phone   string `json:"phone" validate:"required,max=40"`
	Service string `json:"service" validate:"required,oneof=general mental diagnosis specialist"`
	Date    string `json:"date" validate:"required"`
	Time    string `json:"time" validate:"required"`
	Message string `json:"message,omitempty" validate:"omitempty,max=2000"`
}

type ArticleApproval struct {
	ArticleID string   `json:"articleId,omitempty" validate:"omitempty,max=64"`
	Title     string   `json:"title" validate:"required,max=300"`
	Content   string   `json:"content" validate:"required"`
	Category  string   `json:"category,omitempty" validate:"omitempty,max=100"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
}

type ProductApproval struct {
	ProductID   string  `json:"productId,omitempty" validate:"omitempty,max=64"`
	Name        string  `json:"name" validate:"required,max=200"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category" validate:"required,max=100"`
	Description string  `json:"description" validate:"required,max=5000"`
	ImageURL    string  `json:"imageUrl,omitempty" validate:"omitempty,max=2048,url"`
}

type UserRegistration struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,max=254,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

func (*AppointmentBooking) RequestType() Type { return TypeAppointmentBooking }
func (*FreeConsultation) RequestType() Type   { return TypeFreeConsultation }
func (*ArticleApproval) RequestType() Type    { return TypeArticleApproval }
func (*ProductApproval) RequestType() Type    { return TypeProductApproval }
func (*UserRegistration) RequestType() Type   { return TypeUserRegistration }

func newPayload(t Type) Payload {
	switch t {
	case TypeAppointmentBooking:
		return &AppointmentBooking{}
	case TypeFreeConsultation:
		return &FreeConsultation{}
	case TypeArticleApproval:
		return &ArticleApproval{}
	case TypeProductApproval:
		return &ProductApproval{}
	case TypeUserRegistration:
		return &UserRegistration{}
	}
	return nil
}

func (p *AppointmentBooking) normalize() {
	trim(&p.PatientName, &p.PatientPhone, &p.AppointmentDate, &p.AppointmentTime,
		&p.ReasonForVisit, &p.Doctor, &p.Department)
	p.PatientEmail = strings.ToLower(strings.TrimSpace(p.PatientEmail))
}

func (p *AppointmentBooking) check(today time.Time, loc *time.Location) []FieldError {
	var errs []FieldError
	if fe := checkBookingDate("appointmentDate", p.AppointmentDate, today, loc); fe != nil {
		errs = append(errs, *fe)
	}
	if t, fe := checkBookingTime("appointmentTime", p.AppointmentTime); fe != nil {
		errs = append(errs, *fe)
	} else {
		p.AppointmentTime = t
	}
	return errs
}

func (p *FreeConsultation) normalize() {
	trim(&p.Name, &p.Phone, &p.Service, &p.Date, &p.Time, &p.Message)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Service = strings.ToLower(p.Service)
}

func (p *FreeConsultation) check(today time.Time, loc *time.Location) []FieldError {
	var errs []FieldError
	if fe := checkBookingDate("date", p.Date, today, loc); fe != nil {
		errs = append(errs, *fe)
	}
	if t, fe := checkBookingTime("time", p.Time); fe != nil {
		errs = append(errs, *fe)
	} else {
		p.Time = t
	}
	return errs
}

func (p *ArticleApproval) normalize() {
	trim(&p.ArticleID, &p.Title, &p.Category)
	for i := range p.Tags {
		p.Tags[i] = strings.TrimSpace(p.Tags[i])
	}
}

func (*ArticleApproval) check(time.Time, *time.Location) []FieldError { return nil }

func (p *ProductApproval) normalize() {
	trim(&p.ProductID, &p.Name, &p.Category, &p.Description, &p.ImageURL)
}

func (*ProductApproval) check(time.Time, *time.Location) []FieldError { return nil }

func (p *UserRegistration) normalize() {
	trim(&p.Name, &p.Phone)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
}

func (*UserRegistration) check(time.Time, *time.Location) []FieldError { return nil }

func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

const dateLayout = "2006-01-02"

// Booking forms send "9:00 AM"; API clients may send 24-hour "09:00".
var timeLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

func checkBookingDate(field, value string, today time.Time, loc *time.Location) *FieldError {
	d, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return &FieldError{Field: field, Reason: "must be a calendar date in YYYY-MM-DD form"}
	}
	if d.Before(today) {
		return &FieldError{Field: field, Reason: "must not be in the past"}
	}
	return nil
}

// checkBookingTime returns the time in canonical "3:04 PM" form.
func checkBookingTime(field, value string) (string, *FieldError) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(value)); err == nil {
			return t.Format("3:04 PM"), nil
		}
	}
	return "", &FieldError{Field: field, Reason: "must be a clock time such as 10:00 AM or 14:30"}
}

// PayloadValidator turns raw submission data into a normalized typed
// payload. The type's JSON Schema fixes the shape (keys and JSON types);
// value rules live in the struct validation tags and run on the trimmed
// values, followed by date and time rules evaluated against the booking
// calendar's today.
type PayloadValidator struct {
	schemas  map[Type]*gojsonschema.Schema
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

func NewPayloadValidator(loc *time.Location, now func() time.Time) (*PayloadValidator, error) {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}

	schemas := make(map[Type]*gojsonschema.Schema, len(AllTypes))
	for _, t := range AllTypes {
		raw, err := schemaFS.ReadFile("schemas/" + string(t) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema for %s: %w", t, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t, err)
		}
		schemas[t] = s
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &PayloadValidator{schemas: schemas, validate: v, loc: loc, now: now}, nil
}

// Parse validates data for t and returns the typed payload together with
// its canonical JSON encoding.
func (v *PayloadValidator) Parse(t Type, data json.RawMessage) (Payload, json.RawMessage, error) {
	schema, ok := v.schemas[t]
	if !ok {
		return nil, nil, newError(KindUnrecognizedType, "unrecognized request type %q", t)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, malformed(FieldError{Field: "data", Reason: "is required"})
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(trimmed))
	if err != nil {
		return nil, nil, malformed(FieldError{Field: "data", Reason: "must be a JSON object"})
	}
	if !res.Valid() {
		fields := make([]FieldError, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			fields = append(fields, FieldError{Field: schemaField(e), Reason: e.Description()})
		}
		return nil, nil, malformed(fields...)
	}

	p := newPayload(t)
	if err := json.Unmarshal(trimmed, p); err != nil {
		return nil, nil, malformed(FieldError{Field: "data", Reason: err.Error()})
	}
	p.normalize()

	if err := v.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, nil, fmt.Errorf("validate %s payload: %w", t, err)
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Reason: tagReason(fe)})
		}
		return nil, nil, malformed(fields...)
	}

	now := v.now().In(v.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.loc)
	if fields := p.check(today, v.loc); len(fields) > 0 {
		return nil, nil, malformed(fields...)
	}

	canonical, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return p, canonical, nil
}

// schemaField names the offending property. Errors about a missing or
// unexpected key are reported against the object, so the key comes from
// the error details instead.
func schemaField(e gojsonschema.ResultError) string {
	switch e.Type() {
	case "required", "additional_property_not_allowed":
		if prop, ok := e.Details()["property"].(string); ok {
			return prop
		}
	}
	if f := e.Field(); f != "(root)" {
		return f
	}
	return "data"
}

func tagReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + fe.Param() + " is absent"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "gte":
		return "must be at least " + fe.Param()
	}
	return "failed " + fe.Tag() + " rule"
}
