package request

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type selects the payload shape of a request.
type Type string

const (
	TypeArticleApproval    Type = "article_approval"
	TypeProductApproval    Type = "product_approval"
	TypeUserRegistration   Type = "user_registration"
	TypeAppointmentBooking Type = "appointment_booking"
	TypeFreeConsultation   Type = "free_consultation"
)

// AllTypes lists the recognized types in a stable order.
var AllTypes = []Type{
	TypeArticleApproval,
	TypeProductApproval,
	TypeUserRegistration,
	TypeAppointmentBooking,
	TypeFreeConsultation,
}

func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTypes splits a comma-separated filter such as "a,b". Empty input
// means no filter.
func ParseTypes(raw string) ([]Type, error) {
	var out []Type
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t := Type(part)
		if !t.Valid() {
			return nil, newError(KindUnrecognizedType, "unrecognized request type %q", part)
		}
		out = append(out, t)
	}
	return out, nil
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether from -> to is an edge of the workflow.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.Terminal()
}

// checkTransition is the error form of CanTransition used by the engine and
// every Store before anything is written.
func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return newError(KindInvalidStateTransition, "%s -> %s is not a workflow transition", from, to)
	}
	return nil
}

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status is the terminal status the decision produces.
func (d Decision) Status() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// Request is the moderation record. ReviewedBy and ReviewNotes are nil
// exactly while Status is pending.
type Request struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	Data        json.RawMessage `json:"data"`
	Status      Status          `json:"status"`
	SubmittedBy string          `json:"submittedBy"`
	ReviewedBy  *string         `json:"reviewedBy"`
	ReviewNotes *string         `json:"reviewNotes"`
	ReviewedAt  *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so listeners cannot alias stored state.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = append(json.RawMessage(nil), r.Data...)
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		c.ReviewedBy = &v
	}
	if r.ReviewNotes != nil {
		v := *r.ReviewNotes
		c.ReviewNotes = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		c.ReviewedAt = &v
	}
	return &c
}

// Payload decodes Data into the variant for Type.
func (r *Request) Payload() (Payload, error) {
	p := newPayload(r.Type)
	if p == nil {
		return nil, newError(KindUnrecognizedType, "unrecognized request type %q", r.Type)
	}
	if err := json.Unmarshal(r.Data, p); err != nil {
		return nil, &Error{Kind: KindMalformedPayload, Message: "stored payload does not decode", Err: err}
	}
	return p, nil
}

// Submission is what a submitter sends.
type Submission struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ListOptions narrows and pages list queries. A nil Types matches all.
type ListOptions struct {
	Types  []Type
	Limit  int
	Offset int
}
