// Package events fans decision notifications out to external sinks. Sink
// failures are reported to the caller but never roll back the decision that
// produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event is a notification about a request record. Data holds the record
// snapshot as JSON.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func (e Event) Validate() error {
	if e.ID == "" || e.Type == "" || e.Subject == "" {
		return fmt.Errorf("event missing id, type or subject")
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Publish(context.Context, Event) error { return nil }

func (*Noop) Close() error { return nil }

// Sink is a Publisher with a name used in metrics and logs.
type Sink struct {
	Name string
	Publisher
}

// ObserveFunc is told the result of every sink publish.
type ObserveFunc func(sink string, err error)

// Multi publishes each event to every sink, continuing past failures.
type Multi struct {
	sinks   []Sink
	observe ObserveFunc
}

func NewMulti(observe ObserveFunc, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, observe: observe}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Publish(ctx context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	var errs []error
	for _, s := range m.sinks {
		err := s.Publish(ctx, evt)
		if m.observe != nil {
			m.observe(s.Name, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
