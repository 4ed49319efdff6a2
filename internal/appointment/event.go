package appointment

import (
	"encoding/json"
	"errors"
	"fmt"
)

type EventType string

const (
	EventBookingCreated     EventType = "booking_created"
	EventBookingApproved    EventType = "booking_approved"
	EventBookingCancelled   EventType = "booking_cancelled"
	EventBookingRescheduled EventType = "booking_rescheduled"
)

var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventType = errors.New("unknown event type")
)

func (t EventType) Known() bool {
	switch t {
	case EventBookingCreated, EventBookingApproved, EventBookingCancelled, EventBookingRescheduled:
		return true
	}
	return false
}

// Event is the wire message on the bus: a type tag plus the appointment as it
// was committed by the transition.
type Event struct {
	Type EventType   `json:"type"`
	Data Appointment `json:"data"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a bus message. An unrecognised type returns the type
// together with ErrUnknownEventType so consumers can skip it.
func DecodeEvent(raw []byte) (Event, error) {
	var envelope struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if envelope.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if !envelope.Type.Known() {
		return Event{Type: envelope.Type}, ErrUnknownEventType
	}

	var appt Appointment
	if len(envelope.Data) == 0 {
		return Event{}, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(envelope.Data, &appt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if appt.ID <= 0 || appt.PatientID <= 0 {
		return Event{}, fmt.Errorf("%w: snapshot without ids", ErrMalformedEvent)
	}

	return Event{Type: envelope.Type, Data: appt}, nil
}
