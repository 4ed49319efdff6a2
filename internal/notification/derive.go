package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hackgods/appointment-notifications/internal/appointment"
)

type recipient struct {
	userID  func(appointment.Appointment) *int64
	message func(timeslot string) string
}

func patientOf(a appointment.Appointment) *int64 { return &a.PatientID }
func doctorOf(a appointment.Appointment) *int64  { return a.DoctorID }

// rules lists who hears about each transition and what they are told.
// A nil recipient id (no doctor bound yet) skips that entry.
var rules = map[appointment.EventType][]recipient{
	appointment.EventBookingCreated: {
		{patientOf, func(ts string) string { return "Appointment created for " + ts }},
		{doctorOf, func(ts string) string { return "New appointment request at " + ts }},
	},
	appointment.EventBookingApproved: {
		{patientOf, func(ts string) string { return fmt.Sprintf("Your appointment at %s was approved", ts) }},
	},
	appointment.EventBookingCancelled: {
		{patientOf, func(ts string) string { return fmt.Sprintf("Your appointment at %s was cancelled", ts) }},
	},
	appointment.EventBookingRescheduled: {
		{patientOf, func(ts string) string { return "Your appointment was rescheduled to " + ts }},
	},
}

// Derive computes the notifications an event produces. Unknown event types
// yield none.
func Derive(ev appointment.Event) ([]Draft, error) {
	targets, ok := rules[ev.Type]
	if !ok {
		return nil, nil
	}

	metadata, err := json.Marshal(map[string]any{"appointment": ev.Data})
	if err != nil {
		return nil, fmt.Errorf("encode notification metadata: %w", err)
	}

	timeslot := FormatTimeslot(ev.Data.Timeslot)
	drafts := make([]Draft, 0, len(targets))
	for _, t := range targets {
		id := t.userID(ev.Data)
		if id == nil || *id <= 0 {
			continue
		}
		drafts = append(drafts, Draft{
			UserID:   *id,
			Message:  t.message(timeslot),
			Metadata: metadata,
		})
	}
	return drafts, nil
}

func FormatTimeslot(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
