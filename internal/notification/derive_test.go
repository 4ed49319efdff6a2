package notification

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-notifications/internal/appointment"
)

var testSlot = time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)

func snapshot(doctorID *int64, status appointment.Status) appointment.Appointment {
	return appointment.Appointment{
		ID:        11,
		PatientID: 3,
		DoctorID:  doctorID,
		Timeslot:  testSlot,
		Status:    status,
	}
}

func doctor(id int64) *int64 { return &id }

func TestDerive(t *testing.T) {
	tests := []struct {
		name string
		ev   appointment.Event
		want []Draft
	}{
		{
			name: "created with doctor notifies both",
			ev:   appointment.Event{Type: appointment.EventBookingCreated, Data: snapshot(doctor(9), appointment.StatusPending)},
			want: []Draft{
				{UserID: 3, Message: "Appointment created for 2025-12-15T10:30:00Z"},
				{UserID: 9, Message: "New appointment request at 2025-12-15T10:30:00Z"},
			},
		},
		{
			name: "created without doctor notifies patient only",
			ev:   appointment.Event{Type: appointment.EventBookingCreated, Data: snapshot(nil, appointment.StatusPending)},
			want: []Draft{
				{UserID: 3, Message: "Appointment created for 2025-12-15T10:30:00Z"},
			},
		},
		{
			name: "approved",
			ev:   appointment.Event{Type: appointment.EventBookingApproved, Data: snapshot(doctor(9), appointment.StatusApproved)},
			want: []Draft{
				{UserID: 3, Message: "Your appointment at 2025-12-15T10:30:00Z was approved"},
			},
		},
		{
			name: "cancelled skips the doctor",
			ev:   appointment.Event{Type: appointment.EventBookingCancelled, Data: snapshot(doctor(9), appointment.StatusCancelled)},
			want: []Draft{
				{UserID: 3, Message: "Your appointment at 2025-12-15T10:30:00Z was cancelled"},
			},
		},
		{
			name: "rescheduled",
			ev:   appointment.Event{Type: appointment.EventBookingRescheduled, Data: snapshot(doctor(9), appointment.StatusRescheduled)},
			want: []Draft{
				{UserID: 3, Message: "Your appointment was rescheduled to 2025-12-15T10:30:00Z"},
			},
		},
		{
			name: "unknown type yields nothing",
			ev:   appointment.Event{Type: "booking_archived", Data: snapshot(nil, appointment.StatusPending)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(tt.ev)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].UserID, got[i].UserID)
				assert.Equal(t, tt.want[i].Message, got[i].Message)
			}
		})
	}
}

func TestDerive_MetadataCarriesSnapshot(t *testing.T) {
	ev := appointment.Event{Type: appointment.EventBookingCreated, Data: snapshot(doctor(9), appointment.StatusPending)}

	drafts, err := Derive(ev)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	var meta struct {
		Appointment appointment.Appointment `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(drafts[1].Metadata, &meta))
	assert.Equal(t, ev.Data, meta.Appointment)
}

func TestFormatTimeslot(t *testing.T) {
	local := testSlot.In(time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, "2025-12-15T10:30:00Z", FormatTimeslot(local))
}
