package appointment

import (
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Appointment is both the persisted row and the snapshot carried by domain events.
// DoctorID is nil until a doctor is chosen at booking or binds on approval.
type Appointment struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	DoctorID  *int64    `json:"doctor_id"`
	Timeslot  time.Time `json:"timeslot"`
	Status    Status    `json:"status"`
}

func (a Appointment) BoundTo(doctorID int64) bool {
	return a.DoctorID != nil && *a.DoctorID == doctorID
}
