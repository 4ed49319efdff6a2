package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrConflict            = errors.New("doctor not available at the selected timeslot")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)

	// Fast-path conflict check; the unique index is what actually enforces it
	HasActiveBooking(ctx context.Context, doctorID int64, timeslot time.Time) (bool, error)

	// Creation and updates. Writes that would put two active appointments on
	// the same doctor and timeslot fail with ErrConflict.
	CreateAppointment(ctx context.Context, patientID int64, doctorID *int64, timeslot time.Time) (*Appointment, error)
	ApproveAppointment(ctx context.Context, id, doctorID int64) (*Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Appointment, error)
	Reschedule(ctx context.Context, id int64, timeslot time.Time) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID int64) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]Appointment, error)
}
