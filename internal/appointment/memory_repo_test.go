package appointment_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hackgods/appointment-notifications/internal/appointment"
)

// memRepo enforces the same single-active-booking rule as the unique index.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]appointment.Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]appointment.Appointment)}
}

// holdsSlot mirrors the predicate of the partial unique index.
func holdsSlot(a appointment.Appointment) bool {
	return a.Status != appointment.StatusCancelled
}

func (r *memRepo) clashes(candidate appointment.Appointment) bool {
	if candidate.DoctorID == nil || !holdsSlot(candidate) {
		return false
	}
	for id, row := range r.rows {
		if id == candidate.ID || !holdsSlot(row) {
			continue
		}
		if row.BoundTo(*candidate.DoctorID) && row.Timeslot.Equal(candidate.Timeslot) {
			return true
		}
	}
	return false
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id int64) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &row, nil
}

func (r *memRepo) HasActiveBooking(_ context.Context, doctorID int64, timeslot time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clashes(appointment.Appointment{DoctorID: &doctorID, Timeslot: timeslot, Status: appointment.StatusPending}), nil
}

func (r *memRepo) CreateAppointment(_ context.Context, patientID int64, doctorID *int64, timeslot time.Time) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := appointment.Appointment{
		PatientID: patientID,
		Timeslot:  timeslot,
		Status:    appointment.StatusPending,
	}
	if doctorID != nil {
		d := *doctorID
		row.DoctorID = &d
	}
	if r.clashes(row) {
		return nil, appointment.ErrConflict
	}
	r.nextID++
	row.ID = r.nextID
	r.rows[row.ID] = row
	return &row, nil
}

func (r *memRepo) ApproveAppointment(_ context.Context, id, doctorID int64) (*appointment.Appointment, error) {
	return r.update(id, func(row *appointment.Appointment) bool {
		if row.DoctorID != nil && *row.DoctorID != doctorID {
			return false
		}
		row.DoctorID = &doctorID
		row.Status = appointment.StatusApproved
		return true
	})
}

func (r *memRepo) UpdateStatus(_ context.Context, id int64, status appointment.Status) (*appointment.Appointment, error) {
	return r.update(id, func(row *appointment.Appointment) bool {
		row.Status = status
		return true
	})
}

func (r *memRepo) Reschedule(_ context.Context, id int64, timeslot time.Time) (*appointment.Appointment, error) {
	return r.update(id, func(row *appointment.Appointment) bool {
		row.Timeslot = timeslot
		row.Status = appointment.StatusRescheduled
		return true
	})
}

func (r *memRepo) update(id int64, apply func(*appointment.Appointment) bool) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || !apply(&row) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if r.clashes(row) {
		return nil, appointment.ErrConflict
	}
	r.rows[id] = row
	return &row, nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID int64) ([]appointment.Appointment, error) {
	return r.list(func(a appointment.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *memRepo) ListByDoctor(_ context.Context, doctorID int64) ([]appointment.Appointment, error) {
	return r.list(func(a appointment.Appointment) bool { return a.BoundTo(doctorID) }), nil
}

func (r *memRepo) list(keep func(appointment.Appointment) bool) []appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []appointment.Appointment{}
	for _, row := range r.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timeslot.After(out[j].Timeslot) })
	return out
}

// recordingPublisher keeps every event it is handed; err makes Publish fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []appointment.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev appointment.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []appointment.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]appointment.Event(nil), p.events...)
}
