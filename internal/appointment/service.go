package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/auth"
	"github.com/hackgods/appointment-notifications/internal/metrics"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

const publishTimeout = 2 * time.Second

// Publisher hands committed transitions to the event bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Service struct {
	repo      Repository
	publisher Publisher
	logger    *zap.Logger
}

func NewService(repo Repository, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("appointment"),
	}
}

// CreateAppointment books a pending appointment for the calling patient.
// When a doctor is given the slot must be free; the repository's unique index
// settles races the pre-check cannot see.
func (s *Service) CreateAppointment(ctx context.Context, caller auth.Principal, doctorID *int64, timeslot time.Time) (*Appointment, error) {
	if caller.Role != auth.RolePatient {
		return nil, fmt.Errorf("%w: only patients can book", ErrForbidden)
	}
	if timeslot.IsZero() {
		return nil, fmt.Errorf("%w: missing timeslot", ErrValidation)
	}
	if doctorID != nil && *doctorID <= 0 {
		return nil, fmt.Errorf("%w: doctor_id must be positive", ErrValidation)
	}
	timeslot = timeslot.UTC()

	if doctorID != nil {
		taken, err := s.repo.HasActiveBooking(ctx, *doctorID, timeslot)
		if err != nil {
			return nil, fmt.Errorf("check doctor availability: %w", err)
		}
		if taken {
			return nil, ErrConflict
		}
	}

	appt, err := s.repo.CreateAppointment(ctx, caller.ID, doctorID, timeslot)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.emit(ctx, EventBookingCreated, appt)
	return appt, nil
}

// ApproveAppointment lets a doctor accept an appointment, binding it to them
// if nobody was assigned yet.
func (s *Service) ApproveAppointment(ctx context.Context, caller auth.Principal, id int64) (*Appointment, error) {
	if !caller.IsDoctor() {
		return nil, fmt.Errorf("%w: only doctors can approve", ErrForbidden)
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}
	if current.DoctorID != nil && !current.BoundTo(caller.ID) {
		return nil, fmt.Errorf("%w: appointment is assigned to another doctor", ErrForbidden)
	}

	updated, err := s.repo.ApproveAppointment(ctx, id, caller.ID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row exists (loaded above) so another doctor bound it meanwhile
			return nil, fmt.Errorf("%w: appointment is assigned to another doctor", ErrForbidden)
		}
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("approve appointment: %w", err)
	}

	s.emit(ctx, EventBookingApproved, updated)
	return updated, nil
}

func (s *Service) CancelAppointment(ctx context.Context, caller auth.Principal, id int64) (*Appointment, error) {
	if _, err := s.loadOwned(ctx, caller, id); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusCancelled)
	if err != nil {
		return nil, s.writeError("cancel appointment", err)
	}

	s.emit(ctx, EventBookingCancelled, updated)
	return updated, nil
}

// RescheduleAppointment moves the appointment and marks it rescheduled. The
// new slot is not pre-checked; only the storage constraint can reject it.
func (s *Service) RescheduleAppointment(ctx context.Context, caller auth.Principal, id int64, timeslot time.Time) (*Appointment, error) {
	if timeslot.IsZero() {
		return nil, fmt.Errorf("%w: missing timeslot", ErrValidation)
	}
	if _, err := s.loadOwned(ctx, caller, id); err != nil {
		return nil, err
	}

	updated, err := s.repo.Reschedule(ctx, id, timeslot.UTC())
	if err != nil {
		return nil, s.writeError("reschedule appointment", err)
	}

	s.emit(ctx, EventBookingRescheduled, updated)
	return updated, nil
}

// ListAppointments returns the caller's appointments, latest timeslot first.
func (s *Service) ListAppointments(ctx context.Context, caller auth.Principal) ([]Appointment, error) {
	var (
		list []Appointment
		err  error
	)
	if caller.IsDoctor() {
		list, err = s.repo.ListByDoctor(ctx, caller.ID)
	} else {
		list, err = s.repo.ListByPatient(ctx, caller.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// loadOwned returns the appointment if caller is its patient or bound doctor.
func (s *Service) loadOwned(ctx context.Context, caller auth.Principal, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}

	switch caller.Role {
	case auth.RolePatient:
		if appt.PatientID == caller.ID {
			return appt, nil
		}
	case auth.RoleDoctor:
		if appt.BoundTo(caller.ID) {
			return appt, nil
		}
	}
	return nil, fmt.Errorf("%w: not a party to appointment %d", ErrForbidden, id)
}

func (s *Service) loadError(err error) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	return fmt.Errorf("load appointment: %w", err)
}

func (s *Service) writeError(op string, err error) error {
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// emit publishes the committed snapshot. Failures are logged only: the write
// already happened and notifications stay best-effort.
func (s *Service) emit(ctx context.Context, eventType EventType, appt *Appointment) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, Event{Type: eventType, Data: *appt}); err != nil {
		metrics.EventsPublished.WithLabelValues(string(eventType), "error").Inc()
		s.logger.Warn("event publish failed",
			zap.String("type", string(eventType)),
			zap.Int64("appointment_id", appt.ID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(eventType), "ok").Inc()
}
