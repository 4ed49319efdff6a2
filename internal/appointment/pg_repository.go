package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/appointment-notifications/internal/db"
)

const uniqueViolation = "23505"

// Schema is applied at startup. The partial unique index is the source of
// truth for the one-active-booking-per-doctor-slot rule.
const Schema = `
CREATE TABLE IF NOT EXISTS appointments (
    id         BIGSERIAL PRIMARY KEY,
    patient_id BIGINT      NOT NULL,
    doctor_id  BIGINT,
    timeslot   TIMESTAMPTZ NOT NULL,
    status     TEXT        NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'approved', 'cancelled', 'rescheduled')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_doctor_slot_active_uidx
    ON appointments (doctor_id, timeslot)
    WHERE doctor_id IS NOT NULL AND status <> 'cancelled';

CREATE INDEX IF NOT EXISTS appointments_patient_timeslot_idx
    ON appointments (patient_id, timeslot DESC);
`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func (r *PgRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply appointments schema: %w", err)
	}
	return nil
}

// Helpers

const appointmentColumns = `id, patient_id, doctor_id, timeslot, status`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var doctorID pgtype.Int8

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&doctorID,
		&a.Timeslot,
		&a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, mapWriteError(err)
	}

	if doctorID.Valid {
		id := doctorID.Int64
		a.DoctorID = &id
	}
	a.Timeslot = a.Timeslot.UTC()
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasActiveBooking(ctx context.Context, doctorID int64, timeslot time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND timeslot = $2 AND status <> 'cancelled'
		)
	`, doctorID, timeslot).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, patientID int64, doctorID *int64, timeslot time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, timeslot, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING `+appointmentColumns+`
	`, patientID, doctorID, timeslot)
	return scanAppointment(row)
}

// ApproveAppointment only matches rows that are unbound or already bound to doctorID.
func (r *PgRepository) ApproveAppointment(ctx context.Context, id, doctorID int64) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'approved',
		    doctor_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND (doctor_id IS NULL OR doctor_id = $2)
		RETURNING `+appointmentColumns+`
	`, id, doctorID)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id int64, status Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status)
	return scanAppointment(row)
}

func (r *PgRepository) Reschedule(ctx context.Context, id int64, timeslot time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET timeslot = $2,
		    status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, timeslot)
	return scanAppointment(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID int64) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY timeslot DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY timeslot DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}
