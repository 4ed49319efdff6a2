package appointment

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "patient_id", "doctor_id", "timeslot", "status"}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPgRepository(mock), mock
}

func TestPgRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS appointments").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestPgRepository_CreateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	slot := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)
	doctor := int64(9)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(2), pgxmock.AnyArg(), slot).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(int64(1), int64(2), int64(9), slot, StatusPending))

	got, err := repo.CreateAppointment(context.Background(), 2, &doctor, slot)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	require.NotNil(t, got.DoctorID)
	assert.Equal(t, int64(9), *got.DoctorID)
	assert.Equal(t, StatusPending, got.Status)
}

func TestPgRepository_CreateAppointment_NoDoctor(t *testing.T) {
	repo, mock := newMockRepo(t)
	slot := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(2), pgxmock.AnyArg(), slot).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(int64(1), int64(2), nil, slot, StatusPending))

	got, err := repo.CreateAppointment(context.Background(), 2, nil, slot)
	require.NoError(t, err)
	assert.Nil(t, got.DoctorID)
}

func TestPgRepository_UniqueViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	slot := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)
	doctor := int64(9)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(2), pgxmock.AnyArg(), slot).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_doctor_slot_active_uidx"})

	_, err := repo.CreateAppointment(context.Background(), 2, &doctor, slot)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPgRepository_RescheduleConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	slot := time.Date(2025, 12, 16, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SET timeslot = $2")).
		WithArgs(int64(5), slot).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Reschedule(context.Background(), 5, slot)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPgRepository_GetAppointmentByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM appointments").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgRepository_ApproveAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	slot := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AND (doctor_id IS NULL OR doctor_id = $2)")).
		WithArgs(int64(1), int64(9)).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(int64(1), int64(2), int64(9), slot, StatusApproved))

	got, err := repo.ApproveAppointment(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.True(t, got.BoundTo(9))
}

func TestPgRepository_HasActiveBooking(t *testing.T) {
	repo, mock := newMockRepo(t)
	slot := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(9), slot).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.HasActiveBooking(context.Background(), 9, slot)
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestPgRepository_ListByPatient(t *testing.T) {
	repo, mock := newMockRepo(t)
	later := time.Date(2025, 12, 16, 9, 0, 0, 0, time.UTC)
	earlier := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE patient_id = \\$1").
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(int64(2), int64(2), nil, later, StatusPending).
			AddRow(int64(1), int64(2), int64(9), earlier, StatusCancelled))

	list, err := repo.ListByPatient(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	assert.Nil(t, list[0].DoctorID)
	assert.Equal(t, StatusCancelled, list[1].Status)
}

func TestPgRepository_ListByDoctor_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("WHERE doctor_id = \\$1").
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows(columns))

	list, err := repo.ListByDoctor(context.Background(), 9)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
