package clinic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinicbase/scheduling/internal/redis"
)

// passthroughLocker runs the critical section inline, or fails with a fixed
// error to simulate lock contention.
type passthroughLocker struct {
	err error
}

func (l passthroughLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func newMockStore(t *testing.T, locker redisclient.Locker) (*PgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgStoreWithDB(mock, locker), mock
}

func TestPgStore_GetDoctorByID(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	id := uuid.New()
	spec := "Dermatology"
	fee := 250.0
	now := time.Now()

	mock.ExpectQuery(`SELECT id, name, specialty, consultation_fee, created_at, updated_at\s+FROM doctors`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "specialty", "consultation_fee", "created_at", "updated_at"},
		).AddRow(id, "Dr. Lima", &spec, &fee, now, now))

	doctor, err := store.GetDoctorByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Lima", doctor.Name)
	require.NotNil(t, doctor.ConsultationFee)
	assert.Equal(t, 250.0, *doctor.ConsultationFee)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_GetDoctorByID_NotFound(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	id := uuid.New()
	mock.ExpectQuery(`FROM doctors`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetDoctorByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestPgStore_CreateAppointment_SlotTaken(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	req := BookingRequest{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		ClinicID:  uuid.New(),
		StartsAt:  time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC),
		Type:      TypeFollowUp,
	}

	mock.ExpectQuery(`SELECT id\s+FROM appointments\s+WHERE doctor_id`).
		WithArgs(req.DoctorID, req.StartsAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	_, err := store.CreateAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotTaken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_CreateAppointment_Success(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	price := 150.0
	req := BookingRequest{
		PatientID:     uuid.New(),
		DoctorID:      uuid.New(),
		ClinicID:      uuid.New(),
		StartsAt:      time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC),
		Type:          TypeFollowUp,
		Notes:         "bring exams",
		Price:         &price,
		PaymentMethod: "credit_card",
		CreateInvoice: true,
	}

	now := time.Now()

	mock.ExpectQuery(`SELECT id\s+FROM appointments\s+WHERE doctor_id`).
		WithArgs(req.DoctorID, req.StartsAt).
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), req.PatientID, req.DoctorID, req.ClinicID, req.StartsAt,
			req.Type, StatusScheduled, false, "bring exams", &price, pgxmock.AnyArg(), true).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	mock.ExpectExec(`INSERT INTO appointment_events`).
		WithArgs(EventAppointmentCreated, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	appt, err := store.CreateAppointment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, req.StartsAt, appt.StartsAt)
	require.NotNil(t, appt.Price)
	assert.Equal(t, 150.0, *appt.Price)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_CreateAppointment_LockContention(t *testing.T) {
	store, _ := newMockStore(t, passthroughLocker{err: redisclient.ErrLockNotAcquired})

	_, err := store.CreateAppointment(context.Background(), BookingRequest{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		StartsAt:  time.Now(),
		Type:      TypeFirstVisit,
	})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestPgStore_CreateAppointment_Validation(t *testing.T) {
	store, _ := newMockStore(t, passthroughLocker{})

	_, err := store.CreateAppointment(context.Background(), BookingRequest{})
	assert.ErrorIs(t, err, ErrMissingPatient)

	_, err = store.CreateAppointment(context.Background(), BookingRequest{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		StartsAt:  time.Now(),
		Type:      AppointmentType("walk_in"),
	})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestPgStore_VisitStats_SuggestsReturnAfterConsultation(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	patientID := uuid.New()
	lastVisit := time.Date(2024, 2, 9, 10, 0, 0, 0, time.UTC)
	lastType := TypeFollowUp

	mock.ExpectQuery(`ORDER BY starts_at DESC`).
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows([]string{"starts_at", "type"}).AddRow(&lastVisit, &lastType))

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows([]string{"this_month", "total"}).AddRow(2, 7))

	stats, err := store.VisitStats(context.Background(), patientID, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ReturnsThisMonth)
	assert.Equal(t, 7, stats.ReturnsTotal)
	require.NotNil(t, stats.SuggestedReturn)
	assert.Equal(t, lastVisit.AddDate(0, 0, returnIntervalDays), *stats.SuggestedReturn)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_VisitStats_NoSuggestionAfterProcedure(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	patientID := uuid.New()
	lastVisit := time.Date(2024, 2, 9, 10, 0, 0, 0, time.UTC)
	lastType := TypeProcedure

	mock.ExpectQuery(`ORDER BY starts_at DESC`).
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows([]string{"starts_at", "type"}).AddRow(&lastVisit, &lastType))

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows([]string{"this_month", "total"}).AddRow(0, 0))

	stats, err := store.VisitStats(context.Background(), patientID, nil)
	require.NoError(t, err)
	assert.Nil(t, stats.SuggestedReturn)
}

func TestPgStore_VisitStats_NoPriorVisits(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	patientID := uuid.New()

	mock.ExpectQuery(`ORDER BY starts_at DESC`).
		WithArgs(patientID).
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows([]string{"this_month", "total"}).AddRow(0, 0))

	stats, err := store.VisitStats(context.Background(), patientID, nil)
	require.NoError(t, err)
	assert.Nil(t, stats.LastVisit)
	assert.Nil(t, stats.SuggestedReturn)
}

func TestPgStore_CancelAppointment_NotFound(t *testing.T) {
	store, mock := newMockStore(t, passthroughLocker{})

	id := uuid.New()
	mock.ExpectExec(`UPDATE appointments`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`WHERE a\.id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	err := store.CancelAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
