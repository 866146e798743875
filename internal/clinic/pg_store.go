package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/scheduling/internal/history"
	redisclient "github.com/clinicbase/scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
)

// returnIntervalDays is the fixed interval added to the prior visit date when
// suggesting a return appointment.
const returnIntervalDays = 30

// pgDB is the slice of pgxpool.Pool the store needs. Narrowed so tests can
// substitute a mock pool.
type pgDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore implements every collaborator interface against Postgres. Slot
// writes go through the distributed locker so concurrent operators cannot
// double-book a doctor's time.
type PgStore struct {
	db     pgDB
	locker redisclient.Locker
}

func NewPgStore(pool *pgxpool.Pool, locker redisclient.Locker) *PgStore {
	return &PgStore{db: pool, locker: locker}
}

// NewPgStoreWithDB is used by tests to inject a mock pool.
func NewPgStoreWithDB(db pgDB, locker redisclient.Locker) *PgStore {
	return &PgStore{db: db, locker: locker}
}

// Scan helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.ConsultationFee,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.StartsAt,
		&a.Type,
		&a.Status,
		&a.Urgent,
		&a.Notes,
		&a.Price,
		&a.PaymentMethod,
		&a.CreateInvoice,
		&a.PatientName,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const appointmentColumns = `
	a.id, a.patient_id, a.doctor_id, a.clinic_id, a.starts_at, a.type, a.status,
	a.urgent, a.notes, a.price, a.payment_method, a.create_invoice,
	p.name, a.created_at, a.updated_at`

// DoctorDirectory

func (s *PgStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, specialty, consultation_fee, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		doctors = append(doctors, *d)
	}
	return doctors, rows.Err()
}

func (s *PgStore) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_fee, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

// PatientDirectory

func (s *PgStore) SearchPatients(ctx context.Context, query string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

func (s *PgStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// ProcedureCatalog

func (s *PgStore) ListProceduresByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Procedure, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, doctor_id, name, price, code, category
		FROM procedures
		WHERE doctor_id = $1
		ORDER BY name
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	defer rows.Close()

	var procedures []Procedure
	for rows.Next() {
		var p Procedure
		if err := rows.Scan(&p.ID, &p.DoctorID, &p.Name, &p.Price, &p.Code, &p.Category); err != nil {
			return nil, fmt.Errorf("scan procedure: %w", err)
		}
		procedures = append(procedures, p)
	}
	return procedures, rows.Err()
}

// history.Source

func (s *PgStore) VisitStats(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) (*history.Stats, error) {
	var (
		lastVisit *time.Time
		lastType  *AppointmentType
		err       error
	)

	if doctorID != nil {
		err = s.db.QueryRow(ctx, `
			SELECT starts_at, type
			FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2 AND status <> 'cancelled' AND starts_at < now()
			ORDER BY starts_at DESC
			LIMIT 1
		`, patientID, *doctorID).Scan(&lastVisit, &lastType)
	} else {
		err = s.db.QueryRow(ctx, `
			SELECT starts_at, type
			FROM appointments
			WHERE patient_id = $1 AND status <> 'cancelled' AND starts_at < now()
			ORDER BY starts_at DESC
			LIMIT 1
		`, patientID).Scan(&lastVisit, &lastType)
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load last visit: %w", err)
	}

	var thisMonth, total int
	if doctorID != nil {
		err = s.db.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE starts_at >= date_trunc('month', now())),
				COUNT(*)
			FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2 AND type = 'follow_up' AND status <> 'cancelled'
		`, patientID, *doctorID).Scan(&thisMonth, &total)
	} else {
		err = s.db.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE starts_at >= date_trunc('month', now())),
				COUNT(*)
			FROM appointments
			WHERE patient_id = $1 AND type = 'follow_up' AND status <> 'cancelled'
		`, patientID).Scan(&thisMonth, &total)
	}
	if err != nil {
		return nil, fmt.Errorf("count returns: %w", err)
	}

	stats := &history.Stats{
		LastVisit:        lastVisit,
		ReturnsThisMonth: thisMonth,
		ReturnsTotal:     total,
	}

	// Suggest a return date only after consultation-type visits; a past
	// procedure carries no implied follow-up schedule.
	if lastVisit != nil && lastType != nil && *lastType != TypeProcedure {
		suggested := lastVisit.AddDate(0, 0, returnIntervalDays)
		stats.SuggestedReturn = &suggested
	}

	return stats, nil
}

// AppointmentStore

func (s *PgStore) ListAppointmentsByDoctorDate(ctx context.Context, doctorID uuid.UUID, day time.Time, loc *time.Location) ([]Appointment, error) {
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.doctor_id = $1 AND a.starts_at >= $2 AND a.starts_at < $3
		ORDER BY a.starts_at
	`, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

// CreateAppointment writes a new appointment into the requested slot. A
// distributed lock per doctor+time guards the conflict check and insert, so
// two operators racing for the same slot cannot both succeed.
func (s *PgStore) CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, req.DoctorID, req.StartsAt, func(lockCtx context.Context) error {
		taken, err := s.slotTaken(lockCtx, req.DoctorID, req.StartsAt)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		id := uuid.New()
		row := s.db.QueryRow(lockCtx, `
			INSERT INTO appointments
				(id, patient_id, doctor_id, clinic_id, starts_at, type, status,
				 urgent, notes, price, payment_method, create_invoice, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
			RETURNING created_at, updated_at
		`, id, req.PatientID, req.DoctorID, req.ClinicID, req.StartsAt, req.Type,
			req.Status(), req.Urgent, req.Notes, req.Price, nullable(req.PaymentMethod), req.CreateInvoice)

		appt := Appointment{
			ID:            id,
			PatientID:     req.PatientID,
			DoctorID:      req.DoctorID,
			ClinicID:      req.ClinicID,
			StartsAt:      req.StartsAt,
			Type:          req.Type,
			Status:        req.Status(),
			Urgent:        req.Urgent,
			Notes:         req.Notes,
			Price:         req.Price,
			PaymentMethod: nullable(req.PaymentMethod),
			CreateInvoice: req.CreateInvoice,
		}
		if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = &appt

		s.logEvent(lockCtx, id, EventAppointmentCreated, map[string]any{
			"doctor_id":  req.DoctorID.String(),
			"patient_id": req.PatientID.String(),
			"starts_at":  req.StartsAt,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

func (s *PgStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or not in the expected state; disambiguate.
		if _, err := s.getAppointment(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}

	s.logEvent(ctx, id, EventStatusChanged, map[string]any{
		"from": string(from),
		"to":   string(to),
	})

	return s.getAppointment(ctx, id)
}

func (s *PgStore) RescheduleAppointment(ctx context.Context, id uuid.UUID, startsAt time.Time) (*Appointment, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, appt.DoctorID, startsAt, func(lockCtx context.Context) error {
		taken, err := s.slotTaken(lockCtx, appt.DoctorID, startsAt)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		if _, err := s.db.Exec(lockCtx, `
			UPDATE appointments
			SET starts_at = $1, updated_at = now()
			WHERE id = $2
		`, startsAt, id); err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		s.logEvent(lockCtx, id, EventAppointmentRescheduled, map[string]any{
			"from": appt.StartsAt,
			"to":   startsAt,
		})

		updated, err = s.getAppointment(lockCtx, id)
		return err
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return updated, nil
}

func (s *PgStore) CancelAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status <> 'cancelled'
	`, id)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.getAppointment(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{})
	return nil
}

// Helpers

func (s *PgStore) getAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) slotTaken(ctx context.Context, doctorID uuid.UUID, startsAt time.Time) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1 AND starts_at = $2 AND status <> 'cancelled'
		LIMIT 1
	`, doctorID, startsAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PgStore) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, eventType, appointmentID, data); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
