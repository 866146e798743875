package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := createTables(context.Background(), pool); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	doctorIDs, err := seedDoctors(context.Background(), pool, 12)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 400)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedProcedures(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed procedures: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, doctorIDs, patientIDs); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func createTables(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS doctors (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			specialty text,
			consultation_fee numeric(10,2),
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			phone text,
			email text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS procedures (
			id uuid PRIMARY KEY,
			doctor_id uuid NOT NULL REFERENCES doctors(id),
			name text NOT NULL,
			price numeric(10,2) NOT NULL,
			code text,
			category text
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id uuid PRIMARY KEY,
			patient_id uuid NOT NULL REFERENCES patients(id),
			doctor_id uuid NOT NULL REFERENCES doctors(id),
			clinic_id uuid NOT NULL,
			starts_at timestamptz NOT NULL,
			type text NOT NULL,
			status text NOT NULL,
			urgent boolean NOT NULL DEFAULT false,
			notes text NOT NULL DEFAULT '',
			price numeric(10,2),
			payment_method text,
			create_invoice boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_starts
			ON appointments (doctor_id, starts_at)`,
		`CREATE TABLE IF NOT EXISTS appointment_events (
			id bigserial PRIMARY KEY,
			event_type text NOT NULL,
			appointment_id uuid,
			payload jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := float64(gofakeit.Number(120, 450))

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, consultation_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, phone, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, gofakeit.Name(), gofakeit.Phone(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedProcedures(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding procedures for %d doctors", len(doctorIDs))

	names := []string{
		"Dermatoscopy",
		"Cryotherapy",
		"Minor Excision",
		"Electrocardiogram",
		"Stress Test",
		"Joint Infiltration",
		"Visual Field Exam",
		"Skin Biopsy",
	}
	categories := []string{"diagnostic", "therapeutic", "surgical"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		n := gofakeit.Number(2, 5)
		for i := 0; i < n; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO procedures (id, doctor_id, name, price, code, category)
				VALUES ($1, $2, $3, $4, $5, $6)
			`,
				uuid.New(),
				doctorID,
				names[gofakeit.Number(0, len(names)-1)],
				float64(gofakeit.Number(80, 900)),
				gofakeit.DigitN(8),
				categories[gofakeit.Number(0, len(categories)-1)],
			)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// seedAppointments fills part of today's and tomorrow's agenda per doctor so
// the schedule endpoint has booked, tentative and urgent slots to show.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctorIDs, patientIDs []uuid.UUID) error {
	log.Printf("seeding appointments for %d doctors", len(doctorIDs))

	clinicID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	types := []clinic.AppointmentType{clinic.TypeFirstVisit, clinic.TypeFollowUp, clinic.TypeProcedure}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	for _, doctorID := range doctorIDs {
		for dayOffset := 0; dayOffset < 2; dayOffset++ {
			day := today.AddDate(0, 0, dayOffset)
			n := gofakeit.Number(3, 8)
			for i := 0; i < n; i++ {
				// Working day ticks, 30 minute grid, skipping the lunch hour.
				hour := gofakeit.Number(8, 17)
				if hour == 12 {
					hour = 14
				}
				minute := gofakeit.Number(0, 1) * 30
				startsAt := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)

				status := clinic.StatusScheduled
				if gofakeit.Number(0, 4) == 0 {
					status = clinic.StatusTentative
				}
				urgent := gofakeit.Number(0, 9) == 0

				_, err := tx.Exec(ctx, `
					INSERT INTO appointments
						(id, patient_id, doctor_id, clinic_id, starts_at, type, status,
						 urgent, notes, price, payment_method, create_invoice, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', NULL, NULL, false, now(), now())
					ON CONFLICT DO NOTHING
				`,
					uuid.New(),
					patientIDs[gofakeit.Number(0, len(patientIDs)-1)],
					doctorID,
					clinicID,
					startsAt,
					types[gofakeit.Number(0, len(types)-1)],
					status,
					urgent,
				)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
