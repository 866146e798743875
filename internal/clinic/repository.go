package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already has an appointment")
	ErrSlotBeingBooked     = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
)

// DoctorDirectory lists the clinic's doctors.
type DoctorDirectory interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

// PatientDirectory searches and resolves patients.
type PatientDirectory interface {
	SearchPatients(ctx context.Context, query string, limit int) ([]Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// ProcedureCatalog lists the billable procedures of one doctor.
type ProcedureCatalog interface {
	ListProceduresByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Procedure, error)
}

// AppointmentStore queries and mutates persisted appointments.
type AppointmentStore interface {
	// ListAppointmentsByDoctorDate returns every appointment of the doctor
	// whose start time falls on the given calendar day in loc.
	ListAppointmentsByDoctorDate(ctx context.Context, doctorID uuid.UUID, day time.Time, loc *time.Location) ([]Appointment, error)

	CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, startsAt time.Time) (*Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) error
}
