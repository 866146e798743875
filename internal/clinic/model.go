// Package clinic defines the domain entities of the practice and the
// collaborator operations the scheduling core consumes from the surrounding
// system: doctor/patient directories, procedure catalogs, visit history and
// appointment persistence.
package clinic

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type AppointmentType string

const (
	TypeFirstVisit AppointmentType = "first_visit"
	TypeFollowUp   AppointmentType = "follow_up"
	TypeProcedure  AppointmentType = "procedure"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeFirstVisit, TypeFollowUp, TypeProcedure:
		return true
	}
	return false
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusTentative AppointmentStatus = "tentative"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	ConsultationFee *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Procedure is a billable service with its own fixed price, distinct from the
// doctor's generic consultation fee.
type Procedure struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Name     string
	Price    float64
	Code     *string
	Category *string
}

type Appointment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	ClinicID      uuid.UUID
	StartsAt      time.Time
	Type          AppointmentType
	Status        AppointmentStatus
	Urgent        bool
	Notes         string
	Price         *float64
	PaymentMethod *string
	CreateInvoice bool
	PatientName   string // joined from patients for schedule views
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BookingRequest is the single outgoing shape assembled by the booking flow.
type BookingRequest struct {
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	ClinicID      uuid.UUID
	StartsAt      time.Time
	Type          AppointmentType
	Notes         string
	Urgent        bool
	Tentative     bool
	Price         *float64
	PaymentMethod string
	CreateInvoice bool
}

var (
	ErrMissingPatient   = errors.New("booking request has no patient")
	ErrMissingDoctor    = errors.New("booking request has no doctor")
	ErrMissingStartTime = errors.New("booking request has no start time")
	ErrInvalidType      = errors.New("booking request has an unknown appointment type")
)

func (r BookingRequest) Validate() error {
	if r.PatientID == uuid.Nil {
		return ErrMissingPatient
	}
	if r.DoctorID == uuid.Nil {
		return ErrMissingDoctor
	}
	if r.StartsAt.IsZero() {
		return ErrMissingStartTime
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Status returns the persisted appointment status for the request.
func (r BookingRequest) Status() AppointmentStatus {
	if r.Tentative {
		return StatusTentative
	}
	return StatusScheduled
}
