package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/scheduling/internal/booking"
	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/history"
	"github.com/clinicbase/scheduling/internal/schedule"
)

const dateLayout = "2006-01-02"

type DoctorResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialty       *string   `json:"specialty,omitempty"`
	ConsultationFee *float64  `json:"consultation_fee,omitempty"`
}

func toDoctorResponse(d clinic.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:              d.ID,
		Name:            d.Name,
		Specialty:       d.Specialty,
		ConsultationFee: d.ConsultationFee,
	}
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone *string   `json:"phone,omitempty"`
	Email *string   `json:"email,omitempty"`
}

func toPatientResponse(p clinic.Patient) PatientResponse {
	return PatientResponse{ID: p.ID, Name: p.Name, Phone: p.Phone, Email: p.Email}
}

type ProcedureResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	Code     *string   `json:"code,omitempty"`
	Category *string   `json:"category,omitempty"`
}

func toProcedureResponse(p clinic.Procedure) ProcedureResponse {
	return ProcedureResponse{ID: p.ID, Name: p.Name, Price: p.Price, Code: p.Code, Category: p.Category}
}

type ScheduleResponse struct {
	DoctorID uuid.UUID             `json:"doctor_id"`
	Date     string                `json:"date"`
	Break    *schedule.BreakWindow `json:"break,omitempty"`
	Slots    []schedule.TimeSlot   `json:"slots"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ClinicID      uuid.UUID `json:"clinic_id"`
	StartsAt      time.Time `json:"starts_at"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Urgent        bool      `json:"urgent"`
	Notes         string    `json:"notes,omitempty"`
	Price         *float64  `json:"price,omitempty"`
	PaymentMethod *string   `json:"payment_method,omitempty"`
	CreateInvoice bool      `json:"create_invoice"`
	PatientName   string    `json:"patient_name,omitempty"`
}

func toAppointmentResponse(a clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ClinicID:      a.ClinicID,
		StartsAt:      a.StartsAt,
		Type:          string(a.Type),
		Status:        string(a.Status),
		Urgent:        a.Urgent,
		Notes:         a.Notes,
		Price:         a.Price,
		PaymentMethod: a.PaymentMethod,
		CreateInvoice: a.CreateInvoice,
		PatientName:   a.PatientName,
	}
}

// Wizard session DTOs

type SelectPatientRequest struct {
	PatientID string `json:"patient_id"`
}

type SelectDoctorRequest struct {
	DoctorID string `json:"doctor_id"`
}

type SelectTimeRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:mm
}

type DetailsRequest struct {
	AppointmentType string   `json:"appointment_type"`
	Notes           string   `json:"notes"`
	Urgent          bool     `json:"urgent"`
	ProcedureID     *string  `json:"procedure_id,omitempty"`
	ManualPrice     *float64 `json:"manual_price,omitempty"`
	PaymentMethod   *string  `json:"payment_method,omitempty"`
	CreateInvoice   *bool    `json:"create_invoice,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type StatusUpdateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type DraftResponse struct {
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	PatientName   string     `json:"patient_name,omitempty"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	Date          string     `json:"date,omitempty"`
	Time          string     `json:"time,omitempty"`
	Type          string     `json:"appointment_type,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Urgent        bool       `json:"urgent"`
	ProcedureID   *uuid.UUID `json:"procedure_id,omitempty"`
	ManualPrice   *float64   `json:"manual_price,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	CreateInvoice bool       `json:"create_invoice"`
}

type LookupResponse struct {
	State   string           `json:"state"`
	Error   string           `json:"error,omitempty"`
	Summary *history.Summary `json:"summary,omitempty"`
}

type ProceduresLookupResponse struct {
	State      string              `json:"state"`
	Error      string              `json:"error,omitempty"`
	Procedures []ProcedureResponse `json:"procedures,omitempty"`
}

type WizardResponse struct {
	ID            uuid.UUID                `json:"id"`
	Step          int                      `json:"step"`
	StepName      string                   `json:"step_name"`
	Submitting    bool                     `json:"submitting"`
	ResolvedPrice *float64                 `json:"resolved_price,omitempty"`
	Draft         DraftResponse            `json:"draft"`
	History       LookupResponse           `json:"history"`
	Procedures    ProceduresLookupResponse `json:"procedures"`
}

func toWizardResponse(id uuid.UUID, w *booking.Wizard) WizardResponse {
	draft := w.Draft()

	dr := DraftResponse{
		Time:          draft.Time,
		Type:          string(draft.Type),
		Notes:         draft.Notes,
		Urgent:        draft.Urgent,
		ProcedureID:   draft.ProcedureID,
		ManualPrice:   draft.ManualPrice,
		PaymentMethod: draft.PaymentMethod,
		CreateInvoice: draft.CreateInvoice,
	}
	if draft.Patient != nil {
		id := draft.Patient.ID
		dr.PatientID = &id
		dr.PatientName = draft.Patient.Name
	}
	if draft.Doctor != nil {
		id := draft.Doctor.ID
		dr.DoctorID = &id
		dr.DoctorName = draft.Doctor.Name
	}
	if !draft.Date.IsZero() {
		dr.Date = draft.Date.Format(dateLayout)
	}

	hist := w.History()
	hr := LookupResponse{State: hist.State.String(), Summary: hist.Summary}
	if hist.Err != nil {
		hr.Error = hist.Err.Error()
	}

	procs := w.Procedures()
	pr := ProceduresLookupResponse{State: procs.State.String()}
	if procs.Err != nil {
		pr.Error = procs.Err.Error()
	}
	for _, p := range procs.Procedures {
		pr.Procedures = append(pr.Procedures, toProcedureResponse(p))
	}

	step := w.Step()
	return WizardResponse{
		ID:            id,
		Step:          int(step),
		StepName:      step.String(),
		Submitting:    w.Submitting(),
		ResolvedPrice: w.ResolvedPrice(),
		Draft:         dr,
		History:       hr,
		Procedures:    pr,
	}
}
