// Package booking drives the multi-step appointment booking workflow: a
// linear four-step wizard that accumulates a draft, runs the history and
// catalog lookups in the background, resolves the price and submits one
// booking request.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/history"
	"github.com/clinicbase/scheduling/internal/pricing"
	"github.com/clinicbase/scheduling/internal/schedule"
)

type Step int

const (
	StepSelectPatient Step = iota + 1
	StepSelectDoctorTime
	StepDetails
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepSelectPatient:
		return "select_patient"
	case StepSelectDoctorTime:
		return "select_doctor_time"
	case StepDetails:
		return "details"
	case StepConfirm:
		return "confirm"
	}
	return "unknown"
}

var (
	ErrWizardClosed       = errors.New("wizard is closed")
	ErrStepIncomplete     = errors.New("current step selections are incomplete")
	ErrAtFinalStep        = errors.New("already at the confirm step")
	ErrNotAtConfirm       = errors.New("submission is only reachable from the confirm step")
	ErrSubmitInFlight     = errors.New("a submission is already in flight")
	ErrDraftIncomplete    = errors.New("draft is missing patient, doctor or time")
	ErrBreakTime          = errors.New("time falls inside the break window")
	ErrUnknownProcedure   = errors.New("procedure is not in the doctor's catalog")
	ErrInvalidAppointment = errors.New("unknown appointment type")
)

// AppointmentCreator is the single mutation the wizard needs from the
// surrounding system.
type AppointmentCreator interface {
	CreateAppointment(ctx context.Context, req clinic.BookingRequest) (*clinic.Appointment, error)
}

// Deps are the collaborators and clinic settings a wizard instance runs with.
type Deps struct {
	ClinicID     uuid.UUID
	Location     *time.Location
	Break        *schedule.BreakWindow
	History      *history.Analyzer
	Procedures   clinic.ProcedureCatalog
	Appointments AppointmentCreator

	// OnCancel is invoked after the wizard closes (explicit cancel or back
	// from the first step). Optional.
	OnCancel func()
}

// Wizard is the booking flow state machine. One active operator per instance;
// the mutex only serializes operator actions against background lookup
// goroutines applying their results.
type Wizard struct {
	mu   sync.Mutex
	deps Deps

	step  Step
	draft Draft

	histLookup HistoryLookup
	procLookup ProcedureLookup
	histGen    uint64
	procGen    uint64

	submitting bool
	closed     bool
}

func NewWizard(deps Deps) *Wizard {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Wizard{
		deps: deps,
		step: StepSelectPatient,
	}
}

// Step returns the current wizard step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns a copy of the current draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// History returns the observable state of the patient history lookup.
func (w *Wizard) History() HistoryLookup {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.histLookup
}

// Procedures returns the observable state of the procedure catalog lookup.
func (w *Wizard) Procedures() ProcedureLookup {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.procLookup
	out.Procedures = append([]clinic.Procedure(nil), w.procLookup.Procedures...)
	return out
}

// Submitting reports whether a submission is in flight.
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// SelectPatient sets the draft's patient and starts the history lookup in the
// background. The lookup never gates step advancement; its result is dropped
// if the patient changes again or the wizard closes before it lands.
func (w *Wizard) SelectPatient(ctx context.Context, p *clinic.Patient) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWizardClosed
	}
	w.draft = w.draft.WithPatient(p)
	w.histGen++
	gen := w.histGen
	w.histLookup = HistoryLookup{State: LookupPending}

	var doctorID *uuid.UUID
	if w.draft.Doctor != nil {
		id := w.draft.Doctor.ID
		doctorID = &id
	}
	w.mu.Unlock()

	go w.loadHistory(ctx, gen, p.ID, doctorID)
	return nil
}

func (w *Wizard) loadHistory(ctx context.Context, gen uint64, patientID uuid.UUID, doctorID *uuid.UUID) {
	summary, err := w.deps.History.Analyze(ctx, patientID, doctorID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || gen != w.histGen {
		// The triggering selection is no longer active; drop the result.
		return
	}

	if err != nil {
		w.histLookup = HistoryLookup{State: LookupFailed, Err: err}
		return
	}

	w.histLookup = HistoryLookup{State: LookupSucceeded, Summary: summary}

	// Pre-fill the date selector with the suggested return date, without
	// overriding a date the operator already picked.
	if summary.SuggestedDate != nil && w.draft.Date.IsZero() {
		w.draft = w.draft.WithDate(*summary.SuggestedDate)
	}
}

// SelectDoctor sets the draft's doctor and starts the catalog lookup in the
// background. A previously selected procedure is cleared since it belonged to
// the previous doctor's catalog.
func (w *Wizard) SelectDoctor(ctx context.Context, d *clinic.Doctor) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWizardClosed
	}
	w.draft = w.draft.WithDoctor(d).WithProcedure(nil)
	w.procGen++
	gen := w.procGen
	w.procLookup = ProcedureLookup{State: LookupPending}
	w.mu.Unlock()

	go w.loadProcedures(ctx, gen, d.ID)
	return nil
}

func (w *Wizard) loadProcedures(ctx context.Context, gen uint64, doctorID uuid.UUID) {
	procedures, err := w.deps.Procedures.ListProceduresByDoctor(ctx, doctorID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || gen != w.procGen {
		return
	}

	if err != nil {
		w.procLookup = ProcedureLookup{State: LookupFailed, Err: err}
		return
	}

	w.procLookup = ProcedureLookup{State: LookupSucceeded, Procedures: procedures}
}

// SelectTime sets the appointment day and HH:mm slot. Times inside the break
// window are never selectable.
func (w *Wizard) SelectTime(date time.Time, clock string) error {
	if _, err := schedule.ParseClock(clock); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	if w.deps.Break != nil && w.deps.Break.Contains(clock) {
		return ErrBreakTime
	}
	w.draft = w.draft.WithDate(date).WithTime(clock)
	return nil
}

// SetDetails records the appointment type, notes and urgency collected on the
// details step.
func (w *Wizard) SetDetails(t clinic.AppointmentType, notes string, urgent bool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAppointment, t)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	w.draft = w.draft.WithType(t).WithNotes(notes).WithUrgent(urgent)
	return nil
}

// SelectProcedure attaches a procedure from the loaded catalog to the draft.
// It feeds the pricing resolver and does not alter the wizard step.
func (w *Wizard) SelectProcedure(id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	for _, p := range w.procLookup.Procedures {
		if p.ID == id {
			procID := id
			w.draft = w.draft.WithProcedure(&procID)
			return nil
		}
	}
	return ErrUnknownProcedure
}

// ClearProcedure detaches the selected procedure from the draft.
func (w *Wizard) ClearProcedure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = w.draft.WithProcedure(nil)
}

func (w *Wizard) SetManualPrice(price *float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = w.draft.WithManualPrice(price)
}

func (w *Wizard) SetPaymentMethod(method string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = w.draft.WithPaymentMethod(method)
}

func (w *Wizard) SetCreateInvoice(create bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = w.draft.WithCreateInvoice(create)
}

// CanProceed reports whether the guard of the given step passes. The confirm
// step has no forward guard; its action is submit, not advance.
func (w *Wizard) CanProceed(step Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canProceedLocked(step)
}

func (w *Wizard) canProceedLocked(step Step) bool {
	switch step {
	case StepSelectPatient:
		return w.draft.Patient != nil
	case StepSelectDoctorTime:
		return w.draft.Doctor != nil && w.draft.Time != "" && !w.draft.Date.IsZero()
	case StepDetails:
		return w.draft.Type != ""
	case StepConfirm:
		return false
	}
	return false
}

// Next advances one step if the current step's guard passes. Steps are never
// skipped.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWizardClosed
	}
	if w.step == StepConfirm {
		return ErrAtFinalStep
	}
	if !w.canProceedLocked(w.step) {
		return fmt.Errorf("%w: step %s", ErrStepIncomplete, w.step)
	}
	w.step++
	return nil
}

// Back moves one step back. From the first step it instead closes the wizard,
// reporting closed = true.
func (w *Wizard) Back() (closed bool, err error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false, ErrWizardClosed
	}
	if w.step > StepSelectPatient {
		w.step--
		w.mu.Unlock()
		return false, nil
	}
	w.closeLocked()
	w.mu.Unlock()

	if w.deps.OnCancel != nil {
		w.deps.OnCancel()
	}
	return true, nil
}

// Cancel discards the draft and closes the wizard. In-flight lookup results
// arriving afterwards are dropped.
func (w *Wizard) Cancel() {
	w.mu.Lock()
	alreadyClosed := w.closed
	if !alreadyClosed {
		w.closeLocked()
	}
	w.mu.Unlock()

	if !alreadyClosed && w.deps.OnCancel != nil {
		w.deps.OnCancel()
	}
}

func (w *Wizard) closeLocked() {
	w.closed = true
	w.draft = Draft{}
	w.step = StepSelectPatient
	w.histLookup = HistoryLookup{}
	w.procLookup = ProcedureLookup{}
	w.histGen++
	w.procGen++
}

// ResolvedPrice applies the pricing precedence to the current draft:
// procedure price, then manual price, then the doctor's consultation fee.
func (w *Wizard) ResolvedPrice() *float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resolvedPriceLocked()
}

func (w *Wizard) resolvedPriceLocked() *float64 {
	var fee *float64
	if w.draft.Doctor != nil {
		fee = w.draft.Doctor.ConsultationFee
	}
	return pricing.Resolve(w.selectedProcedureLocked(), w.draft.ManualPrice, fee)
}

func (w *Wizard) selectedProcedureLocked() *clinic.Procedure {
	if w.draft.ProcedureID == nil {
		return nil
	}
	for i := range w.procLookup.Procedures {
		if w.procLookup.Procedures[i].ID == *w.draft.ProcedureID {
			return &w.procLookup.Procedures[i]
		}
	}
	return nil
}

// Submit assembles the booking request and invokes the external create
// operation. Only reachable from the confirm step, with at most one
// submission in flight. On success the draft resets and the wizard returns
// to the first step; on failure the draft is preserved and the wizard stays
// at confirm so the operator can correct and resubmit.
func (w *Wizard) Submit(ctx context.Context) (*clinic.Appointment, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWizardClosed
	}
	if w.step != StepConfirm {
		w.mu.Unlock()
		return nil, ErrNotAtConfirm
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if !w.draft.Submittable() {
		w.mu.Unlock()
		return nil, ErrDraftIncomplete
	}

	startsAt, err := w.draft.StartsAt(w.deps.Location)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}

	req := clinic.BookingRequest{
		PatientID:     w.draft.Patient.ID,
		DoctorID:      w.draft.Doctor.ID,
		ClinicID:      w.deps.ClinicID,
		StartsAt:      startsAt,
		Type:          w.draft.Type,
		Notes:         w.draft.Notes,
		Urgent:        w.draft.Urgent,
		Price:         w.resolvedPriceLocked(),
		PaymentMethod: w.draft.PaymentMethod,
		CreateInvoice: w.draft.CreateInvoice,
	}

	w.submitting = true
	w.mu.Unlock()

	appt, submitErr := w.deps.Appointments.CreateAppointment(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if submitErr != nil {
		// Draft and step stay untouched for correction and resubmission.
		return nil, fmt.Errorf("create appointment: %w", submitErr)
	}

	w.draft = Draft{}
	w.step = StepSelectPatient
	w.histLookup = HistoryLookup{}
	w.procLookup = ProcedureLookup{}
	w.histGen++
	w.procGen++

	return appt, nil
}
