package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/history"
	"github.com/clinicbase/scheduling/internal/schedule"
)

const waitFor = 2 * time.Second

// fakeHistorySource serves canned stats per patient. A gate channel, when
// present, blocks the call until released so tests can control when a lookup
// lands.
type fakeHistorySource struct {
	mu    sync.Mutex
	stats map[uuid.UUID]*history.Stats
	gates map[uuid.UUID]chan struct{}
	err   error
}

func (f *fakeHistorySource) VisitStats(_ context.Context, patientID uuid.UUID, _ *uuid.UUID) (*history.Stats, error) {
	f.mu.Lock()
	gate := f.gates[patientID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.stats[patientID]; ok {
		return st, nil
	}
	return &history.Stats{}, nil
}

type fakeCatalog struct {
	procedures []clinic.Procedure
	err        error
}

func (f *fakeCatalog) ListProceduresByDoctor(_ context.Context, _ uuid.UUID) ([]clinic.Procedure, error) {
	return f.procedures, f.err
}

// fakeCreator records booking requests and optionally blocks until released.
type fakeCreator struct {
	mu       sync.Mutex
	requests []clinic.BookingRequest
	gate     chan struct{}
	err      error
}

func (f *fakeCreator) CreateAppointment(_ context.Context, req clinic.BookingRequest) (*clinic.Appointment, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &clinic.Appointment{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		StartsAt:  req.StartsAt,
		Type:      req.Type,
		Status:    req.Status(),
	}, nil
}

func (f *fakeCreator) lastRequest() clinic.BookingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type wizardFixture struct {
	wizard  *Wizard
	source  *fakeHistorySource
	catalog *fakeCatalog
	creator *fakeCreator
	loc     *time.Location
}

func newFixture(t *testing.T) *wizardFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	source := &fakeHistorySource{
		stats: map[uuid.UUID]*history.Stats{},
		gates: map[uuid.UUID]chan struct{}{},
	}
	catalog := &fakeCatalog{}
	creator := &fakeCreator{}

	return &wizardFixture{
		wizard: NewWizard(Deps{
			ClinicID:     uuid.New(),
			Location:     loc,
			Break:        &schedule.BreakWindow{Start: "12:00", End: "13:00"},
			History:      history.NewAnalyzer(source),
			Procedures:   catalog,
			Appointments: creator,
		}),
		source:  source,
		catalog: catalog,
		creator: creator,
		loc:     loc,
	}
}

func somePatient() *clinic.Patient {
	return &clinic.Patient{ID: uuid.New(), Name: "Ana Souza"}
}

func someDoctor(fee *float64) *clinic.Doctor {
	return &clinic.Doctor{ID: uuid.New(), Name: "Dr. Lima", ConsultationFee: fee}
}

func fl(v float64) *float64 { return &v }

func TestWizard_StepGuards(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	assert.False(t, w.CanProceed(StepSelectPatient))
	assert.ErrorIs(t, w.Next(), ErrStepIncomplete)

	require.NoError(t, w.SelectPatient(ctx, somePatient()))
	assert.True(t, w.CanProceed(StepSelectPatient))
	require.NoError(t, w.Next())
	assert.Equal(t, StepSelectDoctorTime, w.Step())

	// Doctor alone is not enough; time is required too.
	require.NoError(t, w.SelectDoctor(ctx, someDoctor(nil)))
	assert.False(t, w.CanProceed(StepSelectDoctorTime))
	assert.ErrorIs(t, w.Next(), ErrStepIncomplete)

	require.NoError(t, w.SelectTime(time.Date(2024, 3, 10, 0, 0, 0, 0, fx.loc), "09:30"))
	assert.True(t, w.CanProceed(StepSelectDoctorTime))
	require.NoError(t, w.Next())
	assert.Equal(t, StepDetails, w.Step())

	assert.False(t, w.CanProceed(StepDetails))
	require.NoError(t, w.SetDetails(clinic.TypeFollowUp, "", false))
	assert.True(t, w.CanProceed(StepDetails))
	require.NoError(t, w.Next())
	assert.Equal(t, StepConfirm, w.Step())

	// Confirm is terminal: no forward guard, no advance.
	assert.False(t, w.CanProceed(StepConfirm))
	assert.ErrorIs(t, w.Next(), ErrAtFinalStep)
}

func TestWizard_BackNeverSkipsAndClosesFromFirstStep(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	cancelled := false
	fx.wizard.deps.OnCancel = func() { cancelled = true }

	require.NoError(t, w.SelectPatient(ctx, somePatient()))
	require.NoError(t, w.Next())

	closed, err := w.Back()
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, StepSelectPatient, w.Step())

	closed, err = w.Back()
	require.NoError(t, err)
	assert.True(t, closed)
	assert.True(t, cancelled)

	assert.ErrorIs(t, w.SelectPatient(ctx, somePatient()), ErrWizardClosed)
}

func TestWizard_SelectTimeRejectsBreakWindow(t *testing.T) {
	fx := newFixture(t)
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, fx.loc)

	assert.ErrorIs(t, fx.wizard.SelectTime(day, "12:30"), ErrBreakTime)
	assert.NoError(t, fx.wizard.SelectTime(day, "13:00"))
	assert.ErrorIs(t, fx.wizard.SelectTime(day, "9:30"), schedule.ErrInvalidClock)
}

func TestWizard_SubmitAssemblesRequest(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	patient := somePatient()
	doctor := someDoctor(fl(200))
	fx.catalog.procedures = []clinic.Procedure{
		{ID: uuid.New(), DoctorID: doctor.ID, Name: "Dermatoscopy", Price: 150},
	}

	require.NoError(t, w.SelectPatient(ctx, patient))
	require.NoError(t, w.Next())
	require.NoError(t, w.SelectDoctor(ctx, doctor))
	require.NoError(t, w.SelectTime(time.Date(2024, 3, 10, 0, 0, 0, 0, fx.loc), "09:30"))
	require.NoError(t, w.Next())
	require.NoError(t, w.SetDetails(clinic.TypeFollowUp, "bring previous exams", false))
	require.NoError(t, w.Next())

	assert.Eventually(t, func() bool {
		return w.Procedures().State == LookupSucceeded
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, w.SelectProcedure(fx.catalog.procedures[0].ID))
	w.SetManualPrice(fl(80))
	w.SetPaymentMethod("credit_card")
	w.SetCreateInvoice(true)

	appt, err := w.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, appt)

	req := fx.creator.lastRequest()
	assert.Equal(t, patient.ID, req.PatientID)
	assert.Equal(t, doctor.ID, req.DoctorID)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 30, 0, 0, fx.loc), req.StartsAt)
	assert.Equal(t, clinic.TypeFollowUp, req.Type)
	assert.Equal(t, "bring previous exams", req.Notes)
	assert.Equal(t, "credit_card", req.PaymentMethod)
	assert.True(t, req.CreateInvoice)
	// Procedure price wins over the manual price and the doctor's fee.
	require.NotNil(t, req.Price)
	assert.Equal(t, 150.0, *req.Price)

	// Success resets the draft and returns to the first step.
	assert.Equal(t, StepSelectPatient, w.Step())
	assert.Equal(t, Draft{}, w.Draft())
	assert.Equal(t, LookupIdle, w.History().State)
}

func TestWizard_SubmitOnlyFromConfirm(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotAtConfirm)
}

func TestWizard_SubmitFailurePreservesDraft(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	boom := errors.New("conflict: slot already taken")
	fx.creator.err = boom

	patient := somePatient()
	require.NoError(t, w.SelectPatient(ctx, patient))
	require.NoError(t, w.Next())
	require.NoError(t, w.SelectDoctor(ctx, someDoctor(nil)))
	require.NoError(t, w.SelectTime(time.Date(2024, 3, 10, 0, 0, 0, 0, fx.loc), "10:00"))
	require.NoError(t, w.Next())
	require.NoError(t, w.SetDetails(clinic.TypeFirstVisit, "", false))
	require.NoError(t, w.Next())

	_, err := w.Submit(ctx)
	assert.ErrorIs(t, err, boom)

	// Failure surfaces but nothing is lost.
	assert.Equal(t, StepConfirm, w.Step())
	assert.Equal(t, patient.ID, w.Draft().Patient.ID)
	assert.Equal(t, "10:00", w.Draft().Time)

	// Correcting the collaborator lets the same draft go through.
	fx.creator.err = nil
	appt, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, appt.PatientID)
}

func TestWizard_NoDoubleSubmit(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	fx.creator.gate = make(chan struct{})

	require.NoError(t, w.SelectPatient(ctx, somePatient()))
	require.NoError(t, w.Next())
	require.NoError(t, w.SelectDoctor(ctx, someDoctor(nil)))
	require.NoError(t, w.SelectTime(time.Date(2024, 3, 10, 0, 0, 0, 0, fx.loc), "11:00"))
	require.NoError(t, w.Next())
	require.NoError(t, w.SetDetails(clinic.TypeFirstVisit, "", false))
	require.NoError(t, w.Next())

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(ctx)
		done <- err
	}()

	require.Eventually(t, w.Submitting, waitFor, 5*time.Millisecond)

	_, err := w.Submit(ctx)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(fx.creator.gate)
	require.NoError(t, <-done)
	assert.False(t, w.Submitting())
}

func TestWizard_StaleHistoryResultIsDropped(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	p1 := somePatient()
	p2 := somePatient()

	gate := make(chan struct{})
	fx.source.mu.Lock()
	fx.source.gates[p1.ID] = gate
	fx.source.stats[p1.ID] = &history.Stats{ReturnsTotal: 11}
	fx.source.stats[p2.ID] = &history.Stats{ReturnsTotal: 22}
	fx.source.mu.Unlock()

	require.NoError(t, w.SelectPatient(ctx, p1))
	require.NoError(t, w.SelectPatient(ctx, p2))

	require.Eventually(t, func() bool {
		return w.History().State == LookupSucceeded
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, 22, w.History().Summary.ReturnsTotal)

	// P1's lookup lands late; applying it must be a no-op against P2 state.
	close(gate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, LookupSucceeded, w.History().State)
	assert.Equal(t, 22, w.History().Summary.ReturnsTotal)
}

func TestWizard_CancelDropsInFlightLookup(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	p := somePatient()
	gate := make(chan struct{})
	fx.source.mu.Lock()
	fx.source.gates[p.ID] = gate
	fx.source.mu.Unlock()

	require.NoError(t, w.SelectPatient(ctx, p))
	w.Cancel()
	close(gate)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, LookupIdle, w.History().State)
}

func TestWizard_LookupFailureDoesNotBlockBooking(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	fx.source.err = errors.New("history backend timeout")
	fx.catalog.err = errors.New("catalog backend timeout")

	require.NoError(t, w.SelectPatient(ctx, somePatient()))
	require.NoError(t, w.Next())
	require.NoError(t, w.SelectDoctor(ctx, someDoctor(fl(200))))
	require.NoError(t, w.SelectTime(time.Date(2024, 3, 10, 0, 0, 0, 0, fx.loc), "14:00"))

	assert.Eventually(t, func() bool {
		return w.History().State == LookupFailed && w.Procedures().State == LookupFailed
	}, waitFor, 10*time.Millisecond)

	// The wizard stays fully usable without the enrichments.
	require.NoError(t, w.Next())
	require.NoError(t, w.SetDetails(clinic.TypeFirstVisit, "", false))
	require.NoError(t, w.Next())

	appt, err := w.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, appt)

	// No procedure, no manual price: the doctor's fee applies.
	req := fx.creator.lastRequest()
	require.NotNil(t, req.Price)
	assert.Equal(t, 200.0, *req.Price)
}

func TestWizard_SuggestedDatePreFillsButNeverOverrides(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	last := time.Date(2024, 2, 9, 10, 0, 0, 0, time.UTC)
	suggested := last.AddDate(0, 0, 30)

	p1 := somePatient()
	fx.source.mu.Lock()
	fx.source.stats[p1.ID] = &history.Stats{LastVisit: &last, SuggestedReturn: &suggested}
	fx.source.mu.Unlock()

	w := fx.wizard
	require.NoError(t, w.SelectPatient(ctx, p1))
	require.Eventually(t, func() bool {
		return w.History().State == LookupSucceeded
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, suggested, w.Draft().Date)

	// A date the operator already picked is kept.
	fx2 := newFixture(t)
	p2 := somePatient()
	fx2.source.mu.Lock()
	fx2.source.stats[p2.ID] = &history.Stats{LastVisit: &last, SuggestedReturn: &suggested}
	fx2.source.mu.Unlock()

	picked := time.Date(2024, 3, 15, 0, 0, 0, 0, fx2.loc)
	require.NoError(t, fx2.wizard.SelectTime(picked, "09:00"))
	require.NoError(t, fx2.wizard.SelectPatient(ctx, p2))
	require.Eventually(t, func() bool {
		return fx2.wizard.History().State == LookupSucceeded
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, picked, fx2.wizard.Draft().Date)
}

func TestWizard_SelectProcedure(t *testing.T) {
	fx := newFixture(t)
	w := fx.wizard
	ctx := context.Background()

	doctor := someDoctor(fl(200))
	procID := uuid.New()
	fx.catalog.procedures = []clinic.Procedure{
		{ID: procID, DoctorID: doctor.ID, Name: "Cryotherapy", Price: 320},
	}

	require.NoError(t, w.SelectDoctor(ctx, doctor))
	require.Eventually(t, func() bool {
		return w.Procedures().State == LookupSucceeded
	}, waitFor, 10*time.Millisecond)

	assert.ErrorIs(t, w.SelectProcedure(uuid.New()), ErrUnknownProcedure)

	step := w.Step()
	require.NoError(t, w.SelectProcedure(procID))
	assert.Equal(t, step, w.Step(), "procedure selection must not alter the wizard step")

	require.NotNil(t, w.ResolvedPrice())
	assert.Equal(t, 320.0, *w.ResolvedPrice())

	w.ClearProcedure()
	require.NotNil(t, w.ResolvedPrice())
	assert.Equal(t, 200.0, *w.ResolvedPrice())

	// Changing doctors clears the stale procedure selection.
	require.NoError(t, w.SelectProcedure(procID))
	require.NoError(t, w.SelectDoctor(ctx, someDoctor(nil)))
	assert.Nil(t, w.Draft().ProcedureID)
}
