package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbase/scheduling/internal/booking"
	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/schedule"
)

// wizardStore keeps one live wizard per session id. Sessions disappear when
// the wizard closes (cancel or back from the first step).
type wizardStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*booking.Wizard
}

func newWizardStore() *wizardStore {
	return &wizardStore{sessions: make(map[uuid.UUID]*booking.Wizard)}
}

func (s *wizardStore) create(deps booking.Deps) (uuid.UUID, *booking.Wizard) {
	id := uuid.New()
	deps.OnCancel = func() { s.remove(id) }
	w := booking.NewWizard(deps)

	s.mu.Lock()
	s.sessions[id] = w
	s.mu.Unlock()
	return id, w
}

func (s *wizardStore) get(id uuid.UUID) (*booking.Wizard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.sessions[id]
	return w, ok
}

func (s *wizardStore) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func createWizardHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz := s.wizards.create(booking.Deps{
			ClinicID:     s.cfg.ClinicID,
			Location:     s.cfg.Location,
			Break:        s.cfg.BreakWindow(),
			History:      s.history,
			Procedures:   s.procedures,
			Appointments: s.appointments,
		})
		writeJSON(w, http.StatusCreated, toWizardResponse(id, wiz))
	}
}

func getWizardHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardSelectPatientHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}

		var req SelectPatientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		patient, err := s.patients.GetPatientByID(r.Context(), patientID)
		if err != nil {
			handleClinicError(w, err)
			return
		}

		// The history lookup outlives this request on purpose.
		if err := wiz.SelectPatient(context.WithoutCancel(r.Context()), patient); err != nil {
			handleWizardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardSelectDoctorHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}

		var req SelectDoctorRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		doctor, err := s.doctors.GetDoctorByID(r.Context(), doctorID)
		if err != nil {
			handleClinicError(w, err)
			return
		}

		if err := wiz.SelectDoctor(context.WithoutCancel(r.Context()), doctor); err != nil {
			handleWizardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardSelectTimeHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}

		var req SelectTimeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		day, err := time.ParseInLocation(dateLayout, req.Date, s.cfg.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		if err := wiz.SelectTime(day, req.Time); err != nil {
			handleWizardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardDetailsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}

		var req DetailsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if req.AppointmentType != "" {
			if err := wiz.SetDetails(clinic.AppointmentType(req.AppointmentType), req.Notes, req.Urgent); err != nil {
				handleWizardError(w, err)
				return
			}
		}

		if req.ProcedureID != nil {
			if *req.ProcedureID == "" {
				wiz.ClearProcedure()
			} else {
				procID, err := uuid.Parse(*req.ProcedureID)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_procedure_id", "procedure_id must be a valid UUID")
					return
				}
				if err := wiz.SelectProcedure(procID); err != nil {
					handleWizardError(w, err)
					return
				}
			}
		}
		if req.ManualPrice != nil {
			wiz.SetManualPrice(req.ManualPrice)
		}
		if req.PaymentMethod != nil {
			wiz.SetPaymentMethod(*req.PaymentMethod)
		}
		if req.CreateInvoice != nil {
			wiz.SetCreateInvoice(*req.CreateInvoice)
		}

		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardNextHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}
		if err := wiz.Next(); err != nil {
			handleWizardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardBackHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}
		closed, err := wiz.Back()
		if err != nil {
			handleWizardError(w, err)
			return
		}
		if closed {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, toWizardResponse(id, wiz))
	}
}

func wizardSubmitHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}

		appt, err := wiz.Submit(r.Context())
		if err != nil {
			handleWizardError(w, err)
			return
		}

		s.wizards.remove(id)
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func cancelWizardHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, wiz, ok := s.wizardFromRequest(w, r)
		if !ok {
			return
		}
		wiz.Cancel()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) wizardFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, *booking.Wizard, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_wizard_id", "id must be a valid UUID")
		return uuid.Nil, nil, false
	}
	wiz, ok := s.wizards.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "wizard_not_found", "no active wizard session with this id")
		return uuid.Nil, nil, false
	}
	return id, wiz, true
}

func handleWizardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrStepIncomplete),
		errors.Is(err, booking.ErrDraftIncomplete),
		errors.Is(err, booking.ErrInvalidAppointment),
		errors.Is(err, booking.ErrUnknownProcedure),
		errors.Is(err, booking.ErrBreakTime),
		errors.Is(err, schedule.ErrInvalidClock):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, booking.ErrAtFinalStep),
		errors.Is(err, booking.ErrNotAtConfirm):
		writeError(w, http.StatusConflict, "wrong_step", err.Error())
	case errors.Is(err, booking.ErrSubmitInFlight):
		writeError(w, http.StatusConflict, "submit_in_flight", err.Error())
	case errors.Is(err, booking.ErrWizardClosed):
		writeError(w, http.StatusGone, "wizard_closed", err.Error())
	case errors.Is(err, clinic.ErrSlotTaken),
		errors.Is(err, clinic.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "submission_failed", err.Error())
	}
}
