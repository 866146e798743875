package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/schedule"
)

func listDoctorsHandler(doctors clinic.DoctorDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := doctors.ListDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(list))
		for _, d := range list {
			resp = append(resp, toDoctorResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listProceduresHandler(catalog clinic.ProcedureCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		list, err := catalog.ListProceduresByDoctor(r.Context(), doctorID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ProcedureResponse, 0, len(list))
		for _, p := range list {
			resp = append(resp, toProcedureResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorScheduleHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		dateParam := r.URL.Query().Get("date")
		if dateParam == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
			return
		}
		day, err := time.ParseInLocation(dateLayout, dateParam, s.cfg.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		if _, err := s.doctors.GetDoctorByID(r.Context(), doctorID); err != nil {
			handleClinicError(w, err)
			return
		}

		appts, err := s.appointments.ListAppointmentsByDoctorDate(r.Context(), doctorID, day, s.cfg.Location)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		view, err := schedule.BuildDoctorSchedule(doctorID, day, schedule.GenerateInput{
			StartHour:       s.cfg.WorkStartHour,
			EndHour:         s.cfg.WorkEndHour,
			IntervalMinutes: s.cfg.IntervalMinutes,
			Break:           s.cfg.BreakWindow(),
		}, toScheduleAppointments(appts), s.cfg.Location)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{
			DoctorID: view.DoctorID,
			Date:     day.Format(dateLayout),
			Break:    view.Break,
			Slots:    view.Slots,
		})
	}
}

func toScheduleAppointments(appts []clinic.Appointment) []schedule.Appointment {
	out := make([]schedule.Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, schedule.Appointment{
			ID:          a.ID,
			StartsAt:    a.StartsAt,
			PatientName: a.PatientName,
			Tentative:   a.Status == clinic.StatusTentative,
			Urgent:      a.Urgent,
			Cancelled:   a.Status == clinic.StatusCancelled,
		})
	}
	return out
}

func searchPatientsHandler(patients clinic.PatientDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		list, err := patients.SearchPatients(r.Context(), query, 20)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]PatientResponse, 0, len(list))
		for _, p := range list {
			resp = append(resp, toPatientResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func patientHistoryHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var doctorID *uuid.UUID
		if v := r.URL.Query().Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			doctorID = &id
		}

		summary, err := s.history.Analyze(r.Context(), patientID, doctorID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func rescheduleAppointmentHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		startsAt, err := combineDateTime(req.Date, req.Time, s.cfg.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_time", err.Error())
			return
		}

		appt, err := s.appointments.RescheduleAppointment(r.Context(), id, startsAt)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentStatusHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req StatusUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := s.appointments.UpdateAppointmentStatus(r.Context(), id,
			clinic.AppointmentStatus(req.From), clinic.AppointmentStatus(req.To))
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := s.appointments.CancelAppointment(r.Context(), id); err != nil {
			handleClinicError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleClinicError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, clinic.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, clinic.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, clinic.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func combineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	minutes, err := schedule.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}
