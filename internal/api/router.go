package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/config"
	"github.com/clinicbase/scheduling/internal/history"
)

type RouterConfig struct {
	Cfg          config.Config
	Doctors      clinic.DoctorDirectory
	Patients     clinic.PatientDirectory
	Procedures   clinic.ProcedureCatalog
	Appointments clinic.AppointmentStore
	History      *history.Analyzer
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Version      string
}

// Server holds the wired collaborators behind the HTTP surface.
type Server struct {
	cfg          config.Config
	doctors      clinic.DoctorDirectory
	patients     clinic.PatientDirectory
	procedures   clinic.ProcedureCatalog
	appointments clinic.AppointmentStore
	history      *history.Analyzer
	wizards      *wizardStore
}

func NewRouter(rc RouterConfig) http.Handler {
	s := &Server{
		cfg:          rc.Cfg,
		doctors:      rc.Doctors,
		patients:     rc.Patients,
		procedures:   rc.Procedures,
		appointments: rc.Appointments,
		history:      rc.History,
		wizards:      newWizardStore(),
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(rc.PgPool, rc.Redis, rc.Cfg.Env, rc.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Directories and schedules
	r.Get("/doctors", listDoctorsHandler(s.doctors))
	r.Get("/doctors/{id}/procedures", listProceduresHandler(s.procedures))
	r.Get("/doctors/{id}/schedule", doctorScheduleHandler(s))
	r.Get("/patients", searchPatientsHandler(s.patients))
	r.Get("/patients/{id}/history", patientHistoryHandler(s))

	// Appointment mutations outside the wizard flow
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(s))
	r.Post("/appointments/{id}/status", updateAppointmentStatusHandler(s))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(s))

	// Booking wizard sessions
	r.Post("/wizard", createWizardHandler(s))
	r.Get("/wizard/{id}", getWizardHandler(s))
	r.Post("/wizard/{id}/patient", wizardSelectPatientHandler(s))
	r.Post("/wizard/{id}/doctor", wizardSelectDoctorHandler(s))
	r.Post("/wizard/{id}/time", wizardSelectTimeHandler(s))
	r.Post("/wizard/{id}/details", wizardDetailsHandler(s))
	r.Post("/wizard/{id}/next", wizardNextHandler(s))
	r.Post("/wizard/{id}/back", wizardBackHandler(s))
	r.Post("/wizard/{id}/submit", wizardSubmitHandler(s))
	r.Delete("/wizard/{id}", cancelWizardHandler(s))

	return r
}
