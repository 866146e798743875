package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/schedule"
)

// Draft is the in-progress booking accumulated across wizard steps. It is a
// value type: every With method returns a modified copy and never mutates the
// receiver, so intermediate states can be held and compared safely.
type Draft struct {
	Patient       *clinic.Patient
	Doctor        *clinic.Doctor
	Date          time.Time // calendar day, zero when unset
	Time          string    // HH:mm, empty when unset
	Type          clinic.AppointmentType
	Notes         string
	Urgent        bool
	ProcedureID   *uuid.UUID
	ManualPrice   *float64
	PaymentMethod string
	CreateInvoice bool
}

func (d Draft) WithPatient(p *clinic.Patient) Draft {
	d.Patient = p
	return d
}

func (d Draft) WithDoctor(doc *clinic.Doctor) Draft {
	d.Doctor = doc
	return d
}

func (d Draft) WithDate(date time.Time) Draft {
	d.Date = date
	return d
}

func (d Draft) WithTime(clock string) Draft {
	d.Time = clock
	return d
}

func (d Draft) WithType(t clinic.AppointmentType) Draft {
	d.Type = t
	return d
}

func (d Draft) WithNotes(notes string) Draft {
	d.Notes = notes
	return d
}

func (d Draft) WithUrgent(urgent bool) Draft {
	d.Urgent = urgent
	return d
}

func (d Draft) WithProcedure(id *uuid.UUID) Draft {
	d.ProcedureID = id
	return d
}

func (d Draft) WithManualPrice(price *float64) Draft {
	d.ManualPrice = price
	return d
}

func (d Draft) WithPaymentMethod(method string) Draft {
	d.PaymentMethod = method
	return d
}

func (d Draft) WithCreateInvoice(create bool) Draft {
	d.CreateInvoice = create
	return d
}

// Submittable reports whether patient, doctor and time are all set.
func (d Draft) Submittable() bool {
	return d.Patient != nil && d.Doctor != nil && d.Time != "" && !d.Date.IsZero()
}

// StartsAt combines the selected date and HH:mm time into one absolute
// timestamp in the clinic's time zone.
func (d Draft) StartsAt(loc *time.Location) (time.Time, error) {
	if d.Date.IsZero() || d.Time == "" {
		return time.Time{}, fmt.Errorf("draft has no date and time selected")
	}
	minutes, err := schedule.ParseClock(d.Time)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(
		d.Date.Year(), d.Date.Month(), d.Date.Day(),
		minutes/60, minutes%60, 0, 0, loc,
	), nil
}
