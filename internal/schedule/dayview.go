package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is the minimal view of a fetched appointment needed to build
// the booked-slot lookup. The fetching itself happens elsewhere; this package
// only reconciles already-fetched data.
type Appointment struct {
	ID          uuid.UUID
	StartsAt    time.Time
	PatientName string
	Tentative   bool
	Urgent      bool
	Cancelled   bool
}

// Booking is one entry of the booked-slot lookup consumed by Generate.
type Booking struct {
	Time          string // HH:mm
	Status        SlotStatus
	AppointmentID uuid.UUID
	PatientName   string
}

// DoctorSchedule is the reconciled slot-status view for one doctor-day.
type DoctorSchedule struct {
	DoctorID uuid.UUID    `json:"doctor_id"`
	Date     time.Time    `json:"date"`
	Break    *BreakWindow `json:"break,omitempty"`
	Slots    []TimeSlot   `json:"slots"`
}

// BuildBookedSlots turns raw fetched appointments into the HH:mm keyed lookup
// the generator consumes. Cancelled appointments leave their slot free. When
// two appointments land on the same tick, the one with the stronger status
// wins: urgent over booked over tentative.
func BuildBookedSlots(appts []Appointment, loc *time.Location) map[string]Booking {
	booked := make(map[string]Booking, len(appts))
	for _, a := range appts {
		if a.Cancelled {
			continue
		}

		local := a.StartsAt.In(loc)
		clock := FormatClock(local.Hour()*60 + local.Minute())

		status := StatusBooked
		switch {
		case a.Urgent:
			status = StatusUrgent
		case a.Tentative:
			status = StatusTentative
		}

		if existing, ok := booked[clock]; ok && statusRank(existing.Status) >= statusRank(status) {
			continue
		}
		booked[clock] = Booking{
			Time:          clock,
			Status:        status,
			AppointmentID: a.ID,
			PatientName:   a.PatientName,
		}
	}
	return booked
}

// BuildDoctorSchedule reconciles fetched appointments into the generator input
// and produces the full slot list for a doctor-day.
func BuildDoctorSchedule(doctorID uuid.UUID, date time.Time, in GenerateInput, appts []Appointment, loc *time.Location) (*DoctorSchedule, error) {
	in.Date = date
	in.Booked = BuildBookedSlots(appts, loc)

	slots, err := Generate(in)
	if err != nil {
		return nil, err
	}

	return &DoctorSchedule{
		DoctorID: doctorID,
		Date:     date,
		Break:    in.Break,
		Slots:    slots,
	}, nil
}

func statusRank(s SlotStatus) int {
	switch s {
	case StatusUrgent:
		return 3
	case StatusBooked:
		return 2
	case StatusTentative:
		return 1
	case StatusAvailable, StatusBreak:
		return 0
	}
	return 0
}
