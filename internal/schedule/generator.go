package schedule

import (
	"errors"
	"time"
)

var (
	ErrInvalidHourRange = errors.New("start hour must be before end hour")
	ErrInvalidInterval  = errors.New("interval must be a positive number of minutes")
)

// GenerateInput carries everything the slot generator needs for one doctor-day.
type GenerateInput struct {
	Date            time.Time
	StartHour       int // inclusive, 0-23
	EndHour         int // exclusive
	IntervalMinutes int
	Break           *BreakWindow
	Booked          map[string]Booking // keyed by HH:mm, built by BuildBookedSlots
}

// Generate enumerates every tick from StartHour:00 up to (not including)
// EndHour:00 at IntervalMinutes spacing and assigns each tick a status.
// A tick inside the break window is always a break slot, even when a booking
// exists at the same time. Otherwise a matching booking is authoritative and
// its status and appointment binding are carried over. Everything else is
// available. The result is strictly ordered and the function is pure:
// identical inputs always yield an identical list.
func Generate(in GenerateInput) ([]TimeSlot, error) {
	if in.StartHour >= in.EndHour {
		return nil, ErrInvalidHourRange
	}
	if in.IntervalMinutes <= 0 {
		return nil, ErrInvalidInterval
	}

	start := in.StartHour * 60
	end := in.EndHour * 60

	slots := make([]TimeSlot, 0, (end-start)/in.IntervalMinutes)
	for tick := start; tick < end; tick += in.IntervalMinutes {
		clock := FormatClock(tick)

		if in.Break != nil && in.Break.Contains(clock) {
			slots = append(slots, TimeSlot{Time: clock, Status: StatusBreak})
			continue
		}

		if b, ok := in.Booked[clock]; ok {
			id := b.AppointmentID
			slots = append(slots, TimeSlot{
				Time:          clock,
				Status:        b.Status,
				AppointmentID: &id,
				PatientName:   b.PatientName,
			})
			continue
		}

		slots = append(slots, TimeSlot{Time: clock, Status: StatusAvailable})
	}

	return slots, nil
}
