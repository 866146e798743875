package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusTentative SlotStatus = "tentative"
	StatusBreak     SlotStatus = "break"
	StatusUrgent    SlotStatus = "urgent"
)

var ErrInvalidClock = errors.New("invalid HH:mm time")

// Valid reports whether s is one of the five known slot statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusTentative, StatusBreak, StatusUrgent:
		return true
	}
	return false
}

// Selectable reports whether a slot with this status can be picked for a new
// booking. Break slots and slots bound to an appointment never are.
func (s SlotStatus) Selectable() bool {
	switch s {
	case StatusAvailable:
		return true
	case StatusBooked, StatusTentative, StatusBreak, StatusUrgent:
		return false
	}
	return false
}

// TimeSlot is one unit of a doctor's working day.
type TimeSlot struct {
	Time          string     `json:"time"` // HH:mm
	Status        SlotStatus `json:"status"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PatientName   string     `json:"patient_name,omitempty"`
}

// BreakWindow is a configured [Start, End) range excluded from bookability.
type BreakWindow struct {
	Start string `json:"start"` // HH:mm
	End   string `json:"end"`   // HH:mm
}

// Contains reports whether clock falls inside the half-open window.
// Malformed inputs are treated as outside the window.
func (b BreakWindow) Contains(clock string) bool {
	t, err := ParseClock(clock)
	if err != nil {
		return false
	}
	start, err := ParseClock(b.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(b.End)
	if err != nil {
		return false
	}
	return t >= start && t < end
}

// ParseClock converts an HH:mm string to minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as HH:mm.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
