// Package history fetches and interprets a patient's return-visit statistics.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stats is the raw return-visit data fetched from the surrounding system.
// SuggestedReturn is computed by the collaborator (prior visit date plus the
// clinic's return interval) for follow-up-type visits.
type Stats struct {
	LastVisit        *time.Time
	ReturnsThisMonth int
	ReturnsTotal     int
	SuggestedReturn  *time.Time
}

// Source answers return-visit queries for a patient, optionally scoped to one
// doctor.
type Source interface {
	VisitStats(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) (*Stats, error)
}

// Summary is the interpreted history handed to the booking flow.
type Summary struct {
	LastAppointmentDate *time.Time `json:"last_appointment_date,omitempty"`
	ReturnsThisMonth    int        `json:"returns_this_month"`
	ReturnsTotal        int        `json:"returns_total"`
	SuggestedDate       *time.Time `json:"suggested_date,omitempty"`
	Message             string     `json:"message,omitempty"`
	RequiresApproval    bool       `json:"requires_approval"`
}

type Analyzer struct {
	source Source
}

func NewAnalyzer(source Source) *Analyzer {
	return &Analyzer{source: source}
}

// Analyze fetches the patient's visit stats and applies the return-visit
// policy: more than one return within the same month carries a mandatory
// advisory. The advisory does not block booking; hosts that want a hard stop
// can check RequiresApproval themselves.
func (a *Analyzer) Analyze(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) (*Summary, error) {
	stats, err := a.source.VisitStats(ctx, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("fetch visit stats: %w", err)
	}

	summary := &Summary{
		LastAppointmentDate: stats.LastVisit,
		ReturnsThisMonth:    stats.ReturnsThisMonth,
		ReturnsTotal:        stats.ReturnsTotal,
		SuggestedDate:       stats.SuggestedReturn,
	}

	if stats.ReturnsThisMonth > 1 {
		summary.RequiresApproval = true
		summary.Message = fmt.Sprintf(
			"patient already has %d return visits this month; multiple returns within the same month require clinical approval",
			stats.ReturnsThisMonth,
		)
	}

	return summary, nil
}
