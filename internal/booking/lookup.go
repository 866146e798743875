package booking

import (
	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/history"
)

// LookupState tags the lifecycle of an asynchronous enrichment lookup. The
// wizard never blocks on a lookup; dependent panels read the state and render
// accordingly.
type LookupState int

const (
	LookupIdle LookupState = iota
	LookupPending
	LookupSucceeded
	LookupFailed
)

func (s LookupState) String() string {
	switch s {
	case LookupIdle:
		return "idle"
	case LookupPending:
		return "pending"
	case LookupSucceeded:
		return "succeeded"
	case LookupFailed:
		return "failed"
	}
	return "unknown"
}

// HistoryLookup is the observable state of the patient history fetch.
type HistoryLookup struct {
	State   LookupState
	Summary *history.Summary
	Err     error
}

// ProcedureLookup is the observable state of the doctor's catalog fetch.
type ProcedureLookup struct {
	State      LookupState
	Procedures []clinic.Procedure
	Err        error
}
