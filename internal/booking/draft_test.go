package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbase/scheduling/internal/clinic"
	"github.com/clinicbase/scheduling/internal/schedule"
)

func TestDraft_WithMethodsDoNotMutateReceiver(t *testing.T) {
	var empty Draft

	patient := &clinic.Patient{ID: uuid.New(), Name: "Ana"}
	withPatient := empty.WithPatient(patient)

	assert.Nil(t, empty.Patient, "receiver must stay untouched")
	assert.Equal(t, patient, withPatient.Patient)

	chained := withPatient.
		WithDoctor(&clinic.Doctor{ID: uuid.New()}).
		WithTime("09:30").
		WithNotes("first chain")

	assert.Empty(t, withPatient.Time)
	assert.Equal(t, "09:30", chained.Time)
	assert.Equal(t, "first chain", chained.Notes)
}

func TestDraft_Submittable(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	var d Draft
	assert.False(t, d.Submittable())

	d = d.WithPatient(&clinic.Patient{ID: uuid.New()})
	assert.False(t, d.Submittable())

	d = d.WithDoctor(&clinic.Doctor{ID: uuid.New()})
	assert.False(t, d.Submittable())

	d = d.WithDate(day)
	assert.False(t, d.Submittable())

	d = d.WithTime("09:30")
	assert.True(t, d.Submittable())
}

func TestDraft_StartsAtCombinesDateAndTimeInClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	d := Draft{}.
		WithDate(time.Date(2024, 3, 10, 0, 0, 0, 0, loc)).
		WithTime("09:30")

	got, err := d.StartsAt(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 30, 0, 0, loc), got)
}

func TestDraft_StartsAtErrors(t *testing.T) {
	_, err := Draft{}.StartsAt(time.UTC)
	assert.Error(t, err)

	d := Draft{}.
		WithDate(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)).
		WithTime("25:99")
	_, err = d.StartsAt(time.UTC)
	assert.ErrorIs(t, err, schedule.ErrInvalidClock)
}
