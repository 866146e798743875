// Package pricing resolves the monetary amount attached to a booking.
package pricing

import "github.com/clinicbase/scheduling/internal/clinic"

// Resolve picks the booking price from the competing sources. First defined
// value wins: selected procedure price, then the operator's manual price,
// then the doctor's default consultation fee. Nil means the booking proceeds
// unpriced. Total function, no side effects.
func Resolve(procedure *clinic.Procedure, manualPrice, doctorDefaultFee *float64) *float64 {
	if procedure != nil {
		p := procedure.Price
		return &p
	}
	if manualPrice != nil {
		p := *manualPrice
		return &p
	}
	if doctorDefaultFee != nil {
		p := *doctorDefaultFee
		return &p
	}
	return nil
}
