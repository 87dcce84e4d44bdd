package appointments

import "errors"

var (
	// ErrConflict is returned when the doctor already has a record in the slot.
	ErrConflict = errors.New("appointments: slot already occupied")

	// ErrNotFound is returned when no record exists for the slot or confirmation.
	ErrNotFound = errors.New("appointments: appointment not found")

	// ErrInvalidAppointment is returned when a record lacks a doctor, label or status.
	ErrInvalidAppointment = errors.New("appointments: doctor, time label and status are required")
)
