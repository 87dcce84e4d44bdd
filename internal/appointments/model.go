// Package appointments holds the appointment model and the slot registry that
// enforces one appointment per doctor and time slot.
package appointments

import (
	"strings"
	"time"
)

// Status of an appointment record.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusBlocked   Status = "blocked"
)

const (
	DefaultPatientName = "New Patient"
	DefaultLocation    = "unknown"
	BlockedPatientName = "BLOCKED TIME"
)

// PatientDetails carries the optional contact and medical fields collected by
// the structured booking form.
type PatientDetails struct {
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Age              int    `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	MedicalID        string `json:"medical_id,omitempty"`
	Allergies        string `json:"allergies,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty"`
	EmergencyPhone   string `json:"emergency_phone,omitempty"`
}

// Appointment is a booked or blocked slot on a doctor's schedule.
type Appointment struct {
	ID               string          `json:"id"`
	DoctorID         string          `json:"doctor_id"`
	PatientName      string          `json:"patient_name"`
	TimeLabel        string          `json:"time_label"`
	Reason           string          `json:"reason"`
	Location         string          `json:"location"`
	Status           Status          `json:"status"`
	ConfirmationID   string          `json:"confirmation_id,omitempty"`
	ExternalEventRef string          `json:"external_event_ref,omitempty"`
	Patient          *PatientDetails `json:"patient,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SlotKey returns the normalised slot key for the appointment's label.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.TimeLabel)
}

// Validate checks the fields the registry needs to index a record.
func (a *Appointment) Validate() error {
	if a == nil {
		return ErrInvalidAppointment
	}
	if strings.TrimSpace(a.DoctorID) == "" || strings.TrimSpace(a.TimeLabel) == "" {
		return ErrInvalidAppointment
	}
	switch a.Status {
	case StatusConfirmed, StatusBlocked:
	default:
		return ErrInvalidAppointment
	}
	return nil
}

// ApplyDefaults fills placeholder values for fields the caller left empty.
func (a *Appointment) ApplyDefaults() {
	if strings.TrimSpace(a.PatientName) == "" {
		a.PatientName = DefaultPatientName
	}
	if strings.TrimSpace(a.Location) == "" {
		a.Location = DefaultLocation
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
}

// Clone returns a deep copy so callers never share registry-owned memory.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	out := *a
	if a.Patient != nil {
		p := *a.Patient
		out.Patient = &p
	}
	return &out
}
