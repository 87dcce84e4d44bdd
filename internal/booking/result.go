// Package booking wires the command interpreter to the slot registry and the
// notification queue. Registry changes commit first; notifications are
// queued afterwards and never affect the outcome.
package booking

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/interpreter"
)

// Outcome is what happened to the registry (or would happen, for previews).
type Outcome string

const (
	OutcomeAvailable    Outcome = "available"
	OutcomeConflict     Outcome = "conflict"
	OutcomeBooked       Outcome = "booked"
	OutcomeRescheduled  Outcome = "rescheduled"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeInquiry      Outcome = "inquiry"
	OutcomeHelp         Outcome = "help"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeError        Outcome = "error"
)

// Result is the structured answer to one command. Rendering it as text is
// left to Respond.
type Result struct {
	DoctorID    string                    `json:"doctor_id"`
	Intent      interpreter.Intent        `json:"intent"`
	Fields      interpreter.Fields        `json:"fields"`
	Outcome     Outcome                   `json:"outcome"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
	// Existing is the record occupying the slot on a conflict.
	Existing *appointments.Appointment `json:"-"`
	Invalid  []string                  `json:"invalid_fields,omitempty"`
	Raw      string                    `json:"-"`
}

const inquiryReply = "Thanks for reaching out. For urgent symptoms such as chest pain, trouble breathing or severe bleeding, call emergency services right away. " +
	"For anything else, rest, stay hydrated and keep track of your symptoms. " +
	"If you would like to see a doctor, just tell me a day and time, for example \"book an appointment Friday 10am for a checkup\"."

// Respond renders a result as the human-readable reply.
func Respond(r Result) string {
	f := r.Fields
	switch r.Outcome {
	case OutcomeAvailable:
		return fmt.Sprintf("Good news! %s is available for %q. To lock it in, reply with: %s %s",
			f.TimeLabel, f.Reason, interpreter.ConfirmPrefix, confirmHint(r))
	case OutcomeBooked:
		msg := fmt.Sprintf("Your appointment for %q is confirmed for %s.", f.Reason, f.TimeLabel)
		if r.Intent == interpreter.IntentAdd {
			msg = fmt.Sprintf("Added %s on %s for %s.", f.PatientName, f.TimeLabel, f.Reason)
		}
		if r.Appointment != nil && r.Appointment.ConfirmationID != "" {
			msg += " Confirmation ID: " + r.Appointment.ConfirmationID + "."
		}
		return msg
	case OutcomeBlocked:
		return fmt.Sprintf("%s has been blocked on your calendar.", f.TimeLabel)
	case OutcomeConflict:
		label := f.TimeLabel
		if r.Intent == interpreter.IntentReschedule {
			label = f.NewTimeLabel
		}
		if r.Existing != nil && r.Existing.Status == appointments.StatusBlocked {
			return fmt.Sprintf("Sorry, %s is blocked. Please choose another time.", label)
		}
		return fmt.Sprintf("Sorry, %s is already booked. Please choose another time.", label)
	case OutcomeRescheduled:
		return fmt.Sprintf("Moved the %s appointment to %s.", f.TimeLabel, f.NewTimeLabel)
	case OutcomeCancelled:
		return fmt.Sprintf("Cancelled the %s appointment.", f.TimeLabel)
	case OutcomeNotFound:
		if f.TimeLabel == "" {
			return "No appointment was found with that confirmation ID."
		}
		return fmt.Sprintf("No appointment was found at %s.", f.TimeLabel)
	case OutcomeInvalid:
		return "Please provide the following required details: " + strings.Join(r.Invalid, ", ") + "."
	case OutcomeInquiry:
		return inquiryReply
	case OutcomeHelp:
		return interpreter.HelpText
	case OutcomeUnauthorized:
		return "Please provide your confirmation ID to cancel. Cancelling by time requires a doctor login."
	default:
		return "Sorry, something went wrong on our side. Please try again in a moment."
	}
}

// confirmHint is the text a patient can send back to confirm a preview. The
// original message is echoed so the second phase extracts the same slot.
func confirmHint(r Result) string {
	if raw := strings.TrimSpace(r.Raw); raw != "" {
		return raw
	}
	return fmt.Sprintf("%s for %s", r.Fields.TimeLabel, r.Fields.Reason)
}
