package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// ClinicInfo is the display metadata printed in outgoing messages.
type ClinicInfo struct {
	Name    string
	Phone   string
	Address string
}

func patientFullName(appt appointments.Appointment) string {
	if p := appt.Patient; p != nil {
		if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
			return name
		}
	}
	return appt.PatientName
}

func optionalLine(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return fmt.Sprintf("\n- %s: %s", label, value)
}

func optionalRow(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`,
		html.EscapeString(label), html.EscapeString(value))
}

func confirmationEmail(clinic ClinicInfo, doctorName string, appt appointments.Appointment) EmailMessage {
	p := appt.Patient
	name := patientFullName(appt)
	var contact, medicalID, allergies string
	if p != nil {
		contact, medicalID, allergies = p.Phone, p.MedicalID, p.Allergies
	}

	body := fmt.Sprintf(`%s - APPOINTMENT CONFIRMATION

Dear %s,

Your appointment has been successfully confirmed!

CONFIRMATION ID: %s

APPOINTMENT DETAILS:
- Doctor: %s
- Date & Time: %s
- Reason: %s
- Patient: %s%s%s%s

IMPORTANT REMINDERS:
- Arrive 15 minutes early for check-in
- Bring valid government-issued ID
- Bring insurance card (if applicable)
- Prepare list of current medications

CLINIC INFORMATION:
Address: %s
Phone: %s

Need to reschedule or cancel? Please contact us at least 24 hours in advance.

Best regards,
The %s Team`,
		clinic.Name, name, appt.ConfirmationID, doctorName, appt.TimeLabel, appt.Reason, name,
		optionalLine("Contact", contact), optionalLine("Medical ID", medicalID), optionalLine("Allergies", allergies),
		clinic.Address, clinic.Phone, clinic.Name)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #10b981;">Appointment Confirmed</h2>
<p>Dear %s, your appointment with <strong>%s</strong> is confirmed.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  %s%s%s%s%s%s
</table>
<p>%s &middot; %s</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">The %s Team</p>
</div>`,
		html.EscapeString(name), html.EscapeString(doctorName),
		optionalRow("Confirmation ID", appt.ConfirmationID), optionalRow("Date & Time", appt.TimeLabel),
		optionalRow("Reason", appt.Reason), optionalRow("Contact", contact),
		optionalRow("Medical ID", medicalID), optionalRow("Allergies", allergies),
		html.EscapeString(clinic.Address), html.EscapeString(clinic.Phone), html.EscapeString(clinic.Name))

	return EmailMessage{
		ToName:  name,
		Subject: fmt.Sprintf("Appointment Confirmed - %s", appt.TimeLabel),
		Body:    body,
		HTML:    htmlBody,
	}
}

func cancellationEmail(clinic ClinicInfo, doctorName string, appt appointments.Appointment) EmailMessage {
	name := patientFullName(appt)
	body := fmt.Sprintf(`%s - APPOINTMENT CANCELLED

Dear %s,

Your appointment with %s on %s has been cancelled.
Confirmation ID: %s

To book a new time, reply through the patient portal or call us at %s.

Best regards,
The %s Team`,
		clinic.Name, name, doctorName, appt.TimeLabel, appt.ConfirmationID, clinic.Phone, clinic.Name)

	return EmailMessage{
		ToName:  name,
		Subject: fmt.Sprintf("Appointment Cancelled - %s", appt.TimeLabel),
		Body:    body,
	}
}

func doctorNotificationEmail(clinic ClinicInfo, doctorName string, appt appointments.Appointment) EmailMessage {
	p := appt.Patient
	if p == nil {
		p = &appointments.PatientDetails{}
	}
	name := patientFullName(appt)
	var age string
	if p.Age > 0 {
		age = fmt.Sprintf("%d years old", p.Age)
		if p.Gender != "" {
			age += " (" + p.Gender + ")"
		}
	}
	var emergency string
	if p.EmergencyContact != "" {
		emergency = p.EmergencyContact
		if p.EmergencyPhone != "" {
			emergency += " (" + p.EmergencyPhone + ")"
		}
	}

	body := fmt.Sprintf(`%s - NEW APPOINTMENT NOTIFICATION

Dear %s,

A new appointment has been booked:

PATIENT INFORMATION:
- Name: %s%s%s%s
- Appointment: %s
- Chief Complaint: %s
- Confirmation ID: %s%s%s%s

The appointment has been added to your calendar (if connected).

Best regards,
%s System`,
		clinic.Name, doctorName, name,
		optionalLine("Age", age), optionalLine("Phone", p.Phone), optionalLine("Email", p.Email),
		appt.TimeLabel, appt.Reason, appt.ConfirmationID,
		optionalLine("Medical ID", p.MedicalID), optionalLine("Allergies", p.Allergies), optionalLine("Emergency Contact", emergency),
		clinic.Name)

	return EmailMessage{
		ToName:  doctorName,
		Subject: fmt.Sprintf("New Appointment: %s - %s", name, appt.TimeLabel),
		Body:    body,
	}
}

func reminderEmail(clinic ClinicInfo, doctorName string, appt appointments.Appointment, hoursBefore int) EmailMessage {
	name := patientFullName(appt)
	if p := appt.Patient; p != nil && strings.TrimSpace(p.FirstName) != "" {
		name = strings.TrimSpace(p.FirstName)
	}
	when := fmt.Sprintf("in %d hours", hoursBefore)
	if hoursBefore == 1 {
		when = "in 1 hour"
	}

	body := fmt.Sprintf(`%s - APPOINTMENT REMINDER

Dear %s,

This is a friendly reminder about your upcoming appointment %s.

APPOINTMENT DETAILS:
- Doctor: %s
- Date & Time: %s
- Reason: %s
- Confirmation ID: %s

REMINDERS:
- Arrive 15 minutes early
- Bring ID and insurance card
- Bring medication list
- Wear mask if you have symptoms

See you soon!
The %s Team`,
		clinic.Name, name, when, doctorName, appt.TimeLabel, appt.Reason, appt.ConfirmationID, clinic.Name)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #d97706;">Appointment Reminder</h2>
<p>Dear %s, your appointment with <strong>%s</strong> is %s.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  %s%s%s
</table>
<p>Please arrive 15 minutes early.</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">The %s Team</p>
</div>`,
		html.EscapeString(name), html.EscapeString(doctorName), html.EscapeString(when),
		optionalRow("Date & Time", appt.TimeLabel), optionalRow("Reason", appt.Reason),
		optionalRow("Confirmation ID", appt.ConfirmationID),
		html.EscapeString(clinic.Name))

	return EmailMessage{
		ToName:  patientFullName(appt),
		Subject: fmt.Sprintf("Appointment Reminder - %s", appt.TimeLabel),
		Body:    body,
		HTML:    htmlBody,
	}
}
