package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const icsContentType = "text/calendar; charset=UTF-8"

// GatewayConfig holds the display metadata and doctor directory used to
// address outgoing messages.
type GatewayConfig struct {
	Clinic       ClinicInfo
	DoctorEmails map[string]string
	DoctorNames  map[string]string
	Location     *time.Location
}

// Gateway performs the calendar and email side effects of registry changes.
// It only reads appointments; the registry stays the source of truth.
type Gateway struct {
	email    EmailSender
	calendar Calendar
	cfg      GatewayConfig
	now      func() time.Time
	logger   *logging.Logger
}

// NewGateway creates a notification gateway. Either collaborator may be nil,
// which disables that side effect.
func NewGateway(email EmailSender, cal Calendar, cfg GatewayConfig, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Gateway{
		email:    email,
		calendar: cal,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// NotifyCreated creates the calendar event and sends the patient confirmation
// and doctor notification. It returns the calendar event id, which may be
// non-empty even when an email failed.
func (g *Gateway) NotifyCreated(ctx context.Context, appt appointments.Appointment) (string, error) {
	start := appointments.ResolveLabel(appt.TimeLabel, g.now().In(g.cfg.Location))
	end := start.Add(time.Hour)
	doctor := g.doctorName(appt.DoctorID)
	toPatient := patientEmail(appt)

	var (
		ref  string
		errs []error
	)

	if g.calendar != nil {
		ev := CalendarEvent{
			Summary:     fmt.Sprintf("%s Appointment - %s", g.cfg.Clinic.Name, doctor),
			Description: fmt.Sprintf("Patient: %s\nReason: %s\nConfirmation ID: %s", appt.PatientName, appt.Reason, appt.ConfirmationID),
			Location:    g.cfg.Clinic.Address,
			Start:       start,
			End:         end,
		}
		if appt.Status == appointments.StatusBlocked {
			ev.Summary = "Blocked - " + appt.TimeLabel
			ev.Description = "Time blocked by " + doctor
		} else if toPatient != "" {
			ev.Attendees = []string{toPatient}
		}
		id, err := g.calendar.CreateEvent(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		} else {
			ref = id
		}
	}

	if appt.Status == appointments.StatusBlocked {
		return ref, errors.Join(errs...)
	}

	if g.email != nil && toPatient != "" {
		msg := confirmationEmail(g.cfg.Clinic, doctor, appt)
		msg.To = toPatient
		msg.Attachments = []Attachment{g.invite(appt, doctor, start, end, false)}
		if err := g.email.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if g.email != nil {
		if to := g.cfg.DoctorEmails[appt.DoctorID]; to != "" {
			msg := doctorNotificationEmail(g.cfg.Clinic, doctor, appt)
			msg.To = to
			if err := g.email.Send(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return ref, errors.Join(errs...)
}

// NotifyRemoved retracts the calendar event named by the appointment's
// external ref and tells the patient the booking was cancelled.
func (g *Gateway) NotifyRemoved(ctx context.Context, appt appointments.Appointment) error {
	var errs []error
	if g.calendar != nil && appt.ExternalEventRef != "" {
		if err := g.calendar.DeleteEvent(ctx, appt.ExternalEventRef); err != nil {
			errs = append(errs, err)
		}
	}

	if appt.Status == appointments.StatusBlocked || g.email == nil {
		return errors.Join(errs...)
	}
	if to := patientEmail(appt); to != "" {
		doctor := g.doctorName(appt.DoctorID)
		start := appointments.ResolveLabel(appt.TimeLabel, g.now().In(g.cfg.Location))
		msg := cancellationEmail(g.cfg.Clinic, doctor, appt)
		msg.To = to
		msg.Attachments = []Attachment{g.invite(appt, doctor, start, start.Add(time.Hour), true)}
		if err := g.email.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyReminder emails the patient a reminder that the appointment starts in
// roughly hoursBefore hours. Blocked slots and patients without an email are
// skipped.
func (g *Gateway) NotifyReminder(ctx context.Context, appt appointments.Appointment, hoursBefore int) error {
	if appt.Status == appointments.StatusBlocked || g.email == nil {
		return nil
	}
	to := patientEmail(appt)
	if to == "" {
		return nil
	}
	msg := reminderEmail(g.cfg.Clinic, g.doctorName(appt.DoctorID), appt, hoursBefore)
	msg.To = to
	return g.email.Send(ctx, msg)
}

// RetractEvent deletes a calendar event without emailing anyone.
func (g *Gateway) RetractEvent(ctx context.Context, ref string) error {
	if g.calendar == nil || ref == "" {
		return nil
	}
	return g.calendar.DeleteEvent(ctx, ref)
}

func (g *Gateway) invite(appt appointments.Appointment, doctor string, start, end time.Time, cancelled bool) Attachment {
	ics := BuildICS(Invite{
		UID:         InviteUID(appt.ConfirmationID, appt.TimeLabel, g.cfg.Clinic.Name),
		Organizer:   g.cfg.Clinic.Name,
		Summary:     fmt.Sprintf("%s Appointment - %s", g.cfg.Clinic.Name, doctor),
		Description: fmt.Sprintf("Appointment with %s\nReason: %s\nConfirmation ID: %s", doctor, appt.Reason, appt.ConfirmationID),
		Location:    g.cfg.Clinic.Address,
		Start:       start,
		End:         end,
		Stamp:       g.now(),
		Cancelled:   cancelled,
	})
	return Attachment{Filename: "appointment.ics", ContentType: icsContentType, Content: ics}
}

// doctorName looks the doctor up in the directory, deriving "Dr. Lee" from
// an id like "drlee" when unmapped.
func (g *Gateway) doctorName(doctorID string) string {
	if name := g.cfg.DoctorNames[doctorID]; name != "" {
		return name
	}
	id := strings.TrimSpace(doctorID)
	if rest, ok := strings.CutPrefix(strings.ToLower(id), "dr"); ok && rest != "" {
		return "Dr. " + strings.ToUpper(rest[:1]) + rest[1:]
	}
	if id == "" {
		return "your doctor"
	}
	return id
}

func patientEmail(appt appointments.Appointment) string {
	if appt.Patient == nil {
		return ""
	}
	return strings.TrimSpace(appt.Patient.Email)
}

var _ Notifier = (*Gateway)(nil)
