package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/interpreter"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.booking")

const (
	modePatient    = "patient"
	modeDoctor     = "doctor"
	modeStructured = "structured"
)

// DefaultDoctorID is used when a request names no doctor.
const DefaultDoctorID = "drlee"

// Config holds service-level defaults.
type Config struct {
	DefaultDoctorID string
	// Location resolves slot labels to instants for reminders. Defaults to UTC.
	Location *time.Location
}

// Service executes interpreted commands against the registry.
type Service struct {
	registry      appointments.Registry
	queue         notify.Queue
	metrics       *metrics.BookingMetrics
	defaultDoctor string
	location      *time.Location
	newID         func() string
	now           func() time.Time
	logger        *logging.Logger
}

// NewService creates a booking service. A nil queue disables notifications.
func NewService(registry appointments.Registry, queue notify.Queue, m *metrics.BookingMetrics, cfg Config, logger *logging.Logger) *Service {
	if registry == nil {
		panic("booking: registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DefaultDoctorID) == "" {
		cfg.DefaultDoctorID = DefaultDoctorID
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		registry:      registry,
		queue:         queue,
		metrics:       m,
		defaultDoctor: cfg.DefaultDoctorID,
		location:      cfg.Location,
		newID:         newConfirmationID,
		now:           time.Now,
		logger:        logger,
	}
}

// AskRequest is a patient chat message.
type AskRequest struct {
	Message  string
	Location string
	DoctorID string
}

// Ask handles a patient message. Booking requests only preview availability;
// the registry changes on a CONFIRM_BOOKING message.
func (s *Service) Ask(ctx context.Context, req AskRequest) Result {
	doctorID := s.doctor(req.DoctorID)
	ctx, span := tracer.Start(ctx, "booking.ask")
	defer span.End()

	cmd := interpreter.ParsePatient(req.Message, req.Location)
	res := Result{DoctorID: doctorID, Intent: cmd.Intent, Fields: cmd.Fields, Raw: strings.TrimSpace(req.Message)}

	switch cmd.Intent {
	case interpreter.IntentInquiry:
		res.Outcome = OutcomeInquiry
	case interpreter.IntentBook:
		existing, err := s.registry.Find(ctx, doctorID, cmd.Fields.TimeLabel)
		switch {
		case err != nil:
			res.Outcome = s.fail(span, "find slot", err)
		case existing != nil:
			res.Outcome, res.Existing = OutcomeConflict, existing
		default:
			res.Outcome = OutcomeAvailable
		}
	case interpreter.IntentConfirm:
		res = s.insert(ctx, span, res, &appointments.Appointment{
			DoctorID:    doctorID,
			PatientName: cmd.Fields.PatientName,
			TimeLabel:   cmd.Fields.TimeLabel,
			Reason:      cmd.Fields.Reason,
			Location:    cmd.Fields.Location,
			Status:      appointments.StatusConfirmed,
		})
	}
	return s.finish(span, modePatient, res)
}

// Command handles a doctor's schedule command.
func (s *Service) Command(ctx context.Context, doctorID, message string) Result {
	doctorID = s.doctor(doctorID)
	ctx, span := tracer.Start(ctx, "booking.command")
	defer span.End()

	cmd := interpreter.ParseDoctor(message)
	res := Result{DoctorID: doctorID, Intent: cmd.Intent, Fields: cmd.Fields, Raw: strings.TrimSpace(message)}
	f := cmd.Fields

	switch cmd.Intent {
	case interpreter.IntentAdd:
		res = s.insert(ctx, span, res, &appointments.Appointment{
			DoctorID:    doctorID,
			PatientName: f.PatientName,
			TimeLabel:   f.TimeLabel,
			Reason:      f.Reason,
			Status:      appointments.StatusConfirmed,
		})
	case interpreter.IntentBlock:
		res = s.insert(ctx, span, res, &appointments.Appointment{
			DoctorID:    doctorID,
			PatientName: appointments.BlockedPatientName,
			TimeLabel:   f.TimeLabel,
			Reason:      f.Reason,
			Status:      appointments.StatusBlocked,
		})
		if res.Outcome == OutcomeBooked {
			res.Outcome = OutcomeBlocked
		}
	case interpreter.IntentReschedule:
		res = s.reschedule(ctx, span, res)
	case interpreter.IntentCancel:
		res = s.remove(ctx, span, res, doctorID, f.TimeLabel)
	default:
		res.Outcome = OutcomeHelp
	}
	return s.finish(span, modeDoctor, res)
}

// Book stores a structured booking carrying full patient details.
func (s *Service) Book(ctx context.Context, req BookRequest) Result {
	doctorID := s.doctor(req.DoctorID)
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()

	label := appointments.CanonicalLabel(req.TimeLabel)
	res := Result{
		DoctorID: doctorID,
		Intent:   interpreter.IntentConfirm,
		Fields: interpreter.Fields{
			TimeLabel:   label,
			PatientName: strings.TrimSpace(req.FirstName + " " + req.LastName),
			Reason:      strings.TrimSpace(req.Reason),
			Location:    strings.TrimSpace(req.Location),
		},
	}

	if err := validateBookRequest(req); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			res.Outcome, res.Invalid = OutcomeInvalid, verr.Fields
		} else {
			res.Outcome = s.fail(span, "validate booking", err)
		}
		return s.finish(span, modeStructured, res)
	}

	res = s.insert(ctx, span, res, &appointments.Appointment{
		DoctorID:    doctorID,
		PatientName: res.Fields.PatientName,
		TimeLabel:   label,
		Reason:      res.Fields.Reason,
		Location:    res.Fields.Location,
		Status:      appointments.StatusConfirmed,
		Patient:     req.patientDetails(),
	})
	return s.finish(span, modeStructured, res)
}

// CancelRequest names the booking to cancel, either by confirmation id or by
// time label.
type CancelRequest struct {
	ConfirmationID string `json:"confirmation_id"`
	TimeLabel      string `json:"time_label"`
	// DoctorID is the authenticated doctor, never taken from the request
	// body. It scopes confirmation lookups to that doctor's records and is
	// required to cancel by time label.
	DoctorID string `json:"-"`
}

// Cancel removes a booking made through any channel. Anyone holding the
// confirmation id may cancel it; cancelling by slot is reserved for the
// doctor who owns the schedule.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) Result {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer span.End()

	doctorID := strings.TrimSpace(req.DoctorID)
	res := Result{DoctorID: s.doctor(doctorID), Intent: interpreter.IntentCancel}
	if id := strings.TrimSpace(req.ConfirmationID); id != "" {
		appt, err := s.registry.FindByConfirmation(ctx, id)
		switch {
		case errors.Is(err, appointments.ErrNotFound):
			res.Outcome = OutcomeNotFound
			return s.finish(span, modeStructured, res)
		case err != nil:
			res.Outcome = s.fail(span, "find confirmation", err)
			return s.finish(span, modeStructured, res)
		case doctorID != "" && appt.DoctorID != doctorID:
			res.Outcome = OutcomeNotFound
			return s.finish(span, modeStructured, res)
		}
		res.DoctorID = appt.DoctorID
		res.Fields.TimeLabel = appt.TimeLabel
	} else {
		res.Fields.TimeLabel = strings.TrimSpace(req.TimeLabel)
		if res.Fields.TimeLabel != "" && doctorID == "" {
			res.Outcome = OutcomeUnauthorized
			return s.finish(span, modeStructured, res)
		}
	}

	if res.Fields.TimeLabel == "" {
		res.Outcome, res.Invalid = OutcomeInvalid, []string{"confirmation_id"}
		return s.finish(span, modeStructured, res)
	}
	res = s.remove(ctx, span, res, res.DoctorID, res.Fields.TimeLabel)
	return s.finish(span, modeStructured, res)
}

// List returns the doctor's records in the order they were created.
func (s *Service) List(ctx context.Context, doctorID string) ([]appointments.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.list")
	defer span.End()
	doctorID = s.doctor(doctorID)
	span.SetAttributes(attribute.String("doctor_id", doctorID))

	list, err := s.registry.ListByDoctor(ctx, doctorID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return list, nil
}

// MaxReminderHours bounds the reminder look-ahead; slot labels never resolve
// more than a week out.
const MaxReminderHours = 7 * 24

// SendReminders queues a reminder for every confirmed appointment of the
// doctor that starts within the next hoursBefore hours. It returns how many
// reminders were queued.
func (s *Service) SendReminders(ctx context.Context, doctorID string, hoursBefore int) (int, error) {
	ctx, span := tracer.Start(ctx, "booking.reminders")
	defer span.End()
	doctorID = s.doctor(doctorID)
	span.SetAttributes(attribute.String("doctor_id", doctorID), attribute.Int("hours_before", hoursBefore))

	if hoursBefore <= 0 || hoursBefore > MaxReminderHours {
		return 0, fmt.Errorf("booking: reminders: hours_before must be between 1 and %d", MaxReminderHours)
	}
	if s.queue == nil {
		return 0, nil
	}
	list, err := s.registry.ListByDoctor(ctx, doctorID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("booking: reminders: %w", err)
	}

	now := s.now().In(s.location)
	horizon := now.Add(time.Duration(hoursBefore) * time.Hour)
	queued := 0
	for _, appt := range list {
		if appt.Status != appointments.StatusConfirmed {
			continue
		}
		start := appointments.ResolveLabel(appt.TimeLabel, now)
		if !start.After(now) || start.After(horizon) {
			continue
		}
		if err := s.queue.Enqueue(ctx, notify.NewReminderTask(appt, hoursBefore)); err != nil {
			s.logger.Error("failed to enqueue reminder", "error", err, "confirmation_id", appt.ConfirmationID)
			s.metrics.ObserveNotification(string(notify.TaskReminder), "enqueue_failed")
			continue
		}
		s.metrics.ObserveNotification(string(notify.TaskReminder), "queued")
		queued++
	}
	s.logger.Info("reminders queued", "doctor_id", doctorID, "hours_before", hoursBefore, "count", queued)
	return queued, nil
}

// DefaultDoctor returns the doctor used for unauthenticated requests.
func (s *Service) DefaultDoctor() string {
	return s.defaultDoctor
}

func (s *Service) insert(ctx context.Context, span trace.Span, res Result, appt *appointments.Appointment) Result {
	appt.ConfirmationID = s.newID()
	appt.ApplyDefaults()
	res.Fields.PatientName = appt.PatientName
	res.Fields.Location = appt.Location

	err := s.registry.Insert(ctx, appt)
	switch {
	case errors.Is(err, appointments.ErrConflict):
		res.Outcome = OutcomeConflict
		if existing, findErr := s.registry.Find(ctx, appt.DoctorID, appt.TimeLabel); findErr == nil {
			res.Existing = existing
		}
		return res
	case errors.Is(err, appointments.ErrInvalidAppointment):
		res.Outcome, res.Invalid = OutcomeInvalid, []string{"time_label"}
		return res
	case err != nil:
		res.Outcome = s.fail(span, "insert appointment", err)
		return res
	}

	res.Outcome = OutcomeBooked
	res.Appointment = appt
	s.logger.Info("appointment stored",
		"doctor_id", appt.DoctorID,
		"time_label", appt.TimeLabel,
		"status", appt.Status,
		"confirmation_id", appt.ConfirmationID,
	)
	s.enqueue(ctx, notify.TaskCreated, *appt)
	return res
}

func (s *Service) reschedule(ctx context.Context, span trace.Span, res Result) Result {
	f := res.Fields
	before, err := s.registry.Find(ctx, res.DoctorID, f.TimeLabel)
	if err != nil {
		res.Outcome = s.fail(span, "find appointment", err)
		return res
	}

	moved, err := s.registry.Reschedule(ctx, res.DoctorID, f.TimeLabel, f.NewTimeLabel)
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		res.Outcome = OutcomeNotFound
		return res
	case errors.Is(err, appointments.ErrConflict):
		res.Outcome = OutcomeConflict
		if existing, findErr := s.registry.Find(ctx, res.DoctorID, f.NewTimeLabel); findErr == nil {
			res.Existing = existing
		}
		return res
	case err != nil:
		res.Outcome = s.fail(span, "reschedule appointment", err)
		return res
	}

	res.Outcome = OutcomeRescheduled
	res.Appointment = moved
	s.logger.Info("appointment rescheduled",
		"doctor_id", res.DoctorID,
		"from", f.TimeLabel,
		"to", f.NewTimeLabel,
		"confirmation_id", moved.ConfirmationID,
	)
	if before != nil {
		s.enqueue(ctx, notify.TaskRemoved, *before)
	}
	s.enqueue(ctx, notify.TaskCreated, *moved)
	return res
}

func (s *Service) remove(ctx context.Context, span trace.Span, res Result, doctorID, label string) Result {
	removed, err := s.registry.Remove(ctx, doctorID, label)
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		res.Outcome = OutcomeNotFound
		return res
	case err != nil:
		res.Outcome = s.fail(span, "remove appointment", err)
		return res
	}

	res.Outcome = OutcomeCancelled
	res.Appointment = removed
	s.logger.Info("appointment removed",
		"doctor_id", doctorID,
		"time_label", removed.TimeLabel,
		"confirmation_id", removed.ConfirmationID,
	)
	s.enqueue(ctx, notify.TaskRemoved, *removed)
	return res
}

// enqueue hands a committed change to the notification queue. Failures are
// logged and counted only.
func (s *Service) enqueue(ctx context.Context, kind notify.TaskKind, appt appointments.Appointment) {
	if s.queue == nil {
		return
	}
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.queue.Enqueue(enqueueCtx, notify.NewTask(kind, appt)); err != nil {
		s.logger.Error("failed to enqueue notification",
			"error", err,
			"kind", kind,
			"confirmation_id", appt.ConfirmationID,
		)
		s.metrics.ObserveNotification(string(kind), "enqueue_failed")
		return
	}
	s.metrics.ObserveNotification(string(kind), "queued")
}

func (s *Service) fail(span trace.Span, op string, err error) Outcome {
	span.RecordError(err)
	s.logger.Error("booking operation failed", "op", op, "error", err)
	return OutcomeError
}

func (s *Service) finish(span trace.Span, mode string, res Result) Result {
	span.SetAttributes(
		attribute.String("doctor_id", res.DoctorID),
		attribute.String("intent", string(res.Intent)),
		attribute.String("outcome", string(res.Outcome)),
		attribute.String("time_label", res.Fields.TimeLabel),
	)
	s.metrics.ObserveCommand(mode, string(res.Intent), string(res.Outcome))
	return res
}

func (s *Service) doctor(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.defaultDoctor
}

// newConfirmationID returns a short, upper-case, random booking reference.
func newConfirmationID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
