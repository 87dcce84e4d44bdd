package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

type fakeCalendar struct {
	mu      sync.Mutex
	created []CalendarEvent
	deleted []string
	nextID  string
	err     error
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, ev)
	return f.nextID, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return f.err
}

func testGateway(sender EmailSender, cal Calendar) *Gateway {
	g := NewGateway(sender, cal, GatewayConfig{
		Clinic:       ClinicInfo{Name: "AI Clinic", Phone: "555-0100", Address: "1 Main St"},
		DoctorEmails: map[string]string{"drlee": "lee@clinic.example"},
		DoctorNames:  map[string]string{"drlee": "Dr. Lee"},
	}, nil)
	g.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) } // Monday
	return g
}

func bookedAppointment() appointments.Appointment {
	return appointments.Appointment{
		DoctorID:       "drlee",
		PatientName:    "Jane Doe",
		TimeLabel:      "Friday 10:00 AM",
		Reason:         "headache",
		Location:       "portal",
		Status:         appointments.StatusConfirmed,
		ConfirmationID: "abc123",
		Patient:        &appointments.PatientDetails{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Allergies: "penicillin"},
	}
}

func TestGateway_NotifyCreated(t *testing.T) {
	sender := &recordingSender{}
	cal := &fakeCalendar{nextID: "evt-1"}
	g := testGateway(sender, cal)

	ref, err := g.NotifyCreated(context.Background(), bookedAppointment())
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ref)

	require.Len(t, cal.created, 1)
	ev := cal.created[0]
	assert.Equal(t, time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, ev.Start.Add(time.Hour), ev.End)
	assert.Equal(t, []string{"jane@example.com"}, ev.Attendees)
	assert.Contains(t, ev.Summary, "Dr. Lee")

	require.Len(t, sender.sent, 2)
	patient := sender.sent[0]
	assert.Equal(t, "jane@example.com", patient.To)
	assert.Equal(t, "Appointment Confirmed - Friday 10:00 AM", patient.Subject)
	assert.Contains(t, patient.Body, "CONFIRMATION ID: abc123")
	assert.Contains(t, patient.Body, "Allergies: penicillin")
	require.Len(t, patient.Attachments, 1)
	assert.Equal(t, "appointment.ics", patient.Attachments[0].Filename)
	assert.Contains(t, string(patient.Attachments[0].Content), "METHOD:REQUEST")

	doctor := sender.sent[1]
	assert.Equal(t, "lee@clinic.example", doctor.To)
	assert.Equal(t, "New Appointment: Jane Doe - Friday 10:00 AM", doctor.Subject)
}

func TestGateway_NotifyCreated_NoPatientEmail(t *testing.T) {
	sender := &recordingSender{}
	g := testGateway(sender, nil)
	appt := bookedAppointment()
	appt.Patient = nil
	appt.DoctorID = "drpatel"

	ref, err := g.NotifyCreated(context.Background(), appt)
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Empty(t, sender.sent, "no patient email and unmapped doctor")
}

func TestGateway_NotifyCreated_Blocked(t *testing.T) {
	sender := &recordingSender{}
	cal := &fakeCalendar{nextID: "evt-2"}
	g := testGateway(sender, cal)

	appt := appointments.Appointment{
		DoctorID:    "drlee",
		PatientName: appointments.BlockedPatientName,
		TimeLabel:   "Friday 2:00 PM",
		Status:      appointments.StatusBlocked,
	}
	ref, err := g.NotifyCreated(context.Background(), appt)
	require.NoError(t, err)
	assert.Equal(t, "evt-2", ref)
	require.Len(t, cal.created, 1)
	assert.Equal(t, "Blocked - Friday 2:00 PM", cal.created[0].Summary)
	assert.Empty(t, sender.sent)
}

func TestGateway_NotifyCreated_JoinsErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	cal := &fakeCalendar{err: errors.New("calendar down")}
	g := testGateway(sender, cal)

	ref, err := g.NotifyCreated(context.Background(), bookedAppointment())
	require.Error(t, err)
	assert.Empty(t, ref)
	assert.Contains(t, err.Error(), "calendar down")
	assert.Contains(t, err.Error(), "smtp down")
	assert.Len(t, sender.sent, 2, "email still attempted after calendar failure")
}

func TestGateway_NotifyRemoved(t *testing.T) {
	sender := &recordingSender{}
	cal := &fakeCalendar{}
	g := testGateway(sender, cal)

	appt := bookedAppointment()
	appt.ExternalEventRef = "evt-9"
	require.NoError(t, g.NotifyRemoved(context.Background(), appt))

	assert.Equal(t, []string{"evt-9"}, cal.deleted)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Appointment Cancelled - Friday 10:00 AM", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	assert.Contains(t, string(msg.Attachments[0].Content), "METHOD:CANCEL")
}

func TestGateway_NotifyRemoved_WithoutRef(t *testing.T) {
	cal := &fakeCalendar{}
	g := testGateway(nil, cal)

	require.NoError(t, g.NotifyRemoved(context.Background(), bookedAppointment()))
	assert.Empty(t, cal.deleted)
}

func TestGateway_RescheduleInvitesUseDistinctUIDs(t *testing.T) {
	sender := &recordingSender{}
	g := testGateway(sender, nil)

	before := bookedAppointment()
	moved := before
	moved.TimeLabel = "Saturday 11:00 AM"

	require.NoError(t, g.NotifyRemoved(context.Background(), before))
	_, err := g.NotifyCreated(context.Background(), moved)
	require.NoError(t, err)

	var invites []string
	for _, msg := range sender.sent {
		for _, att := range msg.Attachments {
			invites = append(invites, string(att.Content))
		}
	}
	require.Len(t, invites, 2)
	assert.Contains(t, invites[0], "METHOD:CANCEL")
	assert.Contains(t, invites[0], "UID:abc123-friday-10-00@aiclinic.com\r\n")
	assert.Contains(t, invites[1], "METHOD:REQUEST")
	assert.Contains(t, invites[1], "UID:abc123-saturday-11-00@aiclinic.com\r\n")
}

func TestGateway_NotifyReminder(t *testing.T) {
	sender := &recordingSender{}
	g := testGateway(sender, nil)

	require.NoError(t, g.NotifyReminder(context.Background(), bookedAppointment(), 24))
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Appointment Reminder - Friday 10:00 AM", msg.Subject)
	assert.Contains(t, msg.Body, "Dear Jane,")
	assert.Contains(t, msg.Body, "upcoming appointment in 24 hours.")
	assert.Contains(t, msg.Body, "- Doctor: Dr. Lee")
	assert.Contains(t, msg.Body, "- Confirmation ID: abc123")
	assert.Contains(t, msg.HTML, "Appointment Reminder")
	assert.Empty(t, msg.Attachments)
}

func TestGateway_NotifyReminder_Skips(t *testing.T) {
	sender := &recordingSender{}
	g := testGateway(sender, nil)

	blocked := bookedAppointment()
	blocked.Status = appointments.StatusBlocked
	require.NoError(t, g.NotifyReminder(context.Background(), blocked, 24))

	noEmail := bookedAppointment()
	noEmail.Patient = nil
	require.NoError(t, g.NotifyReminder(context.Background(), noEmail, 24))

	require.NoError(t, testGateway(nil, nil).NotifyReminder(context.Background(), bookedAppointment(), 24))
	assert.Empty(t, sender.sent)
}

func TestReminderEmail_OneHour(t *testing.T) {
	msg := reminderEmail(ClinicInfo{Name: "AI Clinic"}, "Dr. Lee", bookedAppointment(), 1)
	assert.Contains(t, msg.Body, "upcoming appointment in 1 hour.")
	assert.True(t, strings.HasPrefix(msg.Body, "AI Clinic - APPOINTMENT REMINDER"))
}

func TestGateway_RetractEvent(t *testing.T) {
	cal := &fakeCalendar{}
	g := testGateway(nil, cal)

	require.NoError(t, g.RetractEvent(context.Background(), ""))
	require.NoError(t, g.RetractEvent(context.Background(), "evt-3"))
	assert.Equal(t, []string{"evt-3"}, cal.deleted)

	require.NoError(t, testGateway(nil, nil).RetractEvent(context.Background(), "evt-4"))
}

func TestGateway_DoctorName(t *testing.T) {
	g := testGateway(nil, nil)
	assert.Equal(t, "Dr. Lee", g.doctorName("drlee"))
	assert.Equal(t, "Dr. Patel", g.doctorName("drpatel"))
	assert.Equal(t, "nurse1", g.doctorName("nurse1"))
	assert.Equal(t, "your doctor", g.doctorName(""))
}

func TestConfirmationEmail_EscapesHTML(t *testing.T) {
	appt := bookedAppointment()
	appt.Reason = "<script>alert(1)</script>"
	msg := confirmationEmail(ClinicInfo{Name: "AI Clinic"}, "Dr. Lee", appt)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.True(t, strings.Contains(msg.HTML, "&lt;script&gt;"))
	assert.Equal(t, "Jane Doe", msg.ToName)
}

func TestDoctorNotificationEmail_OptionalFields(t *testing.T) {
	appt := bookedAppointment()
	appt.Patient = &appointments.PatientDetails{Age: 42, Gender: "F", EmergencyContact: "John", EmergencyPhone: "555-0101"}
	msg := doctorNotificationEmail(ClinicInfo{Name: "AI Clinic"}, "Dr. Lee", appt)

	assert.Contains(t, msg.Body, "Age: 42 years old (F)")
	assert.Contains(t, msg.Body, "Emergency Contact: John (555-0101)")
	assert.NotContains(t, msg.Body, "Medical ID")
	assert.Contains(t, msg.Body, "Name: Jane Doe", "falls back to the record's patient name")
}
