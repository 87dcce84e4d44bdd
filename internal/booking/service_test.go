package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/interpreter"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
)

type testEnv struct {
	svc      *Service
	registry *appointments.MemoryRegistry
	queue    *notify.MemoryQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := appointments.NewMemoryRegistry()
	queue := notify.NewMemoryQueue(64)
	svc := NewService(reg, queue, metrics.NewBookingMetrics(prometheus.NewRegistry()), Config{}, nil)
	var (
		mu  sync.Mutex
		seq int
	)
	svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("CONF%04d", seq)
	}
	return &testEnv{svc: svc, registry: reg, queue: queue}
}

func (e *testEnv) drain(t *testing.T) []notify.Task {
	t.Helper()
	var tasks []notify.Task
	for e.queue.Len() > 0 {
		task, err := e.queue.Dequeue(context.Background(), time.Millisecond)
		require.NoError(t, err)
		if task == nil {
			break
		}
		tasks = append(tasks, *task)
	}
	return tasks
}

func countSlot(t *testing.T, reg appointments.Registry, doctorID, label string) int {
	t.Helper()
	list, err := reg.ListByDoctor(context.Background(), doctorID)
	require.NoError(t, err)
	key := appointments.SlotKey(label)
	n := 0
	for _, a := range list {
		if a.SlotKey() == key {
			n++
		}
	}
	return n
}

func TestAskPreviewsThenConfirms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := "I want to book an appointment for Friday 10am for a headache"

	preview := env.svc.Ask(ctx, AskRequest{Message: msg})
	assert.Equal(t, interpreter.IntentBook, preview.Intent)
	assert.Equal(t, OutcomeAvailable, preview.Outcome)
	assert.Equal(t, "Friday 10:00 AM", preview.Fields.TimeLabel)
	assert.Contains(t, preview.Fields.Reason, "headache")
	assert.Equal(t, DefaultDoctorID, preview.DoctorID)
	assert.Equal(t, 0, env.registry.Len(), "preview must not mutate the registry")
	assert.Empty(t, env.drain(t))
	assert.Contains(t, Respond(preview), "available")
	assert.Contains(t, Respond(preview), interpreter.ConfirmPrefix+" "+msg)

	confirmed := env.svc.Ask(ctx, AskRequest{Message: interpreter.ConfirmPrefix + " " + msg, Location: "portal"})
	assert.Equal(t, interpreter.IntentConfirm, confirmed.Intent)
	require.Equal(t, OutcomeBooked, confirmed.Outcome)
	require.NotNil(t, confirmed.Appointment)
	assert.Equal(t, "CONF0001", confirmed.Appointment.ConfirmationID)
	assert.Equal(t, appointments.DefaultPatientName, confirmed.Appointment.PatientName)
	assert.Equal(t, "portal", confirmed.Appointment.Location)
	assert.Equal(t, 1, env.registry.Len())

	tasks := env.drain(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, notify.TaskCreated, tasks[0].Kind)
	assert.Equal(t, "CONF0001", tasks[0].Appointment.ConfirmationID)
}

func TestAskPreviewReportsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Ask(ctx, AskRequest{Message: "CONFIRM_BOOKING: book Friday 10am for a checkup"})

	res := env.svc.Ask(ctx, AskRequest{Message: "can I book friday at 10 am?"})
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Contains(t, Respond(res), "already booked")
}

func TestDoubleBookingConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := "CONFIRM_BOOKING: book an appointment Saturday 11am for a rash"

	first := env.svc.Ask(ctx, AskRequest{Message: msg})
	require.Equal(t, OutcomeBooked, first.Outcome)
	second := env.svc.Ask(ctx, AskRequest{Message: msg})
	assert.Equal(t, OutcomeConflict, second.Outcome)
	assert.Nil(t, second.Appointment)

	assert.Equal(t, 1, countSlot(t, env.registry, DefaultDoctorID, "Saturday 11:00 AM"))
	assert.Len(t, env.drain(t), 1, "conflicts enqueue nothing")
}

func TestDifferentDoctorsShareLabels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := "CONFIRM_BOOKING: book Monday 9am"

	assert.Equal(t, OutcomeBooked, env.svc.Ask(ctx, AskRequest{Message: msg}).Outcome)
	assert.Equal(t, OutcomeBooked, env.svc.Ask(ctx, AskRequest{Message: msg, DoctorID: "drpatel"}).Outcome)
	assert.Equal(t, 2, env.registry.Len())
}

func TestInquiryLeavesRegistryAlone(t *testing.T) {
	env := newTestEnv(t)

	res := env.svc.Ask(context.Background(), AskRequest{Message: "What helps with a sore throat?"})
	assert.Equal(t, interpreter.IntentInquiry, res.Intent)
	assert.Equal(t, OutcomeInquiry, res.Outcome)
	assert.Equal(t, 0, env.registry.Len())
	assert.NotEmpty(t, Respond(res))
}

func TestDoctorAddRescheduleCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	added := env.svc.Command(ctx, "drlee", "Add appointment for john smith on Friday 10am for checkup")
	require.Equal(t, OutcomeBooked, added.Outcome)
	assert.Equal(t, "John Smith", added.Appointment.PatientName)
	assert.Equal(t, "Checkup", added.Appointment.Reason)
	assert.Equal(t, "Friday 10:00 AM", added.Appointment.TimeLabel)
	require.NoError(t, env.registry.SetExternalRef(ctx, added.Appointment.ConfirmationID, "evt-1"))
	env.drain(t)

	moved := env.svc.Command(ctx, "drlee", "Reschedule the Friday 10am appointment to Saturday 11am")
	require.Equal(t, OutcomeRescheduled, moved.Outcome)
	assert.Equal(t, "Saturday 11:00 AM", moved.Appointment.TimeLabel)
	assert.Equal(t, 0, countSlot(t, env.registry, "drlee", "Friday 10:00 AM"))
	assert.Equal(t, 1, countSlot(t, env.registry, "drlee", "Saturday 11:00 AM"))

	tasks := env.drain(t)
	require.Len(t, tasks, 2)
	assert.Equal(t, notify.TaskRemoved, tasks[0].Kind)
	assert.Equal(t, "evt-1", tasks[0].Appointment.ExternalEventRef, "removal carries the stale event ref")
	assert.Equal(t, notify.TaskCreated, tasks[1].Kind)
	assert.Empty(t, tasks[1].Appointment.ExternalEventRef)

	cancelled := env.svc.Command(ctx, "drlee", "cancel the saturday 11am appointment")
	require.Equal(t, OutcomeCancelled, cancelled.Outcome)
	found, err := env.registry.Find(ctx, "drlee", "Saturday 11:00 AM")
	require.NoError(t, err)
	assert.Nil(t, found)
	assert.Equal(t, 0, env.registry.Len())

	tasks = env.drain(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, notify.TaskRemoved, tasks[0].Kind)
}

func TestDoctorCancelMissingIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	res := env.svc.Command(context.Background(), "drlee", "cancel the Saturday 11am appointment")
	assert.Equal(t, interpreter.IntentCancel, res.Intent)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, "No appointment was found at Saturday 11:00 AM.", Respond(res))
	assert.Equal(t, 0, env.registry.Len())
	assert.Empty(t, env.drain(t))
}

func TestRescheduleMissingIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Command(ctx, "drlee", "Add appointment for Ann Lee on Monday 9am")

	res := env.svc.Command(ctx, "drlee", "move the Friday 10am appointment to Saturday 10am")
	assert.Equal(t, OutcomeNotFound, res.Outcome)

	list, err := env.registry.ListByDoctor(ctx, "drlee")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Monday 9:00 AM", list[0].TimeLabel)
}

func TestRescheduleIntoOccupiedSlotConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Command(ctx, "drlee", "Add appointment for Ann Lee on Friday 10am")
	env.svc.Command(ctx, "drlee", "Add appointment for Bo Chen on Saturday 11am")
	env.drain(t)

	res := env.svc.Command(ctx, "drlee", "Reschedule the Friday 10am appointment to Saturday 11am")
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Contains(t, Respond(res), "Saturday 11:00 AM")

	original, err := env.registry.Find(ctx, "drlee", "Friday 10:00 AM")
	require.NoError(t, err)
	require.NotNil(t, original)
	assert.Equal(t, "Ann Lee", original.PatientName)
	assert.Empty(t, env.drain(t))
}

func TestBlockOccupiesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	blocked := env.svc.Command(ctx, "drlee", "Block Friday 2pm")
	require.Equal(t, OutcomeBlocked, blocked.Outcome)
	assert.Equal(t, appointments.StatusBlocked, blocked.Appointment.Status)
	assert.Equal(t, appointments.BlockedPatientName, blocked.Appointment.PatientName)

	res := env.svc.Ask(ctx, AskRequest{Message: "CONFIRM_BOOKING: book friday 2pm"})
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Contains(t, Respond(res), "blocked")

	again := env.svc.Command(ctx, "drlee", "block friday 2:00 pm")
	assert.Equal(t, OutcomeConflict, again.Outcome)
}

func TestDoctorHelp(t *testing.T) {
	env := newTestEnv(t)

	res := env.svc.Command(context.Background(), "drlee", "what's on today?")
	assert.Equal(t, OutcomeHelp, res.Outcome)
	assert.Equal(t, interpreter.HelpText, Respond(res))
}

func validBookRequest() BookRequest {
	return BookRequest{
		TimeLabel: "friday 10am",
		Reason:    "Annual physical",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Phone:     "555-0100",
		Age:       34,
		Allergies: "penicillin",
	}
}

func TestBookStructured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.svc.Book(ctx, validBookRequest())
	require.Equal(t, OutcomeBooked, res.Outcome)
	appt := res.Appointment
	assert.Equal(t, "Friday 10:00 AM", appt.TimeLabel)
	assert.Equal(t, "Jane Doe", appt.PatientName)
	require.NotNil(t, appt.Patient)
	assert.Equal(t, "jane@example.com", appt.Patient.Email)
	assert.Equal(t, "penicillin", appt.Patient.Allergies)

	dup := env.svc.Book(ctx, validBookRequest())
	assert.Equal(t, OutcomeConflict, dup.Outcome)
	assert.Equal(t, 1, env.registry.Len())
}

func TestBookValidation(t *testing.T) {
	env := newTestEnv(t)
	req := validBookRequest()
	req.FirstName = "  "
	req.Email = "not-an-email"
	req.Phone = ""

	res := env.svc.Book(context.Background(), req)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.ElementsMatch(t, []string{"first_name", "email", "phone"}, res.Invalid)
	assert.Contains(t, Respond(res), "first_name")
	assert.Equal(t, 0, env.registry.Len())
}

func TestCancelByConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booked := env.svc.Book(ctx, validBookRequest())
	require.Equal(t, OutcomeBooked, booked.Outcome)
	env.drain(t)

	res := env.svc.Cancel(ctx, CancelRequest{ConfirmationID: booked.Appointment.ConfirmationID})
	require.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 0, env.registry.Len())
	tasks := env.drain(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "jane@example.com", tasks[0].Appointment.Patient.Email)

	again := env.svc.Cancel(ctx, CancelRequest{ConfirmationID: booked.Appointment.ConfirmationID})
	assert.Equal(t, OutcomeNotFound, again.Outcome)
}

func TestCancelBySlotAndMissingKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Book(ctx, validBookRequest())

	anonymous := env.svc.Cancel(ctx, CancelRequest{TimeLabel: "Friday 10:00 AM"})
	assert.Equal(t, OutcomeUnauthorized, anonymous.Outcome)
	assert.Equal(t, 1, env.registry.Len())

	res := env.svc.Cancel(ctx, CancelRequest{TimeLabel: "Friday 10:00 AM", DoctorID: DefaultDoctorID})
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 0, env.registry.Len())

	invalid := env.svc.Cancel(ctx, CancelRequest{})
	assert.Equal(t, OutcomeInvalid, invalid.Outcome)
	assert.Equal(t, []string{"confirmation_id"}, invalid.Invalid)
}

func TestCancelByConfirmationScopedToDoctor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booked := env.svc.Book(ctx, validBookRequest())
	require.Equal(t, OutcomeBooked, booked.Outcome)
	id := booked.Appointment.ConfirmationID

	other := env.svc.Cancel(ctx, CancelRequest{ConfirmationID: id, DoctorID: "drkim"})
	assert.Equal(t, OutcomeNotFound, other.Outcome)
	assert.Equal(t, 1, env.registry.Len())

	owner := env.svc.Cancel(ctx, CancelRequest{ConfirmationID: id, DoctorID: DefaultDoctorID})
	assert.Equal(t, OutcomeCancelled, owner.Outcome)
	assert.Equal(t, 0, env.registry.Len())
}

type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, task notify.Task) error {
	return errors.New("queue unavailable")
}

func (failingQueue) Dequeue(ctx context.Context, wait time.Duration) (*notify.Task, error) {
	return nil, nil
}

func TestEnqueueFailureDoesNotFailBooking(t *testing.T) {
	reg := appointments.NewMemoryRegistry()
	svc := NewService(reg, failingQueue{}, nil, Config{DefaultDoctorID: "drkim"}, nil)

	res := svc.Ask(context.Background(), AskRequest{Message: "CONFIRM_BOOKING: book tuesday"})
	assert.Equal(t, OutcomeBooked, res.Outcome)
	assert.Equal(t, "drkim", res.DoctorID)
	assert.Equal(t, 1, reg.Len())
}

type brokenRegistry struct {
	appointments.Registry
}

func (brokenRegistry) Find(ctx context.Context, doctorID, timeLabel string) (*appointments.Appointment, error) {
	return nil, errors.New("connection refused")
}

func (brokenRegistry) Insert(ctx context.Context, appt *appointments.Appointment) error {
	return errors.New("connection refused")
}

func TestRegistryFailureIsReportedAsError(t *testing.T) {
	svc := NewService(brokenRegistry{}, nil, nil, Config{}, nil)

	preview := svc.Ask(context.Background(), AskRequest{Message: "book friday"})
	assert.Equal(t, OutcomeError, preview.Outcome)
	confirm := svc.Ask(context.Background(), AskRequest{Message: "CONFIRM_BOOKING: book friday"})
	assert.Equal(t, OutcomeError, confirm.Outcome)
	assert.Contains(t, Respond(confirm), "went wrong")
}

func TestConcurrentConfirmationsBookOnce(t *testing.T) {
	env := newTestEnv(t)
	const workers = 16

	var wg sync.WaitGroup
	results := make(chan Outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- env.svc.Ask(context.Background(), AskRequest{Message: "CONFIRM_BOOKING: book sunday 11am"}).Outcome
		}()
	}
	wg.Wait()
	close(results)

	booked := 0
	for outcome := range results {
		if outcome == OutcomeBooked {
			booked++
		}
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, 1, countSlot(t, env.registry, DefaultDoctorID, "Sunday 11:00 AM"))
}

func TestNewServicePanicsWithoutRegistry(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, nil, nil, Config{}, nil) })
}

func TestSendRemindersQueuesUpcomingConfirmed(t *testing.T) {
	env := newTestEnv(t)
	env.svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) } // Monday
	ctx := context.Background()

	require.Equal(t, OutcomeBooked, env.svc.Command(ctx, "drlee", "Add appointment for ann lee on Tuesday 8am").Outcome)
	require.Equal(t, OutcomeBooked, env.svc.Command(ctx, "drlee", "Add appointment for bob ray on Wednesday 10am").Outcome)
	require.Equal(t, OutcomeBlocked, env.svc.Command(ctx, "drlee", "Block Tuesday 9am").Outcome)
	require.Equal(t, OutcomeBooked, env.svc.Command(ctx, "drkim", "Add appointment for cat lin on Tuesday 8am").Outcome)
	env.drain(t)

	queued, err := env.svc.SendReminders(ctx, "drlee", 24)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	tasks := env.drain(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, notify.TaskReminder, tasks[0].Kind)
	assert.Equal(t, 24, tasks[0].HoursBefore)
	assert.Equal(t, "Ann Lee", tasks[0].Appointment.PatientName)

	queued, err = env.svc.SendReminders(ctx, "drlee", 72)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
}

func TestSendRemindersRejectsBadWindow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.SendReminders(context.Background(), "drlee", 0)
	require.Error(t, err)
	_, err = env.svc.SendReminders(context.Background(), "drlee", MaxReminderHours+1)
	require.Error(t, err)
}
