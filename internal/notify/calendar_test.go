package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type calendarServer struct {
	mu       sync.Mutex
	inserted []calendar.Event
	query    []string
	deletes  []string
}

func newTestGoogleCalendar(t *testing.T) (*GoogleCalendar, *calendarServer) {
	t.Helper()
	state := &calendarServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var ev calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		state.mu.Lock()
		state.inserted = append(state.inserted, ev)
		state.query = append(state.query, r.URL.Query().Get("sendUpdates"))
		state.mu.Unlock()
		ev.Id = "evt-123"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ev)
	})
	mux.HandleFunc("/calendars/primary/events/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/calendars/primary/events/"):]
		state.mu.Lock()
		state.deletes = append(state.deletes, id)
		state.mu.Unlock()
		switch id {
		case "gone":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
		case "broken":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"insufficient permissions"}}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewGoogleCalendarWithService(svc, "primary", "America/New_York", nil), state
}

func TestGoogleCalendar_CreateEvent(t *testing.T) {
	cal, state := newTestGoogleCalendar(t)
	start := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)

	ref, err := cal.CreateEvent(context.Background(), CalendarEvent{
		Summary:   "AI Clinic Appointment - Dr. Lee",
		Location:  "1 Main St",
		Start:     start,
		Attendees: []string{"jane@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-123", ref)

	require.Len(t, state.inserted, 1)
	ev := state.inserted[0]
	assert.Equal(t, "AI Clinic Appointment - Dr. Lee", ev.Summary)
	assert.Equal(t, start.Format(time.RFC3339), ev.Start.DateTime)
	assert.Equal(t, start.Add(time.Hour).Format(time.RFC3339), ev.End.DateTime)
	assert.Equal(t, "America/New_York", ev.Start.TimeZone)
	require.Len(t, ev.Attendees, 1)
	assert.Equal(t, "jane@example.com", ev.Attendees[0].Email)
	require.NotNil(t, ev.Reminders)
	assert.Len(t, ev.Reminders.Overrides, 2)
	assert.Equal(t, []string{"all"}, state.query)
}

func TestGoogleCalendar_DeleteEvent(t *testing.T) {
	cal, state := newTestGoogleCalendar(t)
	ctx := context.Background()

	require.NoError(t, cal.DeleteEvent(ctx, "evt-123"))
	require.NoError(t, cal.DeleteEvent(ctx, "gone"), "already-deleted events are not an error")
	require.Error(t, cal.DeleteEvent(ctx, "broken"))
	require.NoError(t, cal.DeleteEvent(ctx, ""))

	assert.Equal(t, []string{"evt-123", "gone", "broken"}, state.deletes)
}

func TestNewGoogleCalendar_IncompleteCredentials(t *testing.T) {
	cal, err := NewGoogleCalendar(context.Background(), GoogleCalendarConfig{ClientID: "id"}, nil)
	require.NoError(t, err)
	assert.Nil(t, cal)
}
