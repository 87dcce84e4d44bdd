package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// CalendarEvent is the provider-neutral shape of an appointment event.
type CalendarEvent struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// Calendar creates and retracts events in an external calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, ref string) error
}

// GoogleCalendarConfig holds OAuth client credentials and a pre-issued
// refresh token.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	TimeZone     string
}

// GoogleCalendar writes events through the Google Calendar v3 API.
type GoogleCalendar struct {
	events     *calendar.EventsService
	calendarID string
	timeZone   string
	logger     *logging.Logger
}

// NewGoogleCalendar builds a calendar client from a refresh token. It returns
// nil, nil when credentials are incomplete.
func NewGoogleCalendar(ctx context.Context, cfg GoogleCalendarConfig, logger *logging.Logger) (*GoogleCalendar, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, nil
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarEventsScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("notify: google calendar client: %w", err)
	}
	return NewGoogleCalendarWithService(svc, cfg.CalendarID, cfg.TimeZone, logger), nil
}

// NewGoogleCalendarWithService wraps an existing calendar service.
func NewGoogleCalendarWithService(svc *calendar.Service, calendarID, timeZone string, logger *logging.Logger) *GoogleCalendar {
	if logger == nil {
		logger = logging.Default()
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if timeZone == "" {
		timeZone = "UTC"
	}
	return &GoogleCalendar{
		events:     svc.Events,
		calendarID: calendarID,
		timeZone:   timeZone,
		logger:     logger,
	}
}

// CreateEvent inserts the event and returns its id as the external ref.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	end := ev.End
	if end.IsZero() {
		end = ev.Start.Add(time.Hour)
	}
	event := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: g.timeZone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: g.timeZone},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, email := range ev.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := g.events.Insert(g.calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		g.logger.Error("google calendar insert failed", "error", err, "calendar_id", g.calendarID)
		return "", fmt.Errorf("notify: calendar insert: %w", err)
	}
	g.logger.Info("google calendar event created", "event_id", created.Id, "calendar_id", g.calendarID)
	return created.Id, nil
}

// DeleteEvent removes the event. Events that are already gone are not an
// error.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	err := g.events.Delete(g.calendarID, ref).SendUpdates("all").Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		g.logger.Debug("google calendar event already removed", "event_id", ref)
		return nil
	}
	if err != nil {
		g.logger.Error("google calendar delete failed", "error", err, "event_id", ref)
		return fmt.Errorf("notify: calendar delete: %w", err)
	}
	g.logger.Info("google calendar event deleted", "event_id", ref)
	return nil
}

var _ Calendar = (*GoogleCalendar)(nil)
