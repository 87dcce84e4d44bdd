package booking

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const maxBodyBytes = 64 << 10

//go:embed templates/clinic.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/clinic.html"))

// Handler exposes the booking service over HTTP.
type Handler struct {
	service    *Service
	clinicName string
	logger     *logging.Logger
}

// NewHandler creates the booking HTTP handler.
func NewHandler(service *Service, clinicName string, logger *logging.Logger) *Handler {
	if service == nil {
		panic("booking: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(clinicName) == "" {
		clinicName = "AI Clinic"
	}
	return &Handler{service: service, clinicName: clinicName, logger: logger}
}

// PatientRoutes mounts the public endpoints. Doctor identity is optional.
func (h *Handler) PatientRoutes(r chi.Router) {
	r.Post("/api/ask", h.Ask)
	r.Post("/api/book-appointment", h.BookAppointment)
	r.Post("/api/cancel-appointment", h.CancelAppointment)
}

// DoctorRoutes mounts the endpoints that require an authenticated doctor.
func (h *Handler) DoctorRoutes(r chi.Router) {
	r.Post("/api/clinic-ai", h.ClinicAI)
	r.Post("/api/reminders", h.Reminders)
	r.Get("/clinic", h.Dashboard)
}

type askRequest struct {
	Message  string `json:"message"`
	Location string `json:"location"`
}

type commandResponse struct {
	Response       string                    `json:"response"`
	Intent         string                    `json:"intent"`
	Outcome        Outcome                   `json:"outcome"`
	DoctorID       string                    `json:"doctor_id"`
	TimeLabel      string                    `json:"time_label,omitempty"`
	NewTimeLabel   string                    `json:"new_time_label,omitempty"`
	PatientName    string                    `json:"patient_name,omitempty"`
	Reason         string                    `json:"reason,omitempty"`
	ConfirmationID string                    `json:"confirmation_id,omitempty"`
	InvalidFields  []string                  `json:"invalid_fields,omitempty"`
	Appointment    *appointments.Appointment `json:"appointment,omitempty"`
}

func newCommandResponse(res Result) commandResponse {
	out := commandResponse{
		Response:      Respond(res),
		Intent:        string(res.Intent),
		Outcome:       res.Outcome,
		DoctorID:      res.DoctorID,
		TimeLabel:     res.Fields.TimeLabel,
		NewTimeLabel:  res.Fields.NewTimeLabel,
		PatientName:   res.Fields.PatientName,
		Reason:        res.Fields.Reason,
		InvalidFields: res.Invalid,
		Appointment:   res.Appointment,
	}
	if res.Appointment != nil {
		out.ConfirmationID = res.Appointment.ConfirmationID
	}
	return out
}

// Ask handles patient chat messages.
// POST /api/ask
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	doctorID, _ := middleware.DoctorIDFromContext(r.Context())
	res := h.service.Ask(r.Context(), AskRequest{Message: req.Message, Location: req.Location, DoctorID: doctorID})
	h.writeResult(w, chatStatus(res.Outcome), res)
}

// ClinicAI handles doctor schedule commands.
// POST /api/clinic-ai
func (h *Handler) ClinicAI(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := middleware.DoctorIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "doctor authentication required")
		return
	}
	var req askRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.service.Command(r.Context(), doctorID, req.Message)
	h.writeResult(w, chatStatus(res.Outcome), res)
}

// BookAppointment stores a structured booking.
// POST /api/book-appointment
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if !h.decode(w, r, &req) {
		return
	}
	if doctorID, ok := middleware.DoctorIDFromContext(r.Context()); ok && strings.TrimSpace(req.DoctorID) == "" {
		req.DoctorID = doctorID
	}
	res := h.service.Book(r.Context(), req)
	h.writeResult(w, structuredStatus(res.Outcome), res)
}

// CancelAppointment removes a structured booking. Anonymous callers cancel by
// confirmation id and get the record back without patient details; a doctor
// may also cancel one of their own slots by time label.
// POST /api/cancel-appointment
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	doctorID, authed := middleware.DoctorIDFromContext(r.Context())
	req.DoctorID = doctorID
	res := h.service.Cancel(r.Context(), req)
	resp := newCommandResponse(res)
	if !authed && resp.Appointment != nil {
		redacted := *resp.Appointment
		redacted.Patient = nil
		resp.Appointment = &redacted
	}
	writeJSON(w, structuredStatus(res.Outcome), resp)
}

type reminderRequest struct {
	HoursBefore int `json:"hours_before"`
}

type reminderResponse struct {
	DoctorID    string `json:"doctor_id"`
	HoursBefore int    `json:"hours_before"`
	Queued      int    `json:"queued"`
}

const defaultReminderHours = 24

// Reminders queues reminder emails for the doctor's upcoming appointments.
// An empty body uses a 24 hour look-ahead.
// POST /api/reminders
func (h *Handler) Reminders(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := middleware.DoctorIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "doctor authentication required")
		return
	}
	req := reminderRequest{HoursBefore: defaultReminderHours}
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if req.HoursBefore <= 0 || req.HoursBefore > MaxReminderHours {
		writeJSONError(w, http.StatusBadRequest, "hours_before must be between 1 and 168")
		return
	}
	queued, err := h.service.SendReminders(r.Context(), doctorID, req.HoursBefore)
	if err != nil {
		h.logger.Error("failed to queue reminders", "doctor_id", doctorID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, reminderResponse{DoctorID: doctorID, HoursBefore: req.HoursBefore, Queued: queued})
}

type dashboardView struct {
	ClinicName   string                     `json:"clinic_name"`
	DoctorID     string                     `json:"doctor_id"`
	Appointments []appointments.Appointment `json:"appointments"`
}

// Dashboard renders the authenticated doctor's appointments. ?format=json
// returns the same data as JSON.
// GET /clinic
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := middleware.DoctorIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "doctor authentication required")
		return
	}
	list, err := h.service.List(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("failed to list appointments", "doctor_id", doctorID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	view := dashboardView{ClinicName: h.clinicName, DoctorID: doctorID, Appointments: list}

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, view)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, view); err != nil {
		h.logger.Error("failed to render dashboard", "doctor_id", doctorID, "error", err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, http.StatusBadRequest, "request body is required")
		default:
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return false
	}
	return true
}

func (h *Handler) writeResult(w http.ResponseWriter, status int, res Result) {
	writeJSON(w, status, newCommandResponse(res))
}

// chatStatus keeps conversational outcomes at 200; the outcome field carries
// conflicts and misses.
func chatStatus(outcome Outcome) int {
	if outcome == OutcomeError {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func structuredStatus(outcome Outcome) int {
	switch outcome {
	case OutcomeConflict:
		return http.StatusConflict
	case OutcomeInvalid:
		return http.StatusUnprocessableEntity
	case OutcomeNotFound:
		return http.StatusNotFound
	case OutcomeUnauthorized:
		return http.StatusUnauthorized
	case OutcomeError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
