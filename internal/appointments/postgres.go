package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const appointmentColumns = `id, doctor_id, time_label, patient_name, reason, location, status,
	confirmation_id, external_event_ref, patient, created_at`

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRegistry stores appointments in Postgres. A unique index on
// (doctor_id, slot_key) keeps the one-record-per-slot rule across processes.
type PostgresRegistry struct {
	db pgxDB
}

// NewPostgresRegistry creates a registry backed by a pgx pool.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRegistry{db: pool}
}

func newPostgresRegistryWithDB(db pgxDB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Find returns the record in the slot, or nil when the slot is free.
func (r *PostgresRegistry) Find(ctx context.Context, doctorID, timeLabel string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND slot_key = $2`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, doctorID, SlotKey(timeLabel)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: find: %w", err)
	}
	return appt, nil
}

// FindByConfirmation looks a record up by its confirmation id.
func (r *PostgresRegistry) FindByConfirmation(ctx context.Context, confirmationID string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE confirmation_id = $1`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, confirmationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: find by confirmation: %w", err)
	}
	return appt, nil
}

// Insert stores the record unless its slot is already occupied.
func (r *PostgresRegistry) Insert(ctx context.Context, appt *Appointment) error {
	if err := appt.Validate(); err != nil {
		return err
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	patient, err := marshalPatient(appt.Patient)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO appointments (id, doctor_id, slot_key, time_label, patient_name, reason, location,
			status, confirmation_id, external_event_ref, patient, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (doctor_id, slot_key) DO NOTHING
	`
	ct, err := r.db.Exec(ctx, query,
		appt.ID, appt.DoctorID, appt.SlotKey(), appt.TimeLabel, appt.PatientName, appt.Reason, appt.Location,
		string(appt.Status), appt.ConfirmationID, appt.ExternalEventRef, patient, appt.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Reschedule moves a record to a new label and clears its external ref.
func (r *PostgresRegistry) Reschedule(ctx context.Context, doctorID, oldLabel, newLabel string) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET slot_key = $3, time_label = $4, external_event_ref = ''
		WHERE doctor_id = $1 AND slot_key = $2
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, doctorID, SlotKey(oldLabel), SlotKey(newLabel), newLabel))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case isUniqueViolation(err):
		return nil, ErrConflict
	case err != nil:
		return nil, fmt.Errorf("appointments: reschedule: %w", err)
	}
	return appt, nil
}

// Remove deletes the record in the slot and returns it.
func (r *PostgresRegistry) Remove(ctx context.Context, doctorID, timeLabel string) (*Appointment, error) {
	query := `
		DELETE FROM appointments
		WHERE doctor_id = $1 AND slot_key = $2
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, doctorID, SlotKey(timeLabel)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: remove: %w", err)
	}
	return appt, nil
}

// ListByDoctor returns the doctor's records in insertion order.
func (r *PostgresRegistry) ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY seq`
	rows, err := r.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	out := make([]Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

// SetExternalRef records the calendar handle the notifier created.
func (r *PostgresRegistry) SetExternalRef(ctx context.Context, confirmationID, ref string) error {
	query := `UPDATE appointments SET external_event_ref = $2 WHERE confirmation_id = $1`
	ct, err := r.db.Exec(ctx, query, confirmationID, ref)
	if err != nil {
		return fmt.Errorf("appointments: set external ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt    Appointment
		status  string
		patient []byte
	)
	if err := row.Scan(&appt.ID, &appt.DoctorID, &appt.TimeLabel, &appt.PatientName, &appt.Reason,
		&appt.Location, &status, &appt.ConfirmationID, &appt.ExternalEventRef, &patient, &appt.CreatedAt); err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	if len(patient) > 0 && string(patient) != "null" {
		var details PatientDetails
		if err := json.Unmarshal(patient, &details); err != nil {
			return nil, fmt.Errorf("appointments: decode patient: %w", err)
		}
		appt.Patient = &details
	}
	return &appt, nil
}

func marshalPatient(p *PatientDetails) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("appointments: encode patient: %w", err)
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Registry = (*PostgresRegistry)(nil)
