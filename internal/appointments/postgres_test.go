package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var columnNames = []string{"id", "doctor_id", "time_label", "patient_name", "reason", "location", "status",
	"confirmation_id", "external_event_ref", "patient", "created_at"}

func newMockRegistry(t *testing.T) (*PostgresRegistry, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return newPostgresRegistryWithDB(mock), mock
}

func TestPostgresRegistryInsert(t *testing.T) {
	reg, mock := newMockRegistry(t)
	appt := newAppt("drlee", "Friday 10:00 AM", "c1")
	appt.Patient = &PatientDetails{FirstName: "Ana", Email: "ana@example.com"}

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "drlee", "friday@10:00", "Friday 10:00 AM", DefaultPatientName, "checkup", DefaultLocation,
			"confirmed", "c1", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := reg.Insert(context.Background(), appt); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if appt.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRegistryInsertConflict(t *testing.T) {
	reg, mock := newMockRegistry(t)

	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	if err := reg.Insert(context.Background(), newAppt("drlee", "Friday 10:00 AM", "c2")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectExec("INSERT INTO appointments").WillReturnError(&pgconn.PgError{Code: "23505"})
	if err := reg.Insert(context.Background(), newAppt("drlee", "Friday 10:00 AM", "c2")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on unique violation, got %v", err)
	}
}

func TestPostgresRegistryInsertValidates(t *testing.T) {
	reg, mock := newMockRegistry(t)
	if err := reg.Insert(context.Background(), &Appointment{}); !errors.Is(err, ErrInvalidAppointment) {
		t.Fatalf("expected ErrInvalidAppointment, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no queries expected: %v", err)
	}
}

func TestPostgresRegistryFind(t *testing.T) {
	reg, mock := newMockRegistry(t)
	now := time.Now().UTC()
	rows := pgxmock.NewRows(columnNames).AddRow("id-1", "drlee", "Friday 10:00 AM", "Ana", "headache", "clinic",
		"confirmed", "c1", "evt-1", []byte(`{"first_name":"Ana"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs("drlee", "friday@10:00").WillReturnRows(rows)

	appt, err := reg.Find(context.Background(), "drlee", "fri 10am")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if appt == nil || appt.ConfirmationID != "c1" || appt.Status != StatusConfirmed {
		t.Fatalf("unexpected appointment: %#v", appt)
	}
	if appt.Patient == nil || appt.Patient.FirstName != "Ana" {
		t.Fatalf("expected patient details, got %#v", appt.Patient)
	}

	mock.ExpectQuery("SELECT id").WithArgs("drlee", "friday@11:00").WillReturnError(pgx.ErrNoRows)
	missing, err := reg.Find(context.Background(), "drlee", "Friday 11:00 AM")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for free slot, got %#v, %v", missing, err)
	}
}

func TestPostgresRegistryReschedule(t *testing.T) {
	reg, mock := newMockRegistry(t)
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE appointments").WithArgs("drlee", "monday@09:00", "monday@10:00", "Monday 10:00 AM").
		WillReturnError(pgx.ErrNoRows)
	if _, err := reg.Reschedule(context.Background(), "drlee", "Monday 9:00 AM", "Monday 10:00 AM"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery("UPDATE appointments").WillReturnError(&pgconn.PgError{Code: "23505"})
	if _, err := reg.Reschedule(context.Background(), "drlee", "Friday 10:00 AM", "Friday 11:00 AM"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	rows := pgxmock.NewRows(columnNames).AddRow("id-1", "drlee", "Saturday 11:00 AM", "Ana", "headache", "clinic",
		"confirmed", "c1", "", []byte(nil), now)
	mock.ExpectQuery("UPDATE appointments").WillReturnRows(rows)
	moved, err := reg.Reschedule(context.Background(), "drlee", "Friday 10:00 AM", "Saturday 11:00 AM")
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if moved.TimeLabel != "Saturday 11:00 AM" || moved.Patient != nil {
		t.Fatalf("unexpected moved appointment: %#v", moved)
	}
}

func TestPostgresRegistryRemove(t *testing.T) {
	reg, mock := newMockRegistry(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(columnNames).AddRow("id-1", "drlee", "Friday 10:00 AM", "Ana", "headache", "clinic",
		"confirmed", "c1", "evt-1", []byte(nil), now)
	mock.ExpectQuery("DELETE FROM appointments").WithArgs("drlee", "friday@10:00").WillReturnRows(rows)
	removed, err := reg.Remove(context.Background(), "drlee", "Friday 10:00 AM")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if removed.ExternalEventRef != "evt-1" {
		t.Fatalf("expected external ref on removed record, got %q", removed.ExternalEventRef)
	}

	mock.ExpectQuery("DELETE FROM appointments").WillReturnError(pgx.ErrNoRows)
	if _, err := reg.Remove(context.Background(), "drlee", "Friday 10:00 AM"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRegistryListByDoctor(t *testing.T) {
	reg, mock := newMockRegistry(t)
	now := time.Now().UTC()
	rows := pgxmock.NewRows(columnNames).
		AddRow("id-1", "drlee", "Friday 10:00 AM", "Ana", "headache", "clinic", "confirmed", "c1", "", []byte(nil), now).
		AddRow("id-2", "drlee", "Saturday 11:00 AM", BlockedPatientName, "", "unknown", "blocked", "c2", "", []byte(nil), now)
	mock.ExpectQuery("SELECT id").WithArgs("drlee").WillReturnRows(rows)

	list, err := reg.ListByDoctor(context.Background(), "drlee")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[1].Status != StatusBlocked {
		t.Fatalf("unexpected list: %#v", list)
	}
}

func TestPostgresRegistrySetExternalRef(t *testing.T) {
	reg, mock := newMockRegistry(t)

	mock.ExpectExec("UPDATE appointments SET external_event_ref").WithArgs("c1", "evt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := reg.SetExternalRef(context.Background(), "c1", "evt-1"); err != nil {
		t.Fatalf("set external ref failed: %v", err)
	}

	mock.ExpectExec("UPDATE appointments SET external_event_ref").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := reg.SetExternalRef(context.Background(), "missing", "evt-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
