package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns the appointment collection and enforces that a doctor has at
// most one record per slot.
type Registry interface {
	Find(ctx context.Context, doctorID, timeLabel string) (*Appointment, error)
	FindByConfirmation(ctx context.Context, confirmationID string) (*Appointment, error)
	Insert(ctx context.Context, appt *Appointment) error
	Reschedule(ctx context.Context, doctorID, oldLabel, newLabel string) (*Appointment, error)
	Remove(ctx context.Context, doctorID, timeLabel string) (*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error)
	SetExternalRef(ctx context.Context, confirmationID, ref string) error
}

type slotIndex struct {
	doctorID string
	slot     string
}

// MemoryRegistry is an in-process Registry keyed by (doctor, slot key).
// The mutex makes check-then-insert atomic within one process.
type MemoryRegistry struct {
	mu     sync.RWMutex
	bySlot map[slotIndex]*Appointment
	order  []*Appointment
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		bySlot: make(map[slotIndex]*Appointment),
	}
}

func indexFor(doctorID, label string) slotIndex {
	return slotIndex{doctorID: doctorID, slot: SlotKey(label)}
}

// Find returns the record in the slot, or nil when the slot is free.
func (r *MemoryRegistry) Find(ctx context.Context, doctorID, timeLabel string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySlot[indexFor(doctorID, timeLabel)].Clone(), nil
}

// FindByConfirmation looks a record up by its confirmation id.
func (r *MemoryRegistry) FindByConfirmation(ctx context.Context, confirmationID string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if appt := r.byConfirmation(confirmationID); appt != nil {
		return appt.Clone(), nil
	}
	return nil, ErrNotFound
}

// Insert appends the record unless its slot is already occupied.
func (r *MemoryRegistry) Insert(ctx context.Context, appt *Appointment) error {
	if err := appt.Validate(); err != nil {
		return err
	}
	stored := appt.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	key := indexFor(stored.DoctorID, stored.TimeLabel)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.bySlot[key]; taken {
		return ErrConflict
	}
	if stored.ConfirmationID != "" && r.byConfirmation(stored.ConfirmationID) != nil {
		return ErrConflict
	}
	r.bySlot[key] = stored
	r.order = append(r.order, stored)

	appt.ID, appt.CreatedAt = stored.ID, stored.CreatedAt
	return nil
}

// Reschedule moves a record to a new label in place. The external ref is
// cleared; the caller is responsible for recreating it.
func (r *MemoryRegistry) Reschedule(ctx context.Context, doctorID, oldLabel, newLabel string) (*Appointment, error) {
	oldKey, newKey := indexFor(doctorID, oldLabel), indexFor(doctorID, newLabel)

	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.bySlot[oldKey]
	if !ok {
		return nil, ErrNotFound
	}
	if other, taken := r.bySlot[newKey]; taken && other != appt {
		return nil, ErrConflict
	}
	delete(r.bySlot, oldKey)
	appt.TimeLabel = newLabel
	appt.ExternalEventRef = ""
	r.bySlot[newKey] = appt
	return appt.Clone(), nil
}

// Remove deletes the record in the slot and returns it.
func (r *MemoryRegistry) Remove(ctx context.Context, doctorID, timeLabel string) (*Appointment, error) {
	key := indexFor(doctorID, timeLabel)

	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.bySlot[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.bySlot, key)
	for i, candidate := range r.order {
		if candidate == appt {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return appt, nil
}

// ListByDoctor returns the doctor's records in insertion order.
func (r *MemoryRegistry) ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Appointment, 0)
	for _, appt := range r.order {
		if appt.DoctorID == doctorID {
			out = append(out, *appt.Clone())
		}
	}
	return out, nil
}

// SetExternalRef records the calendar handle the notifier created.
func (r *MemoryRegistry) SetExternalRef(ctx context.Context, confirmationID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt := r.byConfirmation(confirmationID)
	if appt == nil {
		return ErrNotFound
	}
	appt.ExternalEventRef = ref
	return nil
}

// Len returns the number of stored records.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *MemoryRegistry) byConfirmation(confirmationID string) *Appointment {
	if confirmationID == "" {
		return nil
	}
	for _, appt := range r.order {
		if appt.ConfirmationID == confirmationID {
			return appt
		}
	}
	return nil
}

var _ Registry = (*MemoryRegistry)(nil)
