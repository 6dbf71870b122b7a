package pharmacy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows prescription listings. Pending selects prescriptions
// with at least one unissued item that are not cancelled.
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Pending   bool
}

type PrescriptionRepository interface {
	// Create stores the prescription together with its items.
	Create(ctx context.Context, p *Prescription) error
	// GetByID loads the prescription with its items, dispensation order.
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Prescription, int, error)
	// Cancel stamps cancelled_at once. Reports false when the prescription
	// was already cancelled or does not exist.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error)
	// ClaimIssued flips the item's issued flag in one conditional statement,
	// stamping the dispensing time and issuer. Reports false when the flag
	// was already set.
	ClaimIssued(ctx context.Context, itemID uuid.UUID, at time.Time, by string) (bool, error)
}
