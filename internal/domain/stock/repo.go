package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows catalog listings. Status filters on the derived
// availability status evaluated against Now.
type ListFilter struct {
	Category string
	Status   string
	Search   string
	Now      time.Time
}

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Medicine, int, error)
	// ListLowStock returns unexpired medicines at or below their reorder
	// level, emptiest first.
	ListLowStock(ctx context.Context, now time.Time, limit, offset int) ([]*Medicine, int, error)
	ListExpired(ctx context.Context, now time.Time, limit, offset int) ([]*Medicine, int, error)
	// ApplyDelta adds delta to stock_quantity in one conditional statement
	// and reports false when the result would drop below zero or the
	// medicine does not exist.
	ApplyDelta(ctx context.Context, id uuid.UUID, delta int) (bool, error)
}

type MovementRepository interface {
	// Record appends a movement row. A duplicate idempotency key surfaces
	// as a Conflict error.
	Record(ctx context.Context, mv *Movement) error
	ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*Movement, int, error)
}
