package ward

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WardRepository interface {
	Create(ctx context.Context, w *Ward) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ward, error)
	Update(ctx context.Context, w *Ward) error
	List(ctx context.Context, wardType, status string, limit, offset int) ([]*Ward, int, error)
	// ClaimBed decrements available_beds by one in a single conditional
	// statement; it reports false when the ward is missing, not Active, or
	// already full.
	ClaimBed(ctx context.Context, id uuid.UUID) (bool, error)
	// ReleaseBed increments available_beds, capped at total_beds.
	ReleaseBed(ctx context.Context, id uuid.UUID) error
}

type AllocationRepository interface {
	Create(ctx context.Context, a *Allocation) error
	// CreateExclusive inserts the allocation only while no Admitted
	// allocation holds the same bed label in the ward; the existence check
	// and the insert are one conditional statement. It must run after
	// ClaimBed in the same transaction: the claimed ward row serializes
	// concurrent admissions to the ward. Reports false when the bed is
	// already occupied.
	CreateExclusive(ctx context.Context, a *Allocation) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Allocation, error)
	// CloseOut transitions an Admitted allocation into a terminal status,
	// recording discharge time, day count and charges. It reports false
	// when the allocation was not in the Admitted state.
	CloseOut(ctx context.Context, id uuid.UUID, status string, dischargedAt time.Time, days int, charges float64) (bool, error)
	List(ctx context.Context, wardID uuid.UUID, status string, limit, offset int) ([]*Allocation, int, error)
	AddNote(ctx context.Context, n *Note) error
	GetNotes(ctx context.Context, allocationID uuid.UUID) ([]*Note, error)
}
