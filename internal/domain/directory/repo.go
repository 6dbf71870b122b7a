package directory

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// List filters on a case-insensitive name or patient_id substring.
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
}

type ClinicianRepository interface {
	Create(ctx context.Context, c *Clinician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	Update(ctx context.Context, c *Clinician) error
	List(ctx context.Context, role string, activeOnly bool, limit, offset int) ([]*Clinician, int, error)
}
