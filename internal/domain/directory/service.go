package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/platform/apperr"
)

type Service struct {
	patients   PatientRepository
	clinicians ClinicianRepository
}

func NewService(patients PatientRepository, clinicians ClinicianRepository) *Service {
	return &Service{patients: patients, clinicians: clinicians}
}

func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, search, limit, offset)
}

func validatePatient(p *Patient) error {
	if p.PatientID == "" {
		return apperr.Validationf("patient_id is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return apperr.Validationf("first_name and last_name are required")
	}
	if p.Gender != "" && !validGenders[p.Gender] {
		return apperr.Validationf("invalid gender: %s", p.Gender)
	}
	if p.BloodGroup != "" && !validBloodGroups[p.BloodGroup] {
		return apperr.Validationf("invalid blood group: %s", p.BloodGroup)
	}
	return nil
}

func (s *Service) RegisterClinician(ctx context.Context, c *Clinician) error {
	if err := validateClinician(c); err != nil {
		return err
	}
	return s.clinicians.Create(ctx, c)
}

func (s *Service) GetClinician(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	return s.clinicians.GetByID(ctx, id)
}

func (s *Service) UpdateClinician(ctx context.Context, c *Clinician) error {
	if err := validateClinician(c); err != nil {
		return err
	}
	return s.clinicians.Update(ctx, c)
}

func (s *Service) ListClinicians(ctx context.Context, role string, activeOnly bool, limit, offset int) ([]*Clinician, int, error) {
	if role != "" && !validClinicianRoles[role] {
		return nil, 0, apperr.Validationf("invalid role: %s", role)
	}
	return s.clinicians.List(ctx, role, activeOnly, limit, offset)
}

func validateClinician(c *Clinician) error {
	if c.EmployeeID == "" {
		return apperr.Validationf("employee_id is required")
	}
	if c.FirstName == "" || c.LastName == "" {
		return apperr.Validationf("first_name and last_name are required")
	}
	if !validClinicianRoles[c.Role] {
		return apperr.Validationf("invalid role: %s", c.Role)
	}
	return nil
}
