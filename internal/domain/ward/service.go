package ward

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

type Service struct {
	wards  WardRepository
	allocs AllocationRepository
	tx     db.TxManager

	// exclusiveBeds rejects a second Admitted allocation holding the same
	// bed label within one ward.
	exclusiveBeds bool

	now func() time.Time
}

func NewService(wards WardRepository, allocs AllocationRepository, tx db.TxManager, exclusiveBeds bool) *Service {
	return &Service{wards: wards, allocs: allocs, tx: tx, exclusiveBeds: exclusiveBeds, now: time.Now}
}

// -- Ward catalog --

func (s *Service) CreateWard(ctx context.Context, w *Ward) error {
	if err := validateWard(w); err != nil {
		return err
	}
	if w.Status == "" {
		w.Status = StatusActive
	}
	if !validWardStatuses[w.Status] {
		return apperr.Validationf("invalid ward status: %s", w.Status)
	}
	return s.wards.Create(ctx, w)
}

func (s *Service) GetWard(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return s.wards.GetByID(ctx, id)
}

// UpdateWard applies administrative edits. Bed counters are validated
// against each other but the counter itself is only moved by admissions
// and discharges.
func (s *Service) UpdateWard(ctx context.Context, w *Ward) error {
	if err := validateWard(w); err != nil {
		return err
	}
	if !validWardStatuses[w.Status] {
		return apperr.Validationf("invalid ward status: %s", w.Status)
	}
	return s.wards.Update(ctx, w)
}

func (s *Service) ListWards(ctx context.Context, wardType, status string, limit, offset int) ([]*Ward, int, error) {
	return s.wards.List(ctx, wardType, status, limit, offset)
}

func validateWard(w *Ward) error {
	if w.WardID == "" {
		return apperr.Validationf("ward_id is required")
	}
	if w.Name == "" {
		return apperr.Validationf("name is required")
	}
	if !validWardTypes[w.Type] {
		return apperr.Validationf("invalid ward type: %s", w.Type)
	}
	if w.TotalBeds < 0 {
		return apperr.Validationf("total_beds must not be negative")
	}
	if w.AvailableBeds < 0 || w.AvailableBeds > w.TotalBeds {
		return apperr.Validationf("available_beds must be between 0 and total_beds")
	}
	if w.DailyRate < 0 {
		return apperr.Validationf("daily_rate must not be negative")
	}
	return nil
}

// -- Admission lifecycle --

type AdmitRequest struct {
	WardID     uuid.UUID `json:"ward_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	BedLabel   string    `json:"bed_label"`
	AdmittedBy uuid.UUID `json:"admitted_by"`
	Reason     string    `json:"reason"`
}

// AdmitPatient claims a bed and records the allocation in one transaction.
// The claim is a single conditional decrement so two admissions cannot
// race past the last free bed.
func (s *Service) AdmitPatient(ctx context.Context, req AdmitRequest) (*Allocation, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validationf("patient_id is required")
	}
	if req.BedLabel == "" {
		return nil, apperr.Validationf("bed_label is required")
	}
	if req.Reason == "" {
		return nil, apperr.Validationf("reason is required")
	}

	var alloc *Allocation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := s.wards.ClaimBed(ctx, req.WardID)
		if err != nil {
			return err
		}
		if !claimed {
			// The claim is deliberately silent about why it failed;
			// classify with a follow-up read.
			w, err := s.wards.GetByID(ctx, req.WardID)
			if err != nil {
				return err
			}
			if w.Status != StatusActive {
				return apperr.WardUnavailable(req.WardID, w.Status)
			}
			return apperr.NoBedAvailable(req.WardID)
		}

		alloc = &Allocation{
			PatientID:     req.PatientID,
			WardID:        req.WardID,
			BedLabel:      req.BedLabel,
			AdmissionDate: s.now(),
			AdmittedBy:    req.AdmittedBy,
			Reason:        req.Reason,
			Status:        AllocAdmitted,
		}
		return s.createAllocation(ctx, alloc)
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// createAllocation records the admission the bed claim earlier in the same
// transaction made room for. In exclusive mode the insert itself carries
// the occupancy check; the claimed ward row keeps concurrent admissions to
// the ward from racing past it.
func (s *Service) createAllocation(ctx context.Context, a *Allocation) error {
	if !s.exclusiveBeds {
		return s.allocs.Create(ctx, a)
	}
	ok, err := s.allocs.CreateExclusive(ctx, a)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflictf("bed %s in ward %s is already occupied", a.BedLabel, a.WardID)
	}
	return nil
}

// DischargePatient closes an Admitted allocation, computes the stay
// charges, and releases the bed, all in one transaction.
func (s *Service) DischargePatient(ctx context.Context, allocationID uuid.UUID) (*Allocation, error) {
	var out *Allocation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		alloc, err := s.allocs.GetByID(ctx, allocationID)
		if err != nil {
			return err
		}
		if alloc.Terminal() {
			return apperr.InvalidStatef("allocation %s is already %s", allocationID, alloc.Status)
		}
		w, err := s.wards.GetByID(ctx, alloc.WardID)
		if err != nil {
			return err
		}

		dischargedAt := s.now()
		days := StayDays(alloc.AdmissionDate, dischargedAt)
		charges := float64(days) * w.DailyRate

		ok, err := s.allocs.CloseOut(ctx, allocationID, AllocDischarged, dischargedAt, days, charges)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidStatef("allocation %s is not admitted", allocationID)
		}
		if err := s.wards.ReleaseBed(ctx, alloc.WardID); err != nil {
			return err
		}

		alloc.Status = AllocDischarged
		alloc.DischargeDate = &dischargedAt
		alloc.TotalDays = days
		alloc.TotalCharges = charges
		out = alloc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransferPatient closes the current allocation as Transferred and opens a
// new Admitted allocation in the target ward, moving both bed counters in
// the same transaction.
func (s *Service) TransferPatient(ctx context.Context, allocationID, toWardID uuid.UUID, bedLabel string) (*Allocation, error) {
	if bedLabel == "" {
		return nil, apperr.Validationf("bed_label is required")
	}

	var out *Allocation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		alloc, err := s.allocs.GetByID(ctx, allocationID)
		if err != nil {
			return err
		}
		if alloc.Terminal() {
			return apperr.InvalidStatef("allocation %s is already %s", allocationID, alloc.Status)
		}
		if alloc.WardID == toWardID {
			return apperr.Validationf("transfer target is the current ward")
		}

		claimed, err := s.wards.ClaimBed(ctx, toWardID)
		if err != nil {
			return err
		}
		if !claimed {
			w, err := s.wards.GetByID(ctx, toWardID)
			if err != nil {
				return err
			}
			if w.Status != StatusActive {
				return apperr.WardUnavailable(toWardID, w.Status)
			}
			return apperr.NoBedAvailable(toWardID)
		}

		fromWard, err := s.wards.GetByID(ctx, alloc.WardID)
		if err != nil {
			return err
		}
		transferredAt := s.now()
		days := StayDays(alloc.AdmissionDate, transferredAt)
		charges := float64(days) * fromWard.DailyRate

		ok, err := s.allocs.CloseOut(ctx, allocationID, AllocTransferred, transferredAt, days, charges)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidStatef("allocation %s is not admitted", allocationID)
		}
		if err := s.wards.ReleaseBed(ctx, alloc.WardID); err != nil {
			return err
		}

		next := &Allocation{
			PatientID:     alloc.PatientID,
			WardID:        toWardID,
			BedLabel:      bedLabel,
			AdmissionDate: transferredAt,
			AdmittedBy:    alloc.AdmittedBy,
			Reason:        alloc.Reason,
			Status:        AllocAdmitted,
		}
		if err := s.createAllocation(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddDailyNote appends a dated note to a non-terminal allocation.
func (s *Service) AddDailyNote(ctx context.Context, allocationID uuid.UUID, note, recordedBy string) (*Note, error) {
	if note == "" {
		return nil, apperr.Validationf("note is required")
	}
	alloc, err := s.allocs.GetByID(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if alloc.Terminal() {
		return nil, apperr.InvalidStatef("allocation %s is %s", allocationID, alloc.Status)
	}
	n := &Note{
		AllocationID: allocationID,
		NotedAt:      s.now(),
		Note:         note,
		RecordedBy:   recordedBy,
	}
	if err := s.allocs.AddNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) GetAllocation(ctx context.Context, id uuid.UUID) (*Allocation, error) {
	return s.allocs.GetByID(ctx, id)
}

func (s *Service) GetNotes(ctx context.Context, allocationID uuid.UUID) ([]*Note, error) {
	if _, err := s.allocs.GetByID(ctx, allocationID); err != nil {
		return nil, err
	}
	return s.allocs.GetNotes(ctx, allocationID)
}

func (s *Service) ListAllocations(ctx context.Context, wardID uuid.UUID, status string, limit, offset int) ([]*Allocation, int, error) {
	return s.allocs.List(ctx, wardID, status, limit, offset)
}

// ListAdmitted returns the currently admitted patients.
func (s *Service) ListAdmitted(ctx context.Context, limit, offset int) ([]*Allocation, int, error) {
	return s.allocs.List(ctx, uuid.Nil, AllocAdmitted, limit, offset)
}
