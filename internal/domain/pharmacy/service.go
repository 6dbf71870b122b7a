package pharmacy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/domain/stock"
	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

// Dispensary is the slice of the stock service that issuance needs.
type Dispensary interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*stock.Medicine, error)
	AdjustStock(ctx context.Context, medicineID uuid.UUID, delta int, reason, idempotencyKey, actor string) (*stock.Medicine, error)
}

type Service struct {
	prescriptions PrescriptionRepository
	dispensary    Dispensary
	tx            db.TxManager

	now func() time.Time
}

func NewService(prescriptions PrescriptionRepository, dispensary Dispensary, tx db.TxManager) *Service {
	return &Service{prescriptions: prescriptions, dispensary: dispensary, tx: tx, now: time.Now}
}

// CreatePrescription validates each line against the formulary and snapshots
// the medicine name onto the item.
func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PrescriptionID == "" {
		return apperr.Validationf("prescription_id is required")
	}
	if p.PatientID == uuid.Nil {
		return apperr.Validationf("patient_id is required")
	}
	if p.DoctorID == uuid.Nil {
		return apperr.Validationf("doctor_id is required")
	}
	if len(p.Items) == 0 {
		return apperr.Validationf("at least one item is required")
	}
	now := s.now()
	for i := range p.Items {
		it := &p.Items[i]
		if it.Quantity <= 0 {
			return apperr.Validationf("item %d: quantity must be positive", i)
		}
		if it.Dosage == "" {
			return apperr.Validationf("item %d: dosage is required", i)
		}
		m, err := s.dispensary.GetMedicine(ctx, it.MedicineID)
		if err != nil {
			return err
		}
		if m.DeriveStatus(now) == stock.StatusExpired {
			return apperr.Validationf("medicine %s is expired", m.Name)
		}
		it.MedicineName = m.Name
		it.Issued = false
		it.IssuedAt = nil
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return err
	}
	p.Status = p.DeriveStatus()
	return nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = p.DeriveStatus()
	return p, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, f ListFilter, limit, offset int) ([]*Prescription, int, error) {
	items, total, err := s.prescriptions.List(ctx, f, limit, offset)
	for _, p := range items {
		p.Status = p.DeriveStatus()
	}
	return items, total, err
}

func (s *Service) CancelPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	ok, err := s.prescriptions.Cancel(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		p, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidStatef("prescription %s is already cancelled", p.PrescriptionID)
	}
	return s.GetPrescription(ctx, id)
}

// errSkipIssued marks an item another issuance run already claimed.
var errSkipIssued = errors.New("item already issued")

// IssueItems dispenses the named items, or every unissued item when itemIDs
// is empty. Each item runs in its own transaction: the issued-flag claim and
// the stock decrement commit or roll back together, and one item's failure
// never disturbs the others. Re-running after a partial failure issues only
// what is still outstanding.
func (s *Service) IssueItems(ctx context.Context, prescriptionID uuid.UUID, itemIDs []uuid.UUID, actor string) ([]IssueResult, error) {
	p, err := s.prescriptions.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p.CancelledAt != nil {
		return nil, apperr.InvalidStatef("prescription %s is cancelled", p.PrescriptionID)
	}

	targets, err := selectItems(p, itemIDs)
	if err != nil {
		return nil, err
	}

	results := make([]IssueResult, 0, len(targets))
	for _, item := range targets {
		results = append(results, s.issueOne(ctx, item, actor))
	}
	return results, nil
}

func selectItems(p *Prescription, itemIDs []uuid.UUID) ([]Item, error) {
	if len(itemIDs) == 0 {
		var targets []Item
		for _, it := range p.Items {
			if !it.Issued {
				targets = append(targets, it)
			}
		}
		return targets, nil
	}
	byID := make(map[uuid.UUID]Item, len(p.Items))
	for _, it := range p.Items {
		byID[it.ID] = it
	}
	targets := make([]Item, 0, len(itemIDs))
	for _, id := range itemIDs {
		it, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("prescription item", id)
		}
		targets = append(targets, it)
	}
	return targets, nil
}

func (s *Service) issueOne(ctx context.Context, item Item, actor string) IssueResult {
	res := IssueResult{ItemID: item.ID, MedicineID: item.MedicineID}

	var remaining int
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := s.prescriptions.ClaimIssued(ctx, item.ID, s.now(), actor)
		if err != nil {
			return err
		}
		if !claimed {
			return errSkipIssued
		}

		m, err := s.dispensary.GetMedicine(ctx, item.MedicineID)
		if err != nil {
			return err
		}
		if m.DeriveStatus(s.now()) == stock.StatusExpired {
			return apperr.InvalidStatef("medicine %s is expired", m.Name)
		}

		// The item ID doubles as the idempotency key, so a replayed
		// decrement for the same item can never apply twice.
		m, err = s.dispensary.AdjustStock(ctx, item.MedicineID, -item.Quantity,
			"prescription issuance", "rx-item-"+item.ID.String(), actor)
		if err != nil {
			return err
		}
		remaining = m.StockQuantity
		return nil
	})

	switch {
	case err == nil:
		res.Status = ItemIssued
		res.Remaining = remaining
	case errors.Is(err, errSkipIssued):
		res.Status = ItemSkipped
		res.Reason = "already issued"
	default:
		res.Status = ItemFailed
		res.Reason = err.Error()
	}
	return res
}
