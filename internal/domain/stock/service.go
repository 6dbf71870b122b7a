package stock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

type Service struct {
	medicines MedicineRepository
	movements MovementRepository
	tx        db.TxManager

	// defaultReorderLevel is used when a medicine is created without one.
	defaultReorderLevel int

	now func() time.Time
}

func NewService(medicines MedicineRepository, movements MovementRepository, tx db.TxManager, defaultReorderLevel int) *Service {
	return &Service{
		medicines:           medicines,
		movements:           movements,
		tx:                  tx,
		defaultReorderLevel: defaultReorderLevel,
		now:                 time.Now,
	}
}

// -- Catalog --

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	if m.ReorderLevel == 0 {
		m.ReorderLevel = s.defaultReorderLevel
	}
	if err := s.medicines.Create(ctx, m); err != nil {
		return err
	}
	m.Status = m.DeriveStatus(s.now())
	return nil
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Status = m.DeriveStatus(s.now())
	return m, nil
}

// UpdateMedicine edits catalog attributes. Stock quantity is deliberately
// excluded; it only moves through AdjustStock.
func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	if err := s.medicines.Update(ctx, m); err != nil {
		return err
	}
	fresh, err := s.medicines.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *fresh
	m.Status = m.DeriveStatus(s.now())
	return nil
}

func (s *Service) DeleteMedicine(ctx context.Context, id uuid.UUID) error {
	return s.medicines.Delete(ctx, id)
}

func (s *Service) ListMedicines(ctx context.Context, f ListFilter, limit, offset int) ([]*Medicine, int, error) {
	f.Now = s.now()
	items, total, err := s.medicines.List(ctx, f, limit, offset)
	s.deriveAll(items)
	return items, total, err
}

func (s *Service) ListLowStock(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	items, total, err := s.medicines.ListLowStock(ctx, s.now(), limit, offset)
	s.deriveAll(items)
	return items, total, err
}

func (s *Service) ListExpired(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	items, total, err := s.medicines.ListExpired(ctx, s.now(), limit, offset)
	s.deriveAll(items)
	return items, total, err
}

func (s *Service) deriveAll(items []*Medicine) {
	now := s.now()
	for _, m := range items {
		m.Status = m.DeriveStatus(now)
	}
}

func validateMedicine(m *Medicine) error {
	if m.MedicineID == "" {
		return apperr.Validationf("medicine_id is required")
	}
	if m.Name == "" {
		return apperr.Validationf("name is required")
	}
	if m.Manufacturer == "" {
		return apperr.Validationf("manufacturer is required")
	}
	if !validCategories[m.Category] {
		return apperr.Validationf("invalid category: %s", m.Category)
	}
	if !validDosageForms[m.DosageForm] {
		return apperr.Validationf("invalid dosage form: %s", m.DosageForm)
	}
	if m.Strength == "" {
		return apperr.Validationf("strength is required")
	}
	if m.UnitPrice < 0 {
		return apperr.Validationf("unit_price must not be negative")
	}
	if m.StockQuantity < 0 {
		return apperr.Validationf("stock_quantity must not be negative")
	}
	if m.ReorderLevel < 0 {
		return apperr.Validationf("reorder_level must not be negative")
	}
	if m.ExpiryDate.IsZero() {
		return apperr.Validationf("expiry_date is required")
	}
	return nil
}

// -- Ledger --

// AdjustStock applies delta to a medicine's stock in one transaction: the
// conditional counter update and the movement row commit or roll back
// together. A retried call carrying an idempotency key already on the
// ledger returns the current state without re-applying the delta.
func (s *Service) AdjustStock(ctx context.Context, medicineID uuid.UUID, delta int, reason, idempotencyKey, actor string) (*Medicine, error) {
	if delta == 0 {
		return nil, apperr.Validationf("delta must not be zero")
	}
	if reason == "" {
		return nil, apperr.Validationf("reason is required")
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		mv := &Movement{MedicineID: medicineID, Delta: delta, Reason: reason, Actor: actor}
		if idempotencyKey != "" {
			mv.IdempotencyKey = &idempotencyKey
		}
		if err := s.movements.Record(ctx, mv); err != nil {
			return err
		}

		ok, err := s.medicines.ApplyDelta(ctx, medicineID, delta)
		if err != nil {
			return err
		}
		if !ok {
			m, err := s.medicines.GetByID(ctx, medicineID)
			if err != nil {
				return err
			}
			return apperr.InsufficientStock(m.Name, m.StockQuantity, -delta)
		}
		return nil
	})
	if err != nil && !apperr.Is(err, apperr.KindConflict) {
		return nil, err
	}
	// On success and on an idempotent replay alike, hand back the current
	// state of the medicine.
	return s.GetMedicine(ctx, medicineID)
}

// GetStatus derives the availability status without side effects.
func (s *Service) GetStatus(ctx context.Context, medicineID uuid.UUID) (string, error) {
	m, err := s.medicines.GetByID(ctx, medicineID)
	if err != nil {
		return "", err
	}
	return m.DeriveStatus(s.now()), nil
}

func (s *Service) ListMovements(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	if _, err := s.medicines.GetByID(ctx, medicineID); err != nil {
		return nil, 0, err
	}
	return s.movements.ListByMedicine(ctx, medicineID, limit, offset)
}
