package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

type Service struct {
	bills    BillRepository
	payments PaymentRepository
	tx       db.TxManager

	// allowOverpayment controls whether a payment may push amount_paid
	// past total_amount.
	allowOverpayment bool
}

func NewService(bills BillRepository, payments PaymentRepository, tx db.TxManager, allowOverpayment bool) *Service {
	return &Service{bills: bills, payments: payments, tx: tx, allowOverpayment: allowOverpayment}
}

// GenerateBill computes every line total, the subtotal and the grand total
// server side. Amounts sent by the client for those fields are ignored.
func (s *Service) GenerateBill(ctx context.Context, b *Bill) error {
	if b.PatientID == uuid.Nil {
		return apperr.Validationf("patient_id is required")
	}
	if err := computeTotals(b); err != nil {
		return err
	}
	b.AmountPaid = 0
	if err := s.bills.Create(ctx, b); err != nil {
		return err
	}
	b.Derive()
	return nil
}

func computeTotals(b *Bill) error {
	if b.Charges.ConsultationFee < 0 {
		return apperr.Validationf("consultation_fee must not be negative")
	}
	subtotal := b.Charges.ConsultationFee

	for i := range b.Charges.LabTests {
		lt := &b.Charges.LabTests[i]
		if lt.TestName == "" {
			return apperr.Validationf("lab test name is required")
		}
		if lt.Cost < 0 {
			return apperr.Validationf("lab test %s: cost must not be negative", lt.TestName)
		}
		subtotal += lt.Cost
	}

	for i := range b.Charges.Medicines {
		ml := &b.Charges.Medicines[i]
		if ml.Name == "" {
			return apperr.Validationf("medicine line name is required")
		}
		if ml.Quantity <= 0 {
			return apperr.Validationf("medicine %s: quantity must be positive", ml.Name)
		}
		if ml.UnitPrice < 0 {
			return apperr.Validationf("medicine %s: unit_price must not be negative", ml.Name)
		}
		ml.Total = round2(float64(ml.Quantity) * ml.UnitPrice)
		subtotal += ml.Total
	}

	if rc := b.Charges.RoomCharges; rc != nil {
		if rc.Days < 0 || rc.RatePerDay < 0 {
			return apperr.Validationf("room charges must not be negative")
		}
		rc.Total = round2(float64(rc.Days) * rc.RatePerDay)
		subtotal += rc.Total
	}

	for i := range b.Charges.OtherCharges {
		oc := &b.Charges.OtherCharges[i]
		if oc.Description == "" {
			return apperr.Validationf("other charge description is required")
		}
		if oc.Amount < 0 {
			return apperr.Validationf("other charge %s: amount must not be negative", oc.Description)
		}
		subtotal += oc.Amount
	}

	if b.Tax < 0 {
		return apperr.Validationf("tax must not be negative")
	}
	if b.Discount < 0 {
		return apperr.Validationf("discount must not be negative")
	}
	b.Subtotal = round2(subtotal)
	if b.Discount > b.Subtotal+b.Tax {
		return apperr.Validationf("discount %.2f exceeds subtotal plus tax %.2f", b.Discount, b.Subtotal+b.Tax)
	}
	b.TotalAmount = round2(b.Subtotal + b.Tax - b.Discount)
	return nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Derive()
	return b, nil
}

func (s *Service) ListBills(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	items, total, err := s.bills.List(ctx, f, limit, offset)
	for _, b := range items {
		b.Derive()
	}
	return items, total, err
}

// RecordPayment applies a payment in one transaction: the conditional
// balance update and the payment row commit or roll back together. A
// retried call carrying an idempotency key already on the ledger returns
// the current state without re-applying the amount.
func (s *Service) RecordPayment(ctx context.Context, billID uuid.UUID, amount float64, method, reference, idempotencyKey, actor string) (*Bill, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("amount must be positive")
	}
	if !validPaymentMethods[method] {
		return nil, apperr.Validationf("invalid payment method: %s", method)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p := &Payment{BillID: billID, Amount: amount, Method: method, Reference: reference, ReceivedBy: actor}
		if idempotencyKey != "" {
			p.IdempotencyKey = &idempotencyKey
		}
		if err := s.payments.Record(ctx, p); err != nil {
			return err
		}

		ok, err := s.bills.ApplyPayment(ctx, billID, amount, method, s.allowOverpayment)
		if err != nil {
			return err
		}
		if !ok {
			b, err := s.bills.GetByID(ctx, billID)
			if err != nil {
				return err
			}
			b.Derive()
			return apperr.Validationf("payment %.2f exceeds amount due %.2f", amount, b.AmountDue)
		}
		return nil
	})
	if err != nil && !apperr.Is(err, apperr.KindConflict) {
		return nil, err
	}
	// On success and on an idempotent replay alike, hand back the current
	// state of the bill.
	return s.GetBill(ctx, billID)
}

func (s *Service) ListPayments(ctx context.Context, billID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, 0, err
	}
	return s.payments.ListByBill(ctx, billID, limit, offset)
}

// RevenueSummary aggregates bills created in [from, to). A zero to means
// now; a zero from means the beginning of the ledger.
func (s *Service) RevenueSummary(ctx context.Context, from, to time.Time) (*RevenueSummary, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if !from.IsZero() && to.Before(from) {
		return nil, apperr.Validationf("to must not be before from")
	}
	return s.bills.RevenueSummary(ctx, from, to)
}
