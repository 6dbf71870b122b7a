package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows bill listings. Status filters on the derived payment
// status.
type ListFilter struct {
	PatientID     *uuid.UUID
	Status        string
	InvoiceNumber string
}

type BillRepository interface {
	// Create stores the bill and assigns its invoice number.
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error)
	// ApplyPayment adds amount to amount_paid in one conditional statement,
	// stamping payment_date the first time the bill crosses into Paid. When
	// allowOverpayment is false the statement refuses amounts that would
	// push amount_paid past total_amount. Reports false when no row
	// qualified.
	ApplyPayment(ctx context.Context, id uuid.UUID, amount float64, method string, allowOverpayment bool) (bool, error)
	RevenueSummary(ctx context.Context, from, to time.Time) (*RevenueSummary, error)
}

type PaymentRepository interface {
	// Record appends a payment row. A duplicate idempotency key surfaces as
	// a Conflict error.
	Record(ctx context.Context, p *Payment) error
	ListByBill(ctx context.Context, billID uuid.UUID, limit, offset int) ([]*Payment, int, error)
}
