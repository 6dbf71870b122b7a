package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Payment statuses are derived from total_amount and amount_paid on every
// read. They are never stored, so a bill can never report Paid while money
// is still owed.
const (
	PayStatusUnpaid  = "Unpaid"
	PayStatusPartial = "Partial"
	PayStatusPaid    = "Paid"
)

var validPaymentMethods = map[string]bool{
	"Cash": true, "Credit Card": true, "Debit Card": true,
	"Insurance": true, "Online": true, "UPI": true,
}

// moneyEpsilon absorbs float rounding when comparing currency amounts.
const moneyEpsilon = 0.005

func round2(v float64) float64 { return math.Round(v*100) / 100 }

type LabTest struct {
	TestName string  `json:"test_name"`
	Cost     float64 `json:"cost"`
}

// MedicineLine is a priced snapshot taken at billing time. Later catalog
// price changes never alter an issued bill.
type MedicineLine struct {
	MedicineID *uuid.UUID `json:"medicine_id,omitempty"`
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	UnitPrice  float64    `json:"unit_price"`
	Total      float64    `json:"total"`
}

type RoomCharges struct {
	Days       int     `json:"days"`
	RatePerDay float64 `json:"rate_per_day"`
	Total      float64 `json:"total"`
}

type OtherCharge struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// Charges is the itemised breakdown behind a bill's subtotal.
type Charges struct {
	ConsultationFee float64        `json:"consultation_fee"`
	LabTests        []LabTest      `json:"lab_tests,omitempty"`
	Medicines       []MedicineLine `json:"medicines,omitempty"`
	RoomCharges     *RoomCharges   `json:"room_charges,omitempty"`
	OtherCharges    []OtherCharge  `json:"other_charges,omitempty"`
}

type Bill struct {
	ID            uuid.UUID  `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	PatientID     uuid.UUID  `json:"patient_id"`
	AllocationID  *uuid.UUID `json:"allocation_id,omitempty"`
	Charges       Charges    `json:"charges"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Discount      float64    `json:"discount"`
	TotalAmount   float64    `json:"total_amount"`
	AmountPaid    float64    `json:"amount_paid"`
	// AmountDue and PaymentStatus are derived before a bill leaves the
	// service layer and never written to storage.
	AmountDue     float64    `json:"amount_due"`
	PaymentStatus string     `json:"payment_status"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	GeneratedBy   string     `json:"generated_by,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Derive fills AmountDue and PaymentStatus from the stored amounts.
// AmountDue is the signed balance: an overpaid bill reports a negative due,
// keeping the credit owed back to the patient visible.
func (b *Bill) Derive() {
	b.AmountDue = round2(b.TotalAmount - b.AmountPaid)
	switch {
	case b.AmountDue <= moneyEpsilon:
		b.PaymentStatus = PayStatusPaid
	case b.AmountPaid > moneyEpsilon:
		b.PaymentStatus = PayStatusPartial
	default:
		b.PaymentStatus = PayStatusUnpaid
	}
}

// Payment is one entry in the append-only payment ledger. Rows with an
// idempotency key double as the dedupe ledger for retried payments.
type Payment struct {
	ID             uuid.UUID `json:"id"`
	BillID         uuid.UUID `json:"bill_id"`
	Amount         float64   `json:"amount"`
	Method         string    `json:"method"`
	Reference      string    `json:"reference,omitempty"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	ReceivedBy     string    `json:"received_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RevenueSummary aggregates the ledger for finance reporting.
type RevenueSummary struct {
	TotalBills       int     `json:"total_bills"`
	TotalBilled      float64 `json:"total_billed"`
	TotalCollected   float64 `json:"total_collected"`
	TotalOutstanding float64 `json:"total_outstanding"`
	PaidBills        int     `json:"paid_bills"`
	PartialBills     int     `json:"partial_bills"`
	UnpaidBills      int     `json:"unpaid_bills"`
}
