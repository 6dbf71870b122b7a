package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/platform/apperr"
)

// -- Mock Repositories --

type mockBillRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Bill
	seq   int
}

func newMockBillRepo() *mockBillRepo {
	return &mockBillRepo{items: make(map[uuid.UUID]*Bill)}
}

func (m *mockBillRepo) Create(_ context.Context, b *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	b.ID = uuid.New()
	b.InvoiceNumber = "INV-2026-" + uuid.NewString()[:5]
	b.CreatedAt = time.Now()
	b.UpdatedAt = time.Now()
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *mockBillRepo) GetByID(_ context.Context, id uuid.UUID) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("bill", id)
	}
	cp := *b
	return &cp, nil
}

func (m *mockBillRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Bill
	for _, b := range m.items {
		if f.PatientID != nil && b.PatientID != *f.PatientID {
			continue
		}
		if f.InvoiceNumber != "" && b.InvoiceNumber != f.InvoiceNumber {
			continue
		}
		if f.Status != "" {
			cp := *b
			cp.Derive()
			if cp.PaymentStatus != f.Status {
				continue
			}
		}
		cp := *b
		result = append(result, &cp)
	}
	return result, len(result), nil
}

// ApplyPayment mirrors the conditional UPDATE: check and mutation under one
// lock so the balance cap cannot be raced past.
func (m *mockBillRepo) ApplyPayment(_ context.Context, id uuid.UUID, amount float64, method string, allowOverpayment bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return false, nil
	}
	if !allowOverpayment && b.AmountPaid+amount > b.TotalAmount+moneyEpsilon {
		return false, nil
	}
	b.AmountPaid = round2(b.AmountPaid + amount)
	b.PaymentMethod = method
	if b.AmountPaid >= b.TotalAmount-moneyEpsilon && b.PaymentDate == nil {
		now := time.Now()
		b.PaymentDate = &now
	}
	return true, nil
}

func (m *mockBillRepo) RevenueSummary(_ context.Context, from, to time.Time) (*RevenueSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s RevenueSummary
	for _, b := range m.items {
		if b.CreatedAt.Before(from) || !b.CreatedAt.Before(to) {
			continue
		}
		s.TotalBills++
		s.TotalBilled += b.TotalAmount
		collected := b.AmountPaid
		if collected > b.TotalAmount {
			collected = b.TotalAmount
		}
		s.TotalCollected += collected
		s.TotalOutstanding += b.TotalAmount - collected
		cp := *b
		cp.Derive()
		switch cp.PaymentStatus {
		case PayStatusPaid:
			s.PaidBills++
		case PayStatusPartial:
			s.PartialBills++
		default:
			s.UnpaidBills++
		}
	}
	s.TotalBilled = round2(s.TotalBilled)
	s.TotalCollected = round2(s.TotalCollected)
	s.TotalOutstanding = round2(s.TotalOutstanding)
	return &s, nil
}

type mockPaymentRepo struct {
	mu   sync.Mutex
	rows []*Payment
	keys map[string]bool
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{keys: make(map[string]bool)}
}

func (m *mockPaymentRepo) Record(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.IdempotencyKey != nil {
		if m.keys[*p.IdempotencyKey] {
			return apperr.Conflictf("payment already recorded")
		}
		m.keys[*p.IdempotencyKey] = true
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.rows = append(m.rows, p)
	return nil
}

func (m *mockPaymentRepo) ListByBill(_ context.Context, billID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Payment
	for _, p := range m.rows {
		if p.BillID == billID {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(allowOverpayment bool) (*Service, *mockBillRepo, *mockPaymentRepo) {
	bills := newMockBillRepo()
	payments := newMockPaymentRepo()
	svc := NewService(bills, payments, passthroughTx{}, allowOverpayment)
	return svc, bills, payments
}

func seedBill(t *testing.T, svc *Service) *Bill {
	t.Helper()
	b := &Bill{
		PatientID: uuid.New(),
		Charges: Charges{
			ConsultationFee: 50,
			LabTests:        []LabTest{{TestName: "CBC", Cost: 30}},
			Medicines:       []MedicineLine{{Name: "Amoxicillin", Quantity: 10, UnitPrice: 2}},
			RoomCharges:     &RoomCharges{Days: 2, RatePerDay: 50},
		},
		Tax:      16,
		Discount: 20,
	}
	if err := svc.GenerateBill(context.Background(), b); err != nil {
		t.Fatalf("generate bill: %v", err)
	}
	return b
}

// -- Generation --

func TestGenerateBill_ComputesTotals(t *testing.T) {
	svc, _, _ := newTestService(true)
	b := seedBill(t, svc)

	// 50 consultation + 30 lab + 20 medicines + 100 room = 200.
	if b.Subtotal != 200 {
		t.Errorf("subtotal = %v, want 200", b.Subtotal)
	}
	if b.TotalAmount != 196 {
		t.Errorf("total = %v, want 196", b.TotalAmount)
	}
	if b.Charges.Medicines[0].Total != 20 {
		t.Errorf("medicine line total = %v, want 20", b.Charges.Medicines[0].Total)
	}
	if b.Charges.RoomCharges.Total != 100 {
		t.Errorf("room total = %v, want 100", b.Charges.RoomCharges.Total)
	}
	if b.PaymentStatus != PayStatusUnpaid || b.AmountDue != 196 {
		t.Errorf("status %q due %v, want Unpaid 196", b.PaymentStatus, b.AmountDue)
	}
	if b.InvoiceNumber == "" {
		t.Error("invoice number not assigned")
	}
}

func TestGenerateBill_IgnoresClientTotals(t *testing.T) {
	svc, _, _ := newTestService(true)
	b := &Bill{
		PatientID:   uuid.New(),
		Charges:     Charges{ConsultationFee: 100},
		Subtotal:    1,
		TotalAmount: 1,
		AmountPaid:  500,
	}
	if err := svc.GenerateBill(context.Background(), b); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if b.Subtotal != 100 || b.TotalAmount != 100 || b.AmountPaid != 0 {
		t.Errorf("got subtotal %v total %v paid %v, want 100 100 0", b.Subtotal, b.TotalAmount, b.AmountPaid)
	}
}

func TestGenerateBill_Validation(t *testing.T) {
	svc, _, _ := newTestService(true)
	pid := uuid.New()
	cases := []struct {
		name string
		b    Bill
	}{
		{"missing patient", Bill{Charges: Charges{ConsultationFee: 10}}},
		{"negative consultation fee", Bill{PatientID: pid, Charges: Charges{ConsultationFee: -1}}},
		{"negative lab cost", Bill{PatientID: pid, Charges: Charges{LabTests: []LabTest{{TestName: "X", Cost: -5}}}}},
		{"zero medicine quantity", Bill{PatientID: pid, Charges: Charges{Medicines: []MedicineLine{{Name: "A", Quantity: 0, UnitPrice: 1}}}}},
		{"negative unit price", Bill{PatientID: pid, Charges: Charges{Medicines: []MedicineLine{{Name: "A", Quantity: 1, UnitPrice: -1}}}}},
		{"negative tax", Bill{PatientID: pid, Charges: Charges{ConsultationFee: 10}, Tax: -1}},
		{"negative discount", Bill{PatientID: pid, Charges: Charges{ConsultationFee: 10}, Discount: -1}},
		{"discount exceeds subtotal plus tax", Bill{PatientID: pid, Charges: Charges{ConsultationFee: 10}, Tax: 1, Discount: 12}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.GenerateBill(context.Background(), &tc.b)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

// -- Payments --

func TestRecordPayment_PartialThenPaid(t *testing.T) {
	svc, _, _ := newTestService(true)
	b := seedBill(t, svc)

	got, err := svc.RecordPayment(context.Background(), b.ID, 100, "Cash", "", "", "cashier")
	if err != nil {
		t.Fatalf("pay 100: %v", err)
	}
	if got.PaymentStatus != PayStatusPartial || got.AmountDue != 96 {
		t.Errorf("after 100: status %q due %v, want Partial 96", got.PaymentStatus, got.AmountDue)
	}
	if got.PaymentDate != nil {
		t.Error("payment date stamped before fully paid")
	}

	got, err = svc.RecordPayment(context.Background(), b.ID, 96, "UPI", "", "", "cashier")
	if err != nil {
		t.Fatalf("pay 96: %v", err)
	}
	if got.PaymentStatus != PayStatusPaid || got.AmountDue != 0 {
		t.Errorf("after 96: status %q due %v, want Paid 0", got.PaymentStatus, got.AmountDue)
	}
	if got.PaymentDate == nil {
		t.Error("payment date not stamped on transition to Paid")
	}
	if got.PaymentMethod != "UPI" {
		t.Errorf("payment method = %q, want UPI", got.PaymentMethod)
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	svc, _, _ := newTestService(true)
	b := seedBill(t, svc)

	if _, err := svc.RecordPayment(context.Background(), b.ID, 0, "Cash", "", "", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("zero amount: expected validation error, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), b.ID, 10, "Barter", "", "", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("bad method: expected validation error, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), uuid.New(), 10, "Cash", "", "", ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown bill: expected not found, got %v", err)
	}
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	svc, _, _ := newTestService(false)
	b := seedBill(t, svc)

	_, err := svc.RecordPayment(context.Background(), b.ID, 500, "Cash", "", "", "cashier")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := svc.GetBill(context.Background(), b.ID)
	if got.AmountPaid != 0 {
		t.Errorf("amount paid = %v, want 0 after rejected payment", got.AmountPaid)
	}
}

func TestRecordPayment_OverpaymentAllowed(t *testing.T) {
	svc, _, _ := newTestService(true)
	b := seedBill(t, svc)

	got, err := svc.RecordPayment(context.Background(), b.ID, 500, "Insurance", "", "", "cashier")
	if err != nil {
		t.Fatalf("pay 500: %v", err)
	}
	// The overpaid balance stays visible as a negative due, the credit owed
	// back to the patient.
	if got.PaymentStatus != PayStatusPaid || got.AmountDue != -304 {
		t.Errorf("status %q due %v, want Paid -304", got.PaymentStatus, got.AmountDue)
	}
	if got.AmountPaid != 500 {
		t.Errorf("amount paid = %v, want 500", got.AmountPaid)
	}
}

func TestRecordPayment_IdempotentReplay(t *testing.T) {
	svc, _, payments := newTestService(true)
	b := seedBill(t, svc)

	first, err := svc.RecordPayment(context.Background(), b.ID, 100, "Cash", "", "pay-1", "cashier")
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if first.AmountPaid != 100 {
		t.Errorf("amount paid = %v, want 100", first.AmountPaid)
	}

	replay, err := svc.RecordPayment(context.Background(), b.ID, 100, "Cash", "", "pay-1", "cashier")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.AmountPaid != 100 {
		t.Errorf("amount paid after replay = %v, want 100", replay.AmountPaid)
	}

	rows, _, _ := payments.ListByBill(context.Background(), b.ID, 20, 0)
	if len(rows) != 1 {
		t.Errorf("payment rows = %d, want 1", len(rows))
	}
}

func TestRecordPayment_ConcurrentExactBalance(t *testing.T) {
	svc, _, _ := newTestService(false)
	b := seedBill(t, svc) // total 196

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(context.Background(), b.ID, 196, "Cash", "", "", "cashier")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.Is(err, apperr.KindValidation):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || rejections != n-1 {
		t.Errorf("successes = %d, rejections = %d; want 1 and %d", successes, rejections, n-1)
	}
	got, _ := svc.GetBill(context.Background(), b.ID)
	if got.AmountPaid != 196 || got.PaymentStatus != PayStatusPaid {
		t.Errorf("final paid %v status %q, want 196 Paid", got.AmountPaid, got.PaymentStatus)
	}
}

// -- Reporting --

func TestRevenueSummary(t *testing.T) {
	svc, _, _ := newTestService(true)
	paid := seedBill(t, svc)    // 196
	partial := seedBill(t, svc) // 196
	seedBill(t, svc)            // unpaid, 196

	if _, err := svc.RecordPayment(context.Background(), paid.ID, 196, "Cash", "", "", ""); err != nil {
		t.Fatalf("pay full: %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), partial.ID, 50, "Cash", "", "", ""); err != nil {
		t.Fatalf("pay partial: %v", err)
	}

	s, err := svc.RevenueSummary(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalBills != 3 || s.PaidBills != 1 || s.PartialBills != 1 || s.UnpaidBills != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.TotalBilled != 588 || s.TotalCollected != 246 || s.TotalOutstanding != 342 {
		t.Errorf("amounts = billed %v collected %v outstanding %v, want 588 246 342",
			s.TotalBilled, s.TotalCollected, s.TotalOutstanding)
	}
}

func TestRevenueSummary_BadRange(t *testing.T) {
	svc, _, _ := newTestService(true)
	from := time.Now()
	to := from.Add(-time.Hour)
	if _, err := svc.RevenueSummary(context.Background(), from, to); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
