package pharmacy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careledger/careledger/internal/domain/stock"
	"github.com/careledger/careledger/internal/platform/apperr"
)

// -- Mock Repositories --

type mockPrescriptionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Prescription
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{items: make(map[uuid.UUID]*Prescription)}
}

func copyPrescription(p *Prescription) *Prescription {
	cp := *p
	cp.Items = append([]Item(nil), p.Items...)
	return &cp
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	for i := range p.Items {
		p.Items[i].ID = uuid.New()
		p.Items[i].PrescriptionID = p.ID
	}
	m.items[p.ID] = copyPrescription(p)
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription", id)
	}
	return copyPrescription(p), nil
}

func (m *mockPrescriptionRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Prescription
	for _, p := range m.items {
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && p.DoctorID != *f.DoctorID {
			continue
		}
		if f.Pending {
			if p.CancelledAt != nil {
				continue
			}
			unissued := false
			for _, it := range p.Items {
				if !it.Issued {
					unissued = true
					break
				}
			}
			if !unissued {
				continue
			}
		}
		result = append(result, copyPrescription(p))
	}
	return result, len(result), nil
}

func (m *mockPrescriptionRepo) Cancel(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || p.CancelledAt != nil {
		return false, nil
	}
	p.CancelledAt = &at
	return true, nil
}

func (m *mockPrescriptionRepo) GetItem(_ context.Context, itemID uuid.UUID) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		for _, it := range p.Items {
			if it.ID == itemID {
				cp := it
				return &cp, nil
			}
		}
	}
	return nil, apperr.NotFound("prescription item", itemID)
}

func (m *mockPrescriptionRepo) ClaimIssued(_ context.Context, itemID uuid.UUID, at time.Time, by string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		for i := range p.Items {
			if p.Items[i].ID == itemID {
				if p.Items[i].Issued {
					return false, nil
				}
				p.Items[i].Issued = true
				p.Items[i].IssuedAt = &at
				p.Items[i].IssuedBy = by
				return true, nil
			}
		}
	}
	return false, nil
}

// snapshot captures the issued flags so a failed transaction can restore them.
func (m *mockPrescriptionRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uuid.UUID]*Prescription, len(m.items))
	for id, p := range m.items {
		saved[id] = copyPrescription(p)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items = saved
	}
}

type mockDispensary struct {
	mu   sync.Mutex
	meds map[uuid.UUID]*stock.Medicine
	keys map[string]bool
}

func newMockDispensary() *mockDispensary {
	return &mockDispensary{meds: make(map[uuid.UUID]*stock.Medicine), keys: make(map[string]bool)}
}

func (m *mockDispensary) add(med *stock.Medicine) *stock.Medicine {
	m.mu.Lock()
	defer m.mu.Unlock()
	med.ID = uuid.New()
	m.meds[med.ID] = med
	return med
}

func (m *mockDispensary) GetMedicine(_ context.Context, id uuid.UUID) (*stock.Medicine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[id]
	if !ok {
		return nil, apperr.NotFound("medicine", id)
	}
	cp := *med
	cp.Status = cp.DeriveStatus(time.Now())
	return &cp, nil
}

func (m *mockDispensary) AdjustStock(_ context.Context, medicineID uuid.UUID, delta int, reason, idempotencyKey, actor string) (*stock.Medicine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[medicineID]
	if !ok {
		return nil, apperr.NotFound("medicine", medicineID)
	}
	if idempotencyKey != "" && m.keys[idempotencyKey] {
		cp := *med
		return &cp, nil
	}
	if med.StockQuantity+delta < 0 {
		return nil, apperr.InsufficientStock(med.Name, med.StockQuantity, -delta)
	}
	if idempotencyKey != "" {
		m.keys[idempotencyKey] = true
	}
	med.StockQuantity += delta
	cp := *med
	return &cp, nil
}

func (m *mockDispensary) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	quantities := make(map[uuid.UUID]int, len(m.meds))
	for id, med := range m.meds {
		quantities[id] = med.StockQuantity
	}
	keys := make(map[string]bool, len(m.keys))
	for k, v := range m.keys {
		keys[k] = v
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for id, q := range quantities {
			if med, ok := m.meds[id]; ok {
				med.StockQuantity = q
			}
		}
		m.keys = keys
	}
}

// snapshotTx restores the mock state when the transaction function fails,
// mirroring a database rollback.
type snapshotTx struct {
	repo *mockPrescriptionRepo
	disp *mockDispensary
}

func (s snapshotTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	undoRepo := s.repo.snapshot()
	undoDisp := s.disp.snapshot()
	if err := fn(ctx); err != nil {
		undoRepo()
		undoDisp()
		return err
	}
	return nil
}

func newTestService() (*Service, *mockPrescriptionRepo, *mockDispensary) {
	repo := newMockPrescriptionRepo()
	disp := newMockDispensary()
	svc := NewService(repo, disp, snapshotTx{repo: repo, disp: disp})
	return svc, repo, disp
}

func seedMedicine(disp *mockDispensary, name string, qty int) *stock.Medicine {
	return disp.add(&stock.Medicine{
		MedicineID:    "MED-" + name,
		Name:          name,
		StockQuantity: qty,
		ReorderLevel:  5,
		ExpiryDate:    time.Now().Add(365 * 24 * time.Hour),
	})
}

func seedPrescription(t *testing.T, svc *Service, lines ...Item) *Prescription {
	t.Helper()
	p := &Prescription{
		PrescriptionID: "RX-001",
		PatientID:      uuid.New(),
		DoctorID:       uuid.New(),
		Diagnosis:      "bacterial infection",
		Items:          lines,
	}
	if err := svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	return p
}

// -- Creation --

func TestCreatePrescription_SnapshotsMedicineName(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Amoxicillin", 100)

	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})
	if p.Items[0].MedicineName != "Amoxicillin" {
		t.Errorf("medicine name = %q, want Amoxicillin", p.Items[0].MedicineName)
	}
	if p.Status != StatusPending {
		t.Errorf("status = %q, want Pending", p.Status)
	}
}

func TestCreatePrescription_Validation(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Amoxicillin", 100)
	pid, did := uuid.New(), uuid.New()

	cases := []struct {
		name string
		p    Prescription
		kind apperr.Kind
	}{
		{"missing prescription id", Prescription{PatientID: pid, DoctorID: did,
			Items: []Item{{MedicineID: med.ID, Dosage: "1x", Quantity: 1}}}, apperr.KindValidation},
		{"missing patient", Prescription{PrescriptionID: "RX-1", DoctorID: did,
			Items: []Item{{MedicineID: med.ID, Dosage: "1x", Quantity: 1}}}, apperr.KindValidation},
		{"no items", Prescription{PrescriptionID: "RX-1", PatientID: pid, DoctorID: did}, apperr.KindValidation},
		{"zero quantity", Prescription{PrescriptionID: "RX-1", PatientID: pid, DoctorID: did,
			Items: []Item{{MedicineID: med.ID, Dosage: "1x", Quantity: 0}}}, apperr.KindValidation},
		{"missing dosage", Prescription{PrescriptionID: "RX-1", PatientID: pid, DoctorID: did,
			Items: []Item{{MedicineID: med.ID, Quantity: 1}}}, apperr.KindValidation},
		{"unknown medicine", Prescription{PrescriptionID: "RX-1", PatientID: pid, DoctorID: did,
			Items: []Item{{MedicineID: uuid.New(), Dosage: "1x", Quantity: 1}}}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.CreatePrescription(context.Background(), &tc.p)
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("expected %s error, got %v", tc.kind, err)
			}
		})
	}
}

func TestCreatePrescription_ExpiredMedicine(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Old Syrup", 100)
	disp.mu.Lock()
	disp.meds[med.ID].ExpiryDate = time.Now().Add(-24 * time.Hour)
	disp.mu.Unlock()

	p := Prescription{
		PrescriptionID: "RX-1", PatientID: uuid.New(), DoctorID: uuid.New(),
		Items: []Item{{MedicineID: med.ID, Dosage: "1x", Quantity: 1}},
	}
	if err := svc.CreatePrescription(context.Background(), &p); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// -- Issuance --

func TestIssueItems_AllItems(t *testing.T) {
	svc, _, disp := newTestService()
	amox := seedMedicine(disp, "Amoxicillin", 100)
	ibu := seedMedicine(disp, "Ibuprofen", 50)
	p := seedPrescription(t, svc,
		Item{MedicineID: amox.ID, Dosage: "500mg", Quantity: 10},
		Item{MedicineID: ibu.ID, Dosage: "200mg", Quantity: 20},
	)

	results, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Status != ItemIssued {
			t.Errorf("item %s: status %q reason %q, want Issued", r.ItemID, r.Status, r.Reason)
		}
	}

	got, _ := svc.GetPrescription(context.Background(), p.ID)
	if got.Status != StatusIssued {
		t.Errorf("prescription status = %q, want Issued", got.Status)
	}
	for _, it := range got.Items {
		if it.IssuedAt == nil || it.IssuedBy != "pharmacist-1" {
			t.Errorf("item %s: issued_at %v issued_by %q, want stamped by pharmacist-1", it.ID, it.IssuedAt, it.IssuedBy)
		}
	}
	if m, _ := disp.GetMedicine(context.Background(), amox.ID); m.StockQuantity != 90 {
		t.Errorf("amoxicillin stock = %d, want 90", m.StockQuantity)
	}
	if m, _ := disp.GetMedicine(context.Background(), ibu.ID); m.StockQuantity != 30 {
		t.Errorf("ibuprofen stock = %d, want 30", m.StockQuantity)
	}
}

func TestIssueItems_ShortageFailsOnlyThatItem(t *testing.T) {
	svc, _, disp := newTestService()
	amox := seedMedicine(disp, "Amoxicillin", 100)
	ibu := seedMedicine(disp, "Ibuprofen", 3)
	p := seedPrescription(t, svc,
		Item{MedicineID: amox.ID, Dosage: "500mg", Quantity: 10},
		Item{MedicineID: ibu.ID, Dosage: "200mg", Quantity: 20},
	)

	results, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	byMed := map[uuid.UUID]IssueResult{}
	for _, r := range results {
		byMed[r.MedicineID] = r
	}
	if byMed[amox.ID].Status != ItemIssued {
		t.Errorf("amoxicillin item: %+v, want Issued", byMed[amox.ID])
	}
	if byMed[ibu.ID].Status != ItemFailed {
		t.Errorf("ibuprofen item: %+v, want Failed", byMed[ibu.ID])
	}

	got, _ := svc.GetPrescription(context.Background(), p.ID)
	if got.Status != StatusPartiallyIssued {
		t.Errorf("prescription status = %q, want Partially Issued", got.Status)
	}
	if m, _ := disp.GetMedicine(context.Background(), ibu.ID); m.StockQuantity != 3 {
		t.Errorf("ibuprofen stock = %d, want 3 after rolled back issue", m.StockQuantity)
	}
}

func TestIssueItems_RetryAfterShortage(t *testing.T) {
	svc, _, disp := newTestService()
	amox := seedMedicine(disp, "Amoxicillin", 100)
	ibu := seedMedicine(disp, "Ibuprofen", 3)
	p := seedPrescription(t, svc,
		Item{MedicineID: amox.ID, Dosage: "500mg", Quantity: 10},
		Item{MedicineID: ibu.ID, Dosage: "200mg", Quantity: 20},
	)

	if _, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Restock and retry the whole prescription.
	if _, err := disp.AdjustStock(context.Background(), ibu.ID, 100, "restock", "", "tester"); err != nil {
		t.Fatalf("restock: %v", err)
	}
	results, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	// Only the failed item is still outstanding, so the retry issues just it.
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Status != ItemIssued || results[0].MedicineID != ibu.ID {
		t.Errorf("retry result = %+v, want Issued ibuprofen", results[0])
	}
	if results[0].Remaining != 83 {
		t.Errorf("remaining = %d, want 83", results[0].Remaining)
	}

	got, _ := svc.GetPrescription(context.Background(), p.ID)
	if got.Status != StatusIssued {
		t.Errorf("prescription status = %q, want Issued", got.Status)
	}
	if m, _ := disp.GetMedicine(context.Background(), amox.ID); m.StockQuantity != 90 {
		t.Errorf("amoxicillin stock = %d, want 90 after single decrement", m.StockQuantity)
	}
}

func TestIssueItems_RerunSkipsIssued(t *testing.T) {
	svc, _, disp := newTestService()
	amox := seedMedicine(disp, "Amoxicillin", 100)
	p := seedPrescription(t, svc, Item{MedicineID: amox.ID, Dosage: "500mg", Quantity: 10})

	first, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	itemID := first[0].ItemID

	// Naming the issued item explicitly skips it instead of re-dispensing.
	results, err := svc.IssueItems(context.Background(), p.ID, []uuid.UUID{itemID}, "pharmacist-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if results[0].Status != ItemSkipped {
		t.Errorf("rerun result = %+v, want Skipped", results[0])
	}
	if m, _ := disp.GetMedicine(context.Background(), amox.ID); m.StockQuantity != 90 {
		t.Errorf("stock = %d, want 90 after skipped rerun", m.StockQuantity)
	}
}

func TestIssueItems_ExpiredMedicine(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Old Syrup", 100)
	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "5ml", Quantity: 1})

	disp.mu.Lock()
	disp.meds[med.ID].ExpiryDate = time.Now().Add(-24 * time.Hour)
	disp.mu.Unlock()

	results, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if results[0].Status != ItemFailed {
		t.Errorf("result = %+v, want Failed", results[0])
	}

	got, _ := svc.GetPrescription(context.Background(), p.ID)
	if got.Status != StatusPending {
		t.Errorf("prescription status = %q, want Pending after rolled back issue", got.Status)
	}
	if m, _ := disp.GetMedicine(context.Background(), med.ID); m.StockQuantity != 100 {
		t.Errorf("stock = %d, want 100", m.StockQuantity)
	}
}

func TestIssueItems_Cancelled(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Amoxicillin", 100)
	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})

	if _, err := svc.CancelPrescription(context.Background(), p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := svc.IssueItems(context.Background(), p.ID, nil, "pharmacist-1")
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestIssueItems_UnknownItem(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Amoxicillin", 100)
	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})

	_, err := svc.IssueItems(context.Background(), p.ID, []uuid.UUID{uuid.New()}, "pharmacist-1")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// -- Cancellation and listing --

func TestCancelPrescription_Twice(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Amoxicillin", 100)
	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})

	got, err := svc.CancelPrescription(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %q, want Cancelled", got.Status)
	}
	if _, err := svc.CancelPrescription(context.Background(), p.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state on second cancel, got %v", err)
	}
}

func TestListPending(t *testing.T) {
	svc, _, disp := newTestService()
	med := seedMedicine(disp, "Amoxicillin", 100)
	pending := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})
	issued := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 5})

	if _, err := svc.IssueItems(context.Background(), issued.ID, nil, "pharmacist-1"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	items, total, err := svc.ListPrescriptions(context.Background(), ListFilter{Pending: true}, 20, 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != pending.ID {
		t.Errorf("pending listing = %d items (total %d), want only %s", len(items), total, pending.ID)
	}
}
