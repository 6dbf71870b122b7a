package stock

import (
	"time"

	"github.com/google/uuid"
)

// Medicine categories and dosage forms from the pharmacy formulary.
var validCategories = map[string]bool{
	"Antibiotic": true, "Painkiller": true, "Vitamin": true, "Antiviral": true,
	"Antiseptic": true, "Cardiac": true, "Diabetic": true, "Other": true,
}

var validDosageForms = map[string]bool{
	"Tablet": true, "Capsule": true, "Syrup": true, "Injection": true,
	"Cream": true, "Drops": true, "Inhaler": true,
}

// Derived availability statuses. Never stored; recomputed on every read so
// the reported status can never drift from the quantity and expiry date.
const (
	StatusAvailable  = "Available"
	StatusLowStock   = "Low Stock"
	StatusOutOfStock = "Out of Stock"
	StatusExpired    = "Expired"
)

// Medicine is one formulary entry with its authoritative stock count.
type Medicine struct {
	ID                   uuid.UUID `json:"id"`
	MedicineID           string    `json:"medicine_id"`
	Name                 string    `json:"name"`
	GenericName          string    `json:"generic_name,omitempty"`
	Manufacturer         string    `json:"manufacturer"`
	Category             string    `json:"category"`
	DosageForm           string    `json:"dosage_form"`
	Strength             string    `json:"strength"`
	UnitPrice            float64   `json:"unit_price"`
	StockQuantity        int       `json:"stock_quantity"`
	ReorderLevel         int       `json:"reorder_level"`
	ExpiryDate           time.Time `json:"expiry_date"`
	BatchNumber          string    `json:"batch_number,omitempty"`
	RackNumber           string    `json:"rack_number,omitempty"`
	PrescriptionRequired bool      `json:"prescription_required"`
	// Status is derived; it is filled in before a medicine leaves the
	// service layer and never written to storage.
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveStatus computes the availability status at the given instant.
// Expiry wins regardless of quantity.
func (m *Medicine) DeriveStatus(now time.Time) string {
	switch {
	case m.ExpiryDate.Before(now):
		return StatusExpired
	case m.StockQuantity == 0:
		return StatusOutOfStock
	case m.StockQuantity <= m.ReorderLevel:
		return StatusLowStock
	default:
		return StatusAvailable
	}
}

// Movement is one entry in the append-only stock audit trail. Rows with an
// idempotency key double as the dedupe ledger for retried adjustments.
type Movement struct {
	ID             uuid.UUID `json:"id"`
	MedicineID     uuid.UUID `json:"medicine_id"`
	Delta          int       `json:"delta"`
	Reason         string    `json:"reason"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
