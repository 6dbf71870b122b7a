package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

// Derived prescription statuses. Cancellation is stored; the rest are
// recomputed from the item flags on every read.
const (
	StatusPending         = "Pending"
	StatusPartiallyIssued = "Partially Issued"
	StatusIssued          = "Issued"
	StatusCancelled       = "Cancelled"
)

// Per-item outcomes of an issuance run.
const (
	ItemIssued  = "Issued"
	ItemSkipped = "Skipped"
	ItemFailed  = "Failed"
)

type Prescription struct {
	ID             uuid.UUID  `json:"id"`
	PrescriptionID string     `json:"prescription_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	Diagnosis      string     `json:"diagnosis,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Items          []Item     `json:"items"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	// Status is derived before a prescription leaves the service layer and
	// never written to storage.
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveStatus computes the prescription status from the item flags.
func (p *Prescription) DeriveStatus() string {
	if p.CancelledAt != nil {
		return StatusCancelled
	}
	issued := 0
	for _, it := range p.Items {
		if it.Issued {
			issued++
		}
	}
	switch {
	case len(p.Items) > 0 && issued == len(p.Items):
		return StatusIssued
	case issued > 0:
		return StatusPartiallyIssued
	default:
		return StatusPending
	}
}

// Item is one prescribed medicine. MedicineName is a snapshot taken at
// prescription time so catalog renames never alter the record.
type Item struct {
	ID             uuid.UUID  `json:"id"`
	PrescriptionID uuid.UUID  `json:"prescription_id"`
	MedicineID     uuid.UUID  `json:"medicine_id"`
	MedicineName   string     `json:"medicine_name"`
	Dosage         string     `json:"dosage"`
	Frequency      string     `json:"frequency,omitempty"`
	Duration       string     `json:"duration,omitempty"`
	Quantity       int        `json:"quantity"`
	Instructions   string     `json:"instructions,omitempty"`
	Issued         bool       `json:"issued"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	IssuedBy       string     `json:"issued_by,omitempty"`
}

// IssueResult reports the outcome for one item of an issuance run.
type IssueResult struct {
	ItemID     uuid.UUID `json:"item_id"`
	MedicineID uuid.UUID `json:"medicine_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	// Remaining is the medicine's stock after a successful issue.
	Remaining int `json:"remaining,omitempty"`
}
