package ward

import (
	"time"

	"github.com/google/uuid"
)

// Ward types mirror the facility classifications used by admissions.
const (
	TypeGeneral     = "General"
	TypeICU         = "ICU"
	TypePrivate     = "Private"
	TypeSemiPrivate = "Semi-Private"
	TypeEmergency   = "Emergency"
	TypePediatric   = "Pediatric"
	TypeMaternity   = "Maternity"
)

// Ward statuses.
const (
	StatusActive           = "Active"
	StatusUnderMaintenance = "Under Maintenance"
	StatusClosed           = "Closed"
)

// Allocation statuses. Admitted is the only non-terminal state.
const (
	AllocAdmitted    = "Admitted"
	AllocDischarged  = "Discharged"
	AllocTransferred = "Transferred"
)

var validWardTypes = map[string]bool{
	TypeGeneral: true, TypeICU: true, TypePrivate: true, TypeSemiPrivate: true,
	TypeEmergency: true, TypePediatric: true, TypeMaternity: true,
}

var validWardStatuses = map[string]bool{
	StatusActive: true, StatusUnderMaintenance: true, StatusClosed: true,
}

// Ward is a physical unit with a fixed bed count and a per-day rate.
// AvailableBeds always equals TotalBeds minus the count of Admitted
// allocations; it is only ever moved by the conditional claim/release
// statements in the repository.
type Ward struct {
	ID            uuid.UUID `json:"id"`
	WardID        string    `json:"ward_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Floor         int       `json:"floor"`
	TotalBeds     int       `json:"total_beds"`
	AvailableBeds int       `json:"available_beds"`
	DailyRate     float64   `json:"daily_rate"`
	Facilities    []string  `json:"facilities"`
	NurseInCharge string    `json:"nurse_in_charge,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Allocation records one patient occupying one bed for a span of time.
// It is never deleted; discharge and transfer close it out.
type Allocation struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	WardID        uuid.UUID  `json:"ward_id"`
	BedLabel      string     `json:"bed_label"`
	AdmissionDate time.Time  `json:"admission_date"`
	DischargeDate *time.Time `json:"discharge_date,omitempty"`
	AdmittedBy    uuid.UUID  `json:"admitted_by"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status"`
	TotalDays     int        `json:"total_days"`
	TotalCharges  float64    `json:"total_charges"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Note is one dated entry in an allocation's append-only daily log.
type Note struct {
	ID           uuid.UUID `json:"id"`
	AllocationID uuid.UUID `json:"allocation_id"`
	NotedAt      time.Time `json:"noted_at"`
	Note         string    `json:"note"`
	RecordedBy   string    `json:"recorded_by"`
}

// Terminal reports whether the allocation can no longer change state.
func (a *Allocation) Terminal() bool {
	return a.Status == AllocDischarged || a.Status == AllocTransferred
}

// StayDays computes the billable day count for a stay ending at now:
// the ceiling of the elapsed time in days, with a minimum of one day so
// same-day discharges are still charged.
func StayDays(admission, now time.Time) int {
	elapsed := now.Sub(admission)
	if elapsed <= 0 {
		return 1
	}
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}
