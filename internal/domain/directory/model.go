package directory

import (
	"time"

	"github.com/google/uuid"
)

var validGenders = map[string]bool{"Male": true, "Female": true, "Other": true}

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// Patient is a registration record. Clinical state lives with the domain
// that owns it; the directory only answers who someone is.
type Patient struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        string     `json:"patient_id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	BloodGroup       string     `json:"blood_group,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Email            string     `json:"email,omitempty"`
	Address          string     `json:"address,omitempty"`
	EmergencyContact string     `json:"emergency_contact,omitempty"`
	Allergies        []string   `json:"allergies,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Clinician struct {
	ID             uuid.UUID `json:"id"`
	EmployeeID     string    `json:"employee_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Role           string    `json:"role"`
	Specialization string    `json:"specialization,omitempty"`
	Department     string    `json:"department,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var validClinicianRoles = map[string]bool{
	"doctor": true, "nurse": true, "pharmacist": true, "billing": true, "admin": true,
}
