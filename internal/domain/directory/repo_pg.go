package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, patient_id, first_name, last_name, date_of_birth, gender, blood_group,
	phone, email, address, emergency_contact, allergies, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.BloodGroup,
		&p.Phone, &p.Email, &p.Address, &p.EmergencyContact, &p.Allergies, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", p.ID)
	}
	return &p, err
}

func duplicateToConflict(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflictf("%s already registered", what)
	}
	return err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, patient_id, first_name, last_name, date_of_birth, gender,
			blood_group, phone, email, address, emergency_contact, allergies)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.BloodGroup, p.Phone, p.Email, p.Address, p.EmergencyContact, p.Allergies)
	return duplicateToConflict(err, "patient "+p.PatientID)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("patient", id)
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			blood_group=$6, phone=$7, email=$8, address=$9, emergency_contact=$10,
			allergies=$11, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.BloodGroup, p.Phone, p.Email, p.Address, p.EmergencyContact, p.Allergies)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", p.ID)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (first_name ILIKE $%d OR last_name ILIKE $%d OR patient_id ILIKE $%d)", n, n, n)
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patient`+where+
			fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

type clinicianRepoPG struct{ pool *pgxpool.Pool }

func NewClinicianRepoPG(pool *pgxpool.Pool) ClinicianRepository { return &clinicianRepoPG{pool: pool} }

const clinicianCols = `id, employee_id, first_name, last_name, role, specialization,
	department, phone, email, active, created_at, updated_at`

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	err := row.Scan(&c.ID, &c.EmployeeID, &c.FirstName, &c.LastName, &c.Role, &c.Specialization,
		&c.Department, &c.Phone, &c.Email, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("clinician", c.ID)
	}
	return &c, err
}

func (r *clinicianRepoPG) Create(ctx context.Context, c *Clinician) error {
	c.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO clinician (id, employee_id, first_name, last_name, role, specialization,
			department, phone, email, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.EmployeeID, c.FirstName, c.LastName, c.Role, c.Specialization,
		c.Department, c.Phone, c.Email, c.Active)
	return duplicateToConflict(err, "clinician "+c.EmployeeID)
}

func (r *clinicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	c, err := scanClinician(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+clinicianCols+` FROM clinician WHERE id = $1`, id))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("clinician", id)
	}
	return c, err
}

func (r *clinicianRepoPG) Update(ctx context.Context, c *Clinician) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE clinician SET first_name=$2, last_name=$3, role=$4, specialization=$5,
			department=$6, phone=$7, email=$8, active=$9, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.FirstName, c.LastName, c.Role, c.Specialization,
		c.Department, c.Phone, c.Email, c.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("clinician", c.ID)
	}
	return nil
}

func (r *clinicianRepoPG) List(ctx context.Context, role string, activeOnly bool, limit, offset int) ([]*Clinician, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if role != "" {
		args = append(args, role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if activeOnly {
		where += ` AND active`
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM clinician`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+clinicianCols+` FROM clinician`+where+
			fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Clinician
	for rows.Next() {
		c, err := scanClinician(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
