package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

const rxCols = `id, prescription_id, patient_id, doctor_id, diagnosis, notes, cancelled_at,
	created_at, updated_at`

const itemCols = `id, prescription_id, medicine_id, medicine_name, dosage, frequency,
	duration, quantity, instructions, issued, issued_at, issued_by`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PrescriptionID, &p.PatientID, &p.DoctorID, &p.Diagnosis, &p.Notes,
		&p.CancelledAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription", p.ID)
	}
	return &p, err
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName, &it.Dosage,
		&it.Frequency, &it.Duration, &it.Quantity, &it.Instructions, &it.Issued, &it.IssuedAt, &it.IssuedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription item", it.ID)
	}
	return &it, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	conn := db.Conn(ctx, r.pool)
	_, err := conn.Exec(ctx, `
		INSERT INTO prescription (id, prescription_id, patient_id, doctor_id, diagnosis, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.PrescriptionID, p.PatientID, p.DoctorID, p.Diagnosis, p.Notes)
	if err != nil {
		return err
	}
	for i := range p.Items {
		it := &p.Items[i]
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		_, err := conn.Exec(ctx, `
			INSERT INTO prescription_item (id, prescription_id, medicine_id, medicine_name,
				dosage, frequency, duration, quantity, instructions)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, it.PrescriptionID, it.MedicineID, it.MedicineName,
			it.Dosage, it.Frequency, it.Duration, it.Quantity, it.Instructions)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+rxCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("prescription", id)
		}
		return nil, err
	}
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, p *Prescription) error {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+itemCols+` FROM prescription_item WHERE prescription_id = $1 ORDER BY medicine_name`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return err
		}
		p.Items = append(p.Items, *it)
	}
	return rows.Err()
}

func (r *prescriptionRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Prescription, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}
	if f.Pending {
		where += ` AND cancelled_at IS NULL AND EXISTS (
			SELECT 1 FROM prescription_item i
			WHERE i.prescription_id = prescription.id AND NOT i.issued)`
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM prescription`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+rxCols+` FROM prescription`+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *prescriptionRepoPG) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE prescription SET cancelled_at = $2, updated_at = NOW()
		WHERE id = $1 AND cancelled_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *prescriptionRepoPG) GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	it, err := scanItem(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM prescription_item WHERE id = $1`, itemID))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("prescription item", itemID)
	}
	return it, err
}

func (r *prescriptionRepoPG) ClaimIssued(ctx context.Context, itemID uuid.UUID, at time.Time, by string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE prescription_item SET issued = TRUE, issued_at = $2, issued_by = $3
		WHERE id = $1 AND NOT issued`, itemID, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
