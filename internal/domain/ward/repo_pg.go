package ward

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

type wardRepoPG struct{ pool *pgxpool.Pool }

func NewWardRepoPG(pool *pgxpool.Pool) WardRepository { return &wardRepoPG{pool: pool} }

const wardCols = `id, ward_id, name, type, floor, total_beds, available_beds,
	daily_rate, facilities, nurse_in_charge, status, created_at, updated_at`

func scanWard(row pgx.Row) (*Ward, error) {
	var w Ward
	err := row.Scan(&w.ID, &w.WardID, &w.Name, &w.Type, &w.Floor, &w.TotalBeds, &w.AvailableBeds,
		&w.DailyRate, &w.Facilities, &w.NurseInCharge, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("ward", w.ID)
	}
	return &w, err
}

func (r *wardRepoPG) Create(ctx context.Context, w *Ward) error {
	w.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO ward (id, ward_id, name, type, floor, total_beds, available_beds,
			daily_rate, facilities, nurse_in_charge, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		w.ID, w.WardID, w.Name, w.Type, w.Floor, w.TotalBeds, w.AvailableBeds,
		w.DailyRate, w.Facilities, w.NurseInCharge, w.Status)
	return err
}

func (r *wardRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ward, error) {
	w, err := scanWard(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+wardCols+` FROM ward WHERE id = $1`, id))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("ward", id)
	}
	return w, err
}

func (r *wardRepoPG) Update(ctx context.Context, w *Ward) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE ward SET name=$2, type=$3, floor=$4, total_beds=$5, available_beds=$6,
			daily_rate=$7, facilities=$8, nurse_in_charge=$9, status=$10, updated_at=NOW()
		WHERE id = $1`,
		w.ID, w.Name, w.Type, w.Floor, w.TotalBeds, w.AvailableBeds,
		w.DailyRate, w.Facilities, w.NurseInCharge, w.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("ward", w.ID)
	}
	return nil
}

func (r *wardRepoPG) List(ctx context.Context, wardType, status string, limit, offset int) ([]*Ward, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if wardType != "" {
		args = append(args, wardType)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ward`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+wardCols+` FROM ward`+where+
			fmt.Sprintf(` ORDER BY floor, name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	return items, total, rows.Err()
}

func (r *wardRepoPG) ClaimBed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE ward SET available_beds = available_beds - 1, updated_at = NOW()
		WHERE id = $1 AND status = 'Active' AND available_beds > 0`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *wardRepoPG) ReleaseBed(ctx context.Context, id uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE ward SET available_beds = LEAST(available_beds + 1, total_beds), updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

type allocationRepoPG struct{ pool *pgxpool.Pool }

func NewAllocationRepoPG(pool *pgxpool.Pool) AllocationRepository {
	return &allocationRepoPG{pool: pool}
}

const allocCols = `id, patient_id, ward_id, bed_label, admission_date, discharge_date,
	admitted_by, reason, status, total_days, total_charges, created_at, updated_at`

func scanAllocation(row pgx.Row) (*Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.PatientID, &a.WardID, &a.BedLabel, &a.AdmissionDate, &a.DischargeDate,
		&a.AdmittedBy, &a.Reason, &a.Status, &a.TotalDays, &a.TotalCharges, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("allocation", a.ID)
	}
	return &a, err
}

func (r *allocationRepoPG) Create(ctx context.Context, a *Allocation) error {
	a.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bed_allocation (id, patient_id, ward_id, bed_label, admission_date,
			admitted_by, reason, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.WardID, a.BedLabel, a.AdmissionDate,
		a.AdmittedBy, a.Reason, a.Status)
	return err
}

func (r *allocationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Allocation, error) {
	a, err := scanAllocation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+allocCols+` FROM bed_allocation WHERE id = $1`, id))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("allocation", id)
	}
	return a, err
}

func (r *allocationRepoPG) CloseOut(ctx context.Context, id uuid.UUID, status string, dischargedAt time.Time, days int, charges float64) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bed_allocation
		SET status = $2, discharge_date = $3, total_days = $4, total_charges = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'Admitted'`,
		id, status, dischargedAt, days, charges)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *allocationRepoPG) List(ctx context.Context, wardID uuid.UUID, status string, limit, offset int) ([]*Allocation, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if wardID != uuid.Nil {
		args = append(args, wardID)
		where += fmt.Sprintf(" AND ward_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM bed_allocation`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+allocCols+` FROM bed_allocation`+where+
			fmt.Sprintf(` ORDER BY admission_date DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *allocationRepoPG) CreateExclusive(ctx context.Context, a *Allocation) (bool, error) {
	a.ID = uuid.New()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bed_allocation (id, patient_id, ward_id, bed_label, admission_date,
			admitted_by, reason, status)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM bed_allocation
			WHERE ward_id = $3 AND bed_label = $4 AND status = 'Admitted')`,
		a.ID, a.PatientID, a.WardID, a.BedLabel, a.AdmissionDate,
		a.AdmittedBy, a.Reason, a.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *allocationRepoPG) AddNote(ctx context.Context, n *Note) error {
	n.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO allocation_note (id, allocation_id, noted_at, note, recorded_by)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.AllocationID, n.NotedAt, n.Note, n.RecordedBy)
	return err
}

func (r *allocationRepoPG) GetNotes(ctx context.Context, allocationID uuid.UUID) ([]*Note, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, allocation_id, noted_at, note, recorded_by
		FROM allocation_note WHERE allocation_id = $1
		ORDER BY noted_at, id`, allocationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notes []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.AllocationID, &n.NotedAt, &n.Note, &n.RecordedBy); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}
