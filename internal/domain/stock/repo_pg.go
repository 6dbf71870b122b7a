package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/db"
)

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

const medCols = `id, medicine_id, name, generic_name, manufacturer, category, dosage_form,
	strength, unit_price, stock_quantity, reorder_level, expiry_date, batch_number,
	rack_number, prescription_required, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.MedicineID, &m.Name, &m.GenericName, &m.Manufacturer, &m.Category, &m.DosageForm,
		&m.Strength, &m.UnitPrice, &m.StockQuantity, &m.ReorderLevel, &m.ExpiryDate, &m.BatchNumber,
		&m.RackNumber, &m.PrescriptionRequired, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("medicine", m.ID)
	}
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medicine (id, medicine_id, name, generic_name, manufacturer, category,
			dosage_form, strength, unit_price, stock_quantity, reorder_level, expiry_date,
			batch_number, rack_number, prescription_required)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.MedicineID, m.Name, m.GenericName, m.Manufacturer, m.Category,
		m.DosageForm, m.Strength, m.UnitPrice, m.StockQuantity, m.ReorderLevel, m.ExpiryDate,
		m.BatchNumber, m.RackNumber, m.PrescriptionRequired)
	return err
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := scanMedicine(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+medCols+` FROM medicine WHERE id = $1`, id))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("medicine", id)
	}
	return m, err
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE medicine SET name=$2, generic_name=$3, manufacturer=$4, category=$5,
			dosage_form=$6, strength=$7, unit_price=$8, reorder_level=$9, expiry_date=$10,
			batch_number=$11, rack_number=$12, prescription_required=$13, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.GenericName, m.Manufacturer, m.Category,
		m.DosageForm, m.Strength, m.UnitPrice, m.ReorderLevel, m.ExpiryDate,
		m.BatchNumber, m.RackNumber, m.PrescriptionRequired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine", m.ID)
	}
	return nil
}

func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM medicine WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine", id)
	}
	return nil
}

// statusPredicate translates a derived status into the storage predicate
// that selects exactly the rows deriving to it at the given instant.
func statusPredicate(status string, args *[]interface{}, now time.Time) string {
	*args = append(*args, now)
	n := len(*args)
	switch status {
	case StatusExpired:
		return fmt.Sprintf(" AND expiry_date < $%d", n)
	case StatusOutOfStock:
		return fmt.Sprintf(" AND expiry_date >= $%d AND stock_quantity = 0", n)
	case StatusLowStock:
		return fmt.Sprintf(" AND expiry_date >= $%d AND stock_quantity > 0 AND stock_quantity <= reorder_level", n)
	case StatusAvailable:
		return fmt.Sprintf(" AND expiry_date >= $%d AND stock_quantity > reorder_level", n)
	default:
		*args = (*args)[:n-1]
		return ""
	}
}

func (r *medicineRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Medicine, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if f.Category != "" {
		args = append(args, f.Category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (name ILIKE $%d OR generic_name ILIKE $%d OR medicine_id ILIKE $%d)", n, n, n)
	}
	if f.Status != "" {
		where += statusPredicate(f.Status, &args, f.Now)
	}
	return r.query(ctx, where, `ORDER BY name`, args, limit, offset)
}

func (r *medicineRepoPG) ListLowStock(ctx context.Context, now time.Time, limit, offset int) ([]*Medicine, int, error) {
	where := ` WHERE expiry_date >= $1 AND stock_quantity <= reorder_level`
	return r.query(ctx, where, `ORDER BY stock_quantity`, []interface{}{now}, limit, offset)
}

func (r *medicineRepoPG) ListExpired(ctx context.Context, now time.Time, limit, offset int) ([]*Medicine, int, error) {
	where := ` WHERE expiry_date < $1`
	return r.query(ctx, where, `ORDER BY expiry_date`, []interface{}{now}, limit, offset)
}

func (r *medicineRepoPG) query(ctx context.Context, where, order string, args []interface{}, limit, offset int) ([]*Medicine, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM medicine`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+medCols+` FROM medicine`+where+
			fmt.Sprintf(` %s LIMIT $%d OFFSET $%d`, order, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) ApplyDelta(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE medicine SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0`, id, delta)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type movementRepoPG struct{ pool *pgxpool.Pool }

func NewMovementRepoPG(pool *pgxpool.Pool) MovementRepository { return &movementRepoPG{pool: pool} }

func (r *movementRepoPG) Record(ctx context.Context, mv *Movement) error {
	mv.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO stock_movement (id, medicine_id, delta, reason, idempotency_key, actor)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		mv.ID, mv.MedicineID, mv.Delta, mv.Reason, mv.IdempotencyKey, mv.Actor)
	return movementInsertErr(err, mv.MedicineID)
}

// movementInsertErr maps constraint violations on the movement journal: a
// duplicate idempotency key means the adjustment was already applied, and a
// broken medicine reference means the medicine does not exist.
func movementInsertErr(err error, medicineID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflictf("stock adjustment already applied")
		case "23503":
			return apperr.NotFound("medicine", medicineID)
		}
	}
	return err
}

func (r *movementRepoPG) ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_movement WHERE medicine_id = $1`, medicineID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, medicine_id, delta, reason, idempotency_key, actor, created_at
		FROM stock_movement WHERE medicine_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, medicineID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Movement
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.MedicineID, &mv.Delta, &mv.Reason, &mv.IdempotencyKey, &mv.Actor, &mv.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &mv)
	}
	return items, total, rows.Err()
}
