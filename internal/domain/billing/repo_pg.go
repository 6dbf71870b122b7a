package billing

import (
	"context"
	"encoding/json"
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

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

const billCols = `id, invoice_number, patient_id, allocation_id, charges, subtotal, tax,
	discount, total_amount, amount_paid, payment_method, payment_date, generated_by,
	notes, created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	var charges []byte
	err := row.Scan(&b.ID, &b.InvoiceNumber, &b.PatientID, &b.AllocationID, &charges, &b.Subtotal, &b.Tax,
		&b.Discount, &b.TotalAmount, &b.AmountPaid, &b.PaymentMethod, &b.PaymentDate, &b.GeneratedBy,
		&b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bill", b.ID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(charges, &b.Charges); err != nil {
		return nil, fmt.Errorf("decode bill charges: %w", err)
	}
	return &b, nil
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	var seq int64
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval('billing_invoice_seq')`).Scan(&seq); err != nil {
		return err
	}
	b.InvoiceNumber = fmt.Sprintf("INV-%s-%05d", time.Now().Format("2006"), seq)

	charges, err := json.Marshal(b.Charges)
	if err != nil {
		return fmt.Errorf("encode bill charges: %w", err)
	}
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO billing (id, invoice_number, patient_id, allocation_id, charges,
			subtotal, tax, discount, total_amount, amount_paid, generated_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11)`,
		b.ID, b.InvoiceNumber, b.PatientID, b.AllocationID, charges,
		b.Subtotal, b.Tax, b.Discount, b.TotalAmount, b.GeneratedBy, b.Notes)
	return err
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := scanBill(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+billCols+` FROM billing WHERE id = $1`, id))
	if err != nil && apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("bill", id)
	}
	return b, err
}

// statusPredicate translates a derived payment status into the storage
// predicate that selects exactly the rows deriving to it.
func statusPredicate(status string) string {
	switch status {
	case PayStatusPaid:
		return fmt.Sprintf(" AND amount_paid >= total_amount - %v", moneyEpsilon)
	case PayStatusPartial:
		return fmt.Sprintf(" AND amount_paid > %v AND amount_paid < total_amount - %v", moneyEpsilon, moneyEpsilon)
	case PayStatusUnpaid:
		return fmt.Sprintf(" AND amount_paid <= %v", moneyEpsilon)
	default:
		return ""
	}
}

func (r *billRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if f.InvoiceNumber != "" {
		args = append(args, f.InvoiceNumber)
		where += fmt.Sprintf(" AND invoice_number = $%d", len(args))
	}
	if f.Status != "" {
		where += statusPredicate(f.Status)
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM billing`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+billCols+` FROM billing`+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *billRepoPG) ApplyPayment(ctx context.Context, id uuid.UUID, amount float64, method string, allowOverpayment bool) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE billing SET
			amount_paid = amount_paid + $2,
			payment_method = $3,
			payment_date = CASE
				WHEN amount_paid + $2 >= total_amount - $5 AND payment_date IS NULL THEN NOW()
				ELSE payment_date
			END,
			updated_at = NOW()
		WHERE id = $1 AND ($4 OR amount_paid + $2 <= total_amount + $5)`,
		id, amount, method, allowOverpayment, moneyEpsilon)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *billRepoPG) RevenueSummary(ctx context.Context, from, to time.Time) (*RevenueSummary, error) {
	var s RevenueSummary
	err := db.Conn(ctx, r.pool).QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(LEAST(amount_paid, total_amount)), 0),
			COALESCE(SUM(GREATEST(total_amount - amount_paid, 0)), 0),
			COUNT(*) FILTER (WHERE amount_paid >= total_amount - %[1]v),
			COUNT(*) FILTER (WHERE amount_paid > %[1]v AND amount_paid < total_amount - %[1]v),
			COUNT(*) FILTER (WHERE amount_paid <= %[1]v)
		FROM billing WHERE created_at >= $1 AND created_at < $2`, moneyEpsilon),
		from, to).
		Scan(&s.TotalBills, &s.TotalBilled, &s.TotalCollected, &s.TotalOutstanding,
			&s.PaidBills, &s.PartialBills, &s.UnpaidBills)
	if err != nil {
		return nil, err
	}
	s.TotalBilled = round2(s.TotalBilled)
	s.TotalCollected = round2(s.TotalCollected)
	s.TotalOutstanding = round2(s.TotalOutstanding)
	return &s, nil
}

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) Record(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payment (id, bill_id, amount, method, reference, idempotency_key, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.BillID, p.Amount, p.Method, p.Reference, p.IdempotencyKey, p.ReceivedBy)
	return paymentInsertErr(err, p.BillID)
}

// paymentInsertErr maps constraint violations on the payment ledger: a
// duplicate idempotency key means the payment was already recorded, and a
// broken bill reference means the bill does not exist.
func paymentInsertErr(err error, billID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflictf("payment already recorded")
		case "23503":
			return apperr.NotFound("bill", billID)
		}
	}
	return err
}

func (r *paymentRepoPG) ListByBill(ctx context.Context, billID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM payment WHERE bill_id = $1`, billID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, bill_id, amount, method, reference, idempotency_key, received_by, created_at
		FROM payment WHERE bill_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, billID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.Method, &p.Reference, &p.IdempotencyKey, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}
