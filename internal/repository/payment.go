package repository

import (
	"context"
	"encoding/json"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dhronas-fees/internal/domain"

	"github.com/shopspring/decimal"
)

type PaymentsFilter struct {
	StudentID *string
	BatchNo   *string
	From      *time.Time // inclusive
	To        *time.Time // exclusive
}

// PaymentRecord is a payment with the payer's name and enrollment data.
type PaymentRecord struct {
	domain.Payment
	StudentName string `json:"studentName"`
	Course      string `json:"course"`
	BatchNo     string `json:"batchNo"`
}

// MarshalJSON keeps the payment's own shape and adds the student fields,
// which the promoted domain.Payment marshaller would otherwise drop.
func (r PaymentRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(r.Payment)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for key, value := range map[string]string{
		"studentName": r.StudentName,
		"course":      r.Course,
		"batchNo":     r.BatchNo,
	} {
		raw, _ := json.Marshal(value)
		fields[key] = raw
	}
	return json.Marshal(fields)
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `p.id, p.payment_id, p.transaction_id, p.student_id, p.paid_amount, p.payment_date,
	p.description, p.gst_rate, p.total_gst_amount, p.cgst, p.sgst`

var paymentUniques = map[string]error{
	"payments_payment_id_key":     domain.ErrDuplicatePaymentID,
	"payments_transaction_id_key": domain.ErrDuplicateTransaction,
}

func scanPayment(row rowScanner, extra ...any) (*domain.Payment, error) {
	var p domain.Payment
	var rate, total, cgst, sgst decimal.NullDecimal
	dest := []any{&p.ID, &p.PaymentID, &p.TransactionID, &p.StudentID, &p.PaidAmount, &p.PaymentDate,
		&p.Description, &rate, &total, &cgst, &sgst}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if total.Valid {
		p.GST = &domain.Tax{
			Rate:           rate.Decimal,
			TotalGSTAmount: total.Decimal,
			CGST:           cgst.Decimal,
			SGST:           sgst.Decimal,
		}
	}
	return &p, nil
}

// Create inserts a payment. A payment id collision is reported as
// domain.ErrDuplicatePaymentID so the caller can draw a new id.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	var rate, total, cgst, sgst any
	if p.GST != nil {
		rate, total, cgst, sgst = p.GST.Rate, p.GST.TotalGSTAmount, p.GST.CGST, p.GST.SGST
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, payment_id, transaction_id, student_id, paid_amount, payment_date,
			description, gst_rate, total_gst_amount, cgst, sgst)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.PaymentID, p.TransactionID, p.StudentID, p.PaidAmount, p.PaymentDate,
		p.Description, rate, total, cgst, sgst,
	)
	return mapUnique(err, paymentUniques)
}

func (r *PaymentRepository) getOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments p WHERE ` + where
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.getOne(ctx, `p.id::text = $1`, id)
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return r.getOne(ctx, `p.transaction_id = $1`, transactionID)
}

// Latest returns the student's most recent payment.
func (r *PaymentRepository) Latest(ctx context.Context, studentID string) (*domain.Payment, error) {
	return r.getOne(ctx, `p.student_id = $1 ORDER BY p.payment_date DESC LIMIT 1`, studentID)
}

// ListByStudent returns the student's payments, newest first.
func (r *PaymentRepository) ListByStudent(ctx context.Context, studentID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.student_id = $1 ORDER BY p.payment_date DESC`,
		studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f PaymentsFilter) where(next int) ([]string, []any) {
	where := []string{"1=1"}
	args := []any{}

	if f.StudentID != nil && *f.StudentID != "" {
		where = append(where, fmt.Sprintf("p.student_id = $%d", next))
		args = append(args, *f.StudentID)
		next++
	}
	if f.BatchNo != nil && *f.BatchNo != "" {
		where = append(where, fmt.Sprintf("s.batch_no = $%d", next))
		args = append(args, *f.BatchNo)
		next++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("p.payment_date >= $%d", next))
		args = append(args, *f.From)
		next++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("p.payment_date < $%d", next))
		args = append(args, *f.To)
		next++
	}
	return where, args
}

// List returns payments with student data, oldest first.
func (r *PaymentRepository) List(ctx context.Context, f PaymentsFilter) ([]PaymentRecord, error) {
	where, args := f.where(1)
	query := `SELECT ` + paymentColumns + `, COALESCE(s.name, ''), COALESCE(s.course, ''), COALESCE(s.batch_no, '')
		FROM payments p
		LEFT JOIN students s ON s.student_id = p.student_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY p.payment_date, p.payment_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		p, err := scanPayment(rows, &rec.StudentName, &rec.Course, &rec.BatchNo)
		if err != nil {
			return nil, err
		}
		rec.Payment = *p
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sum totals paid amounts matching the filter.
func (r *PaymentRepository) Sum(ctx context.Context, f PaymentsFilter) (decimal.Decimal, error) {
	where, args := f.where(1)
	query := `SELECT COALESCE(SUM(p.paid_amount), 0)
		FROM payments p
		LEFT JOIN students s ON s.student_id = p.student_id
		WHERE ` + strings.Join(where, " AND ")

	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *PaymentRepository) HasMoreThan(ctx context.Context, limit int64, f PaymentsFilter) (bool, error) {
	where, args := f.where(2)
	query := `SELECT COUNT(*) > $1
		FROM payments p
		LEFT JOIN students s ON s.student_id = p.student_id
		WHERE ` + strings.Join(where, " AND ")

	var tooMany bool
	if err := r.db.QueryRowContext(ctx, query, append([]any{limit}, args...)...).Scan(&tooMany); err != nil {
		return false, err
	}
	return tooMany, nil
}
