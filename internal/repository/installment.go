package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dhronas-fees/internal/domain"

	"github.com/shopspring/decimal"
)

// DueInstallment is an installment joined with the owning student's contact data.
type DueInstallment struct {
	domain.Installment
	StudentName string `json:"studentName"`
	Phone       string `json:"phone"`
}

type InstallmentsFilter struct {
	StudentID *string
	Status    *domain.InstallmentStatus
	DueBefore *time.Time
}

type InstallmentRepository struct {
	db dbtx
}

func NewInstallmentRepository(db *sql.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

const installmentColumns = `i.id, i.student_id, i.installment_number, i.original_amount, i.amount, i.due_date, i.status, i.updated_at`

func scanInstallment(row rowScanner, extra ...any) (*domain.Installment, error) {
	var (
		in      domain.Installment
		status  string
		updated sql.NullTime
	)
	dest := []any{&in.ID, &in.StudentID, &in.Number, &in.OriginalAmount, &in.Amount, &in.DueDate, &status, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	in.Status = domain.InstallmentStatus(status)
	if updated.Valid {
		in.UpdatedAt = &updated.Time
	}
	return &in, nil
}

func (r *InstallmentRepository) create(ctx context.Context, in *domain.Installment) error {
	if in.Status == "" {
		in.Status = domain.InstallmentPending
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO installments (student_id, installment_number, original_amount, amount, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		in.StudentID, in.Number, in.OriginalAmount, in.Amount, in.DueDate, string(in.Status),
	).Scan(&in.ID)
}

// ListByStudent returns every installment of a student, earliest due first.
func (r *InstallmentRepository) ListByStudent(ctx context.Context, studentID string) ([]domain.Installment, error) {
	return r.list(ctx, `WHERE i.student_id = $1`, studentID)
}

// ListOutstanding returns the student's installments that are not fully paid.
func (r *InstallmentRepository) ListOutstanding(ctx context.Context, studentID string) ([]domain.Installment, error) {
	return r.list(ctx, `WHERE i.student_id = $1 AND i.status <> 'Paid'`, studentID)
}

func (r *InstallmentRepository) list(ctx context.Context, where string, args ...any) ([]domain.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments i ` + where + ` ORDER BY i.due_date, i.installment_number`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Installment
	for rows.Next() {
		in, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyAllocation stores the allocator's result for one installment. The
// write only lands if the stored amount is still previous, so a concurrent
// writer that slipped past the student lock surfaces as ErrStaleWrite.
func (r *InstallmentRepository) ApplyAllocation(ctx context.Context, in domain.Installment, previous decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE installments
		SET amount = $1, status = $2, updated_at = now()
		WHERE id = $3 AND amount = $4 AND status <> 'Paid'`,
		in.Amount, string(in.Status), in.ID, previous,
	)
	if err != nil {
		return fmt.Errorf("update installment %d: %w", in.ID, err)
	}
	return expectOneRow(res)
}

// ListDue returns installments joined with their student, earliest due first.
func (r *InstallmentRepository) ListDue(ctx context.Context, f InstallmentsFilter) ([]DueInstallment, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.StudentID != nil {
		where = append(where, fmt.Sprintf("i.student_id = $%d", i))
		args = append(args, *f.StudentID)
		i++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("i.status = $%d", i))
		args = append(args, string(*f.Status))
		i++
	}
	if f.DueBefore != nil {
		where = append(where, fmt.Sprintf("i.due_date <= $%d", i))
		args = append(args, *f.DueBefore)
		i++
	}

	query := `SELECT ` + installmentColumns + `, s.name, s.phone
		FROM installments i
		JOIN students s ON s.student_id = i.student_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY i.due_date, i.student_id, i.installment_number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueInstallment
	for rows.Next() {
		var d DueInstallment
		in, err := scanInstallment(rows, &d.StudentName, &d.Phone)
		if err != nil {
			return nil, err
		}
		d.Installment = *in
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *InstallmentRepository) CountByStatus(ctx context.Context, status domain.InstallmentStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM installments WHERE status = $1`, string(status)).Scan(&n)
	return n, err
}
