package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dhronas-fees/internal/domain"
)

type StudentsFilter struct {
	Role    *domain.Role
	BatchNo *string
	// WithDue keeps only students whose stored due amount is positive.
	WithDue bool
}

type CourseCount struct {
	Course string `json:"name"`
	Count  int    `json:"count"`
}

type StudentRepository struct {
	db *sql.DB
}

func NewStudentRepository(db *sql.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `student_id, name, address, email, password_hash, course, total_fees,
	initial_payment, fees_paid, due_amount, date_joined, phone, batch_no, role, has_installments,
	father_or_guardian_name, dob, reset_token_hash, reset_token_expiry, version`

var studentUniques = map[string]error{
	"students_email_key": domain.ErrEmailTaken,
	"students_phone_key": domain.ErrPhoneTaken,
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*domain.Student, error) {
	var (
		s           domain.Student
		role        string
		dob         sql.NullTime
		resetHash   sql.NullString
		resetExpiry sql.NullTime
	)
	if err := row.Scan(
		&s.StudentID,
		&s.Name,
		&s.Address,
		&s.Email,
		&s.PasswordHash,
		&s.Course,
		&s.TotalFees,
		&s.InitialPayment,
		&s.FeesPaid,
		&s.DueAmount,
		&s.DateJoined,
		&s.Phone,
		&s.BatchNo,
		&role,
		&s.HasInstallments,
		&s.FatherOrGuardianName,
		&dob,
		&resetHash,
		&resetExpiry,
		&s.Version,
	); err != nil {
		return nil, err
	}

	s.Role = domain.Role(role)
	if dob.Valid {
		s.DOB = &dob.Time
	}
	if resetHash.Valid {
		s.ResetTokenHash = &resetHash.String
	}
	if resetExpiry.Valid {
		s.ResetTokenExpiry = &resetExpiry.Time
	}
	return &s, nil
}

// CreateWithInstallments inserts the student and its schedule in one transaction.
// Installment ids are filled in on success.
func (r *StudentRepository) CreateWithInstallments(ctx context.Context, s *domain.Student, installments []domain.Installment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		s.StudentID,
		s.Name,
		s.Address,
		s.Email,
		s.PasswordHash,
		s.Course,
		s.TotalFees,
		s.InitialPayment,
		s.FeesPaid,
		s.DueAmount,
		s.DateJoined,
		s.Phone,
		s.BatchNo,
		string(s.Role),
		s.HasInstallments,
		s.FatherOrGuardianName,
		s.DOB,
		s.ResetTokenHash,
		s.ResetTokenExpiry,
		1,
	)
	if err != nil {
		return mapUnique(err, studentUniques)
	}
	s.Version = 1

	installmentRepo := &InstallmentRepository{db: tx}
	for i := range installments {
		installments[i].StudentID = s.StudentID
		if err := installmentRepo.create(ctx, &installments[i]); err != nil {
			return fmt.Errorf("create installment %d: %w", installments[i].Number, err)
		}
	}

	return tx.Commit()
}

func (r *StudentRepository) getBy(ctx context.Context, column string, value any) (*domain.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE ` + column + ` = $1`
	s, err := scanStudent(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, notFound(err, domain.ErrStudentNotFound)
	}
	return s, nil
}

func (r *StudentRepository) GetByID(ctx context.Context, studentID string) (*domain.Student, error) {
	return r.getBy(ctx, "student_id", studentID)
}

func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*domain.Student, error) {
	return r.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *StudentRepository) GetByPhone(ctx context.Context, phone string) (*domain.Student, error) {
	return r.getBy(ctx, "phone", strings.TrimSpace(phone))
}

func (r *StudentRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE reset_token_hash = $1 AND reset_token_expiry > $2`
	s, err := scanStudent(r.db.QueryRowContext(ctx, query, tokenHash, now))
	if err != nil {
		return nil, notFound(err, domain.ErrInvalidResetToken)
	}
	return s, nil
}

// UpdateBalances writes FeesPaid and DueAmount if the row still has the
// version the caller read. On success s.Version is advanced.
func (r *StudentRepository) UpdateBalances(ctx context.Context, s *domain.Student) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET fees_paid = $1, due_amount = $2, version = version + 1
		WHERE student_id = $3 AND version = $4`,
		s.FeesPaid, s.DueAmount, s.StudentID, s.Version,
	)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *StudentRepository) SetResetToken(ctx context.Context, studentID string, tokenHash string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET reset_token_hash = $1, reset_token_expiry = $2 WHERE student_id = $3`,
		tokenHash, expiry, studentID,
	)
	if err != nil {
		return err
	}
	return expectOneRowOr(res, domain.ErrStudentNotFound)
}

// UpdatePassword stores a new hash and clears any pending reset token.
func (r *StudentRepository) UpdatePassword(ctx context.Context, studentID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET password_hash = $1, reset_token_hash = NULL, reset_token_expiry = NULL
		WHERE student_id = $2`,
		passwordHash, studentID,
	)
	if err != nil {
		return err
	}
	return expectOneRowOr(res, domain.ErrStudentNotFound)
}

func (r *StudentRepository) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE role = 'admin')`).Scan(&exists)
	return exists, err
}

func (r *StudentRepository) List(ctx context.Context, f StudentsFilter) ([]domain.Student, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.Role != nil {
		where = append(where, fmt.Sprintf("role = $%d", i))
		args = append(args, string(*f.Role))
		i++
	}
	if f.BatchNo != nil && *f.BatchNo != "" {
		where = append(where, fmt.Sprintf("batch_no = $%d", i))
		args = append(args, *f.BatchNo)
		i++
	}
	if f.WithDue {
		where = append(where, "due_amount > 0")
	}

	query := `SELECT ` + studentColumns + ` FROM students WHERE ` + strings.Join(where, " AND ") + ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StudentRepository) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE role = $1`, string(role)).Scan(&n)
	return n, err
}

func (r *StudentRepository) CourseCounts(ctx context.Context) ([]CourseCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT course, COUNT(*) FROM students
		WHERE role = 'student'
		GROUP BY course
		ORDER BY course`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CourseCount
	for rows.Next() {
		var c CourseCount
		if err := rows.Scan(&c.Course, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func expectOneRowOr(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
