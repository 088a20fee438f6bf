package repository

import (
	"context"
	"database/sql"
	"time"

	"dhronas-fees/internal/domain"
)

type EnrollmentRepository struct {
	db *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const pendingColumns = `token, name, address, email, password_hash, course, phone,
	father_or_guardian_name, dob, submitted, created_at, expires_at`

func scanPending(row rowScanner) (*domain.PendingStudent, error) {
	var p domain.PendingStudent
	var dob sql.NullTime
	if err := row.Scan(
		&p.Token,
		&p.Name,
		&p.Address,
		&p.Email,
		&p.PasswordHash,
		&p.Course,
		&p.Phone,
		&p.FatherOrGuardianName,
		&dob,
		&p.Submitted,
		&p.CreatedAt,
		&p.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if dob.Valid {
		p.DOB = &dob.Time
	}
	return &p, nil
}

// Reserve stores an empty pending record for a freshly generated link.
func (r *EnrollmentRepository) Reserve(ctx context.Context, token string, createdAt, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_students (token, created_at, expires_at) VALUES ($1, $2, $3)`,
		token, createdAt, expiresAt,
	)
	return err
}

func (r *EnrollmentRepository) Get(ctx context.Context, token string) (*domain.PendingStudent, error) {
	p, err := scanPending(r.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_students WHERE token = $1`, token))
	if err != nil {
		return nil, notFound(err, domain.ErrEnrollmentNotFound)
	}
	return p, nil
}

// Submit fills the applicant's details into an unexpired reservation.
func (r *EnrollmentRepository) Submit(ctx context.Context, p *domain.PendingStudent, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_students
		SET name = $1, address = $2, email = $3, password_hash = $4, course = $5, phone = $6,
			father_or_guardian_name = $7, dob = $8, submitted = true
		WHERE token = $9 AND expires_at > $10`,
		p.Name, p.Address, p.Email, p.PasswordHash, p.Course, p.Phone,
		p.FatherOrGuardianName, p.DOB, p.Token, now,
	)
	if err != nil {
		return err
	}
	if err := expectOneRowOr(res, domain.ErrEnrollmentNotFound); err != nil {
		return err
	}
	p.Submitted = true
	return nil
}

// ListSubmitted returns submitted, unexpired applications, oldest first.
func (r *EnrollmentRepository) ListSubmitted(ctx context.Context, now time.Time) ([]domain.PendingStudent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pendingColumns+` FROM pending_students
		WHERE submitted AND expires_at > $1
		ORDER BY created_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PendingStudent
	for rows.Next() {
		p, err := scanPending(rows)
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

func (r *EnrollmentRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_students WHERE token = $1`, token)
	return err
}

// DeleteExpired purges reservations and applications past their expiry.
func (r *EnrollmentRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_students WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) List(ctx context.Context) ([]domain.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM courses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Course
	for rows.Next() {
		var c domain.Course
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) error {
	err := r.db.QueryRowContext(ctx, `INSERT INTO courses (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
	return mapUnique(err, map[string]error{"courses_name_key": domain.ErrCourseExists})
}
