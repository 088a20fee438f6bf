package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/fees"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^\d{10}$`)
)

type StudentCreator interface {
	StudentReader
	CreateWithInstallments(ctx context.Context, s *domain.Student, installments []domain.Installment) error
}

type PendingStore interface {
	Reserve(ctx context.Context, token string, createdAt, expiresAt time.Time) error
	Get(ctx context.Context, token string) (*domain.PendingStudent, error)
	Submit(ctx context.Context, p *domain.PendingStudent, now time.Time) error
	ListSubmitted(ctx context.Context, now time.Time) ([]domain.PendingStudent, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CourseStore interface {
	List(ctx context.Context) ([]domain.Course, error)
	Create(ctx context.Context, c *domain.Course) error
}

type EnrollmentOptions struct {
	FrontendURL string
	LinkTTL     time.Duration
	BcryptCost  int
	GSTRate     decimal.Decimal
}

type EnrollmentService struct {
	students StudentCreator
	pending  PendingStore
	courses  CourseStore
	ledger   *PaymentLedger
	opts     EnrollmentOptions
	now      func() time.Time
}

func NewEnrollmentService(students StudentCreator, pending PendingStore, courses CourseStore, ledger *PaymentLedger, opts EnrollmentOptions) *EnrollmentService {
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = 7 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	return &EnrollmentService{
		students: students,
		pending:  pending,
		courses:  courses,
		ledger:   ledger,
		opts:     opts,
		now:      time.Now,
	}
}

// newAccountID returns prefix-XXXXXXXX built from the first block of a UUID.
func newAccountID(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
}

type EnrollRequest struct {
	Name                 string
	Address              string
	Email                string
	Password             string
	Course               string
	Phone                string
	BatchNo              string
	FatherOrGuardianName string
	DOB                  *time.Time
	TotalFees            decimal.Decimal
	InitialPayment       decimal.Decimal
	InstallmentCount     int
}

func (r EnrollRequest) validate() error {
	v := &domain.ValidationError{}
	if strings.TrimSpace(r.Name) == "" {
		v.Add("name", "name is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(r.Email)) {
		v.Add("email", "a valid email is required")
	}
	if len(r.Password) < minPasswordLength {
		v.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if strings.TrimSpace(r.Course) == "" {
		v.Add("course", "course is required")
	}
	if r.Phone != "" && !phonePattern.MatchString(r.Phone) {
		v.Add("phone", "phone must be 10 digits")
	}
	if !r.TotalFees.IsPositive() {
		v.Add("Total_fees", "total fees must be greater than zero")
	}
	if r.InitialPayment.IsNegative() {
		v.Add("initialPayment", "initial payment cannot be negative")
	} else if r.InitialPayment.GreaterThan(r.TotalFees) {
		v.Add("initialPayment", "initial payment cannot exceed total fees")
	}
	if r.InstallmentCount < 0 {
		v.Add("installmentCount", "installment count cannot be negative")
	} else if err := fees.CheckSchedule(r.TotalFees.Round(2).Sub(r.InitialPayment.Round(2)), r.InstallmentCount); err != nil {
		v.Add("installmentCount", err.Error())
	}
	return v.OrNil()
}

type EnrollmentResult struct {
	StudentID    string               `json:"studentId"`
	Installments []domain.Installment `json:"installments"`
	Payment      *domain.Payment      `json:"initialPayment,omitempty"`
}

// Enroll creates a student directly, with an optional initial payment and
// an installment schedule over the rest of the fees.
func (s *EnrollmentService) Enroll(ctx context.Context, who domain.Identity, req EnrollRequest) (*EnrollmentResult, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.students.GetByEmail(ctx, req.Email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrStudentNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := &domain.Student{
		StudentID:            newAccountID("STU"),
		Name:                 strings.TrimSpace(req.Name),
		Address:              req.Address,
		Email:                strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:         string(hash),
		Course:               strings.TrimSpace(req.Course),
		TotalFees:            req.TotalFees.Round(2),
		Phone:                req.Phone,
		BatchNo:              strings.TrimSpace(req.BatchNo),
		FatherOrGuardianName: req.FatherOrGuardianName,
		DOB:                  req.DOB,
		Role:                 domain.RoleStudent,
	}
	return s.materialize(ctx, student, req.InitialPayment.Round(2), req.InstallmentCount)
}

// materialize stores the student with its schedule and books the initial payment.
func (s *EnrollmentService) materialize(ctx context.Context, student *domain.Student, initial decimal.Decimal, count int) (*EnrollmentResult, error) {
	now := s.now()
	student.DateJoined = now
	student.InitialPayment = initial
	student.FeesPaid = initial
	student.RecomputeDue()

	var installments []domain.Installment
	for _, sched := range fees.BuildSchedule(student.DueAmount, count, now) {
		installments = append(installments, domain.Installment{
			Number:         sched.Number,
			OriginalAmount: sched.Amount,
			Amount:         sched.Amount,
			DueDate:        sched.DueDate,
			Status:         domain.InstallmentPending,
		})
	}
	student.HasInstallments = len(installments) > 0

	if err := s.students.CreateWithInstallments(ctx, student, installments); err != nil {
		return nil, err
	}
	log.Printf("[ENROLL] created %s with %d installments", student.StudentID, len(installments))

	res := &EnrollmentResult{StudentID: student.StudentID, Installments: installments}
	if res.Installments == nil {
		res.Installments = []domain.Installment{}
	}
	if !initial.IsPositive() {
		return res, nil
	}

	tax := fees.ComputeTax(initial, s.opts.GSTRate)
	payment := &domain.Payment{
		StudentID:   student.StudentID,
		PaidAmount:  initial,
		Description: domain.PaymentDescriptionInitial,
		GST:         &tax,
	}
	if err := s.ledger.Create(ctx, payment); err != nil {
		log.Printf("[ENROLL] initial payment for %s not recorded: %v", student.StudentID, err)
		return nil, &domain.PartialAllocationError{StudentID: student.StudentID, Stage: domain.StagePayment, Err: err}
	}
	res.Payment = payment
	return res, nil
}

type EnrollmentLink struct {
	Link      string    `json:"link"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *EnrollmentService) GenerateEnrollmentLink(ctx context.Context, who domain.Identity) (*EnrollmentLink, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	token := uuid.NewString()
	now := s.now()
	expires := now.Add(s.opts.LinkTTL)
	if err := s.pending.Reserve(ctx, token, now, expires); err != nil {
		return nil, fmt.Errorf("reserve enrollment token: %w", err)
	}
	link := strings.TrimRight(s.opts.FrontendURL, "/") + "/enroll-form?token=" + token
	return &EnrollmentLink{Link: link, Token: token, ExpiresAt: expires}, nil
}

type SubmitEnrollmentRequest struct {
	Token                string
	Name                 string
	Address              string
	Email                string
	Password             string
	Course               string
	Phone                string
	FatherOrGuardianName string
	DOB                  string
}

func (r SubmitEnrollmentRequest) validate() (*time.Time, error) {
	v := &domain.ValidationError{}
	if r.Token == "" {
		v.Add("token", "token is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		v.Add("name", "name is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(r.Email)) {
		v.Add("email", "a valid email is required")
	}
	if len(r.Password) < minPasswordLength {
		v.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if !phonePattern.MatchString(r.Phone) {
		v.Add("phone", "phone must be 10 digits")
	}
	if strings.TrimSpace(r.FatherOrGuardianName) == "" {
		v.Add("fatherOrGuardianName", "father or guardian name is required")
	}
	var dob *time.Time
	if parsed, err := parseDate(r.DOB); err != nil {
		v.Add("dob", "dob must be a date (YYYY-MM-DD)")
	} else {
		dob = &parsed
	}
	return dob, v.OrNil()
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// SubmitEnrollment fills a reserved token with the applicant's details.
func (s *EnrollmentService) SubmitEnrollment(ctx context.Context, req SubmitEnrollmentRequest) error {
	dob, err := req.validate()
	if err != nil {
		return err
	}

	pending, err := s.pending.Get(ctx, req.Token)
	if err != nil {
		return err
	}
	now := s.now()
	if pending.Expired(now) {
		return domain.ErrEnrollmentExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	pending.Name = strings.TrimSpace(req.Name)
	pending.Address = req.Address
	pending.Email = strings.ToLower(strings.TrimSpace(req.Email))
	pending.PasswordHash = string(hash)
	pending.Course = strings.TrimSpace(req.Course)
	pending.Phone = req.Phone
	pending.FatherOrGuardianName = strings.TrimSpace(req.FatherOrGuardianName)
	pending.DOB = dob

	if err := s.pending.Submit(ctx, pending, now); err != nil {
		return err
	}
	return nil
}

type ApproveRequest struct {
	Token           string
	TotalFees       decimal.Decimal
	BatchNo         string
	InitialPayment  decimal.Decimal
	Installments    int
	DiscountPercent decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func (r ApproveRequest) effectiveFees() decimal.Decimal {
	if r.DiscountPercent.IsZero() {
		return r.TotalFees.Round(2)
	}
	factor := hundred.Sub(r.DiscountPercent).Div(hundred)
	return r.TotalFees.Mul(factor).Round(2)
}

func (r ApproveRequest) validate() error {
	v := &domain.ValidationError{}
	if r.Token == "" {
		v.Add("token", "token is required")
	}
	if !r.TotalFees.IsPositive() {
		v.Add("Total_fees", "total fees must be greater than zero")
	}
	if strings.TrimSpace(r.BatchNo) == "" {
		v.Add("batchNo", "batch number is required")
	}
	if r.InitialPayment.IsNegative() {
		v.Add("initial_payment", "initial payment cannot be negative")
	}
	if r.Installments < 0 {
		v.Add("no_of_installments", "number of installments must be a non-negative integer")
	}
	if r.DiscountPercent.IsNegative() || r.DiscountPercent.GreaterThan(hundred) {
		v.Add("discount_offered", "discount must be a percentage between 0 and 100")
	}
	if v.HasErrors() {
		return v
	}

	effective := r.effectiveFees()
	if r.InitialPayment.GreaterThan(effective) {
		return domain.NewValidationError("initial_payment", "initial payment cannot exceed total fees")
	}
	if r.InitialPayment.LessThan(effective) && r.Installments <= 0 {
		return domain.NewValidationError("no_of_installments",
			"number of installments is required when initial payment is less than total fees")
	}
	if err := fees.CheckSchedule(effective.Sub(r.InitialPayment.Round(2)), r.Installments); err != nil {
		return domain.NewValidationError("no_of_installments", err.Error())
	}
	return nil
}

// ApproveStudent turns a submitted application into a student, applying
// the discount to the fees.
func (s *EnrollmentService) ApproveStudent(ctx context.Context, who domain.Identity, req ApproveRequest) (*EnrollmentResult, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	pending, err := s.pending.Get(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	if pending.Expired(s.now()) {
		return nil, domain.ErrEnrollmentExpired
	}
	if !pending.Submitted {
		return nil, domain.NewValidationError("token", "enrollment form has not been submitted yet")
	}

	student := &domain.Student{
		StudentID:            newAccountID("STU"),
		Name:                 pending.Name,
		Address:              pending.Address,
		Email:                pending.Email,
		PasswordHash:         pending.PasswordHash,
		Course:               pending.Course,
		TotalFees:            req.effectiveFees(),
		Phone:                pending.Phone,
		BatchNo:              strings.TrimSpace(req.BatchNo),
		FatherOrGuardianName: pending.FatherOrGuardianName,
		DOB:                  pending.DOB,
		Role:                 domain.RoleStudent,
	}

	res, err := s.materialize(ctx, student, req.InitialPayment.Round(2), req.Installments)
	var perr *domain.PartialAllocationError
	if err != nil && !errors.As(err, &perr) {
		return nil, err
	}

	// the student exists from here on, so the application is consumed
	if derr := s.pending.Delete(ctx, req.Token); derr != nil {
		log.Printf("[ENROLL] delete pending %s failed: %v", req.Token, derr)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *EnrollmentService) ListPending(ctx context.Context, who domain.Identity) ([]domain.PendingStudent, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	list, err := s.pending.ListSubmitted(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.PendingStudent{}
	}
	return list, nil
}

// ExportPendingCSV renders submitted applications as CSV.
func (s *EnrollmentService) ExportPendingCSV(ctx context.Context, who domain.Identity) ([]byte, error) {
	list, err := s.ListPending(ctx, who)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"name", "address", "email", "course", "phone", "fatherOrGuardianName", "dob"})
	for _, p := range list {
		dob := ""
		if p.DOB != nil {
			dob = p.DOB.Format("2006-01-02")
		}
		_ = w.Write([]string{p.Name, p.Address, p.Email, p.Course, p.Phone, p.FatherOrGuardianName, dob})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PurgeExpired removes reservations and applications past their expiry.
func (s *EnrollmentService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.pending.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[ENROLL] purged %d expired enrollment records", n)
	}
	return n, nil
}

func (s *EnrollmentService) ListCourses(ctx context.Context) ([]domain.Course, error) {
	list, err := s.courses.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Course{}
	}
	return list, nil
}

func (s *EnrollmentService) AddCourse(ctx context.Context, who domain.Identity, name string) (*domain.Course, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "course name is required")
	}
	c := &domain.Course{Name: name}
	if err := s.courses.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *EnrollmentService) FindStudentByPhone(ctx context.Context, who domain.Identity, phone string) (string, error) {
	if !who.IsAdmin() {
		return "", domain.ErrForbidden
	}
	if strings.TrimSpace(phone) == "" {
		return "", domain.NewValidationError("phone", "phone is required")
	}
	st, err := s.students.GetByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	return st.StudentID, nil
}
