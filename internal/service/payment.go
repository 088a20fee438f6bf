package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/fees"
	"dhronas-fees/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StudentReader interface {
	GetByID(ctx context.Context, studentID string) (*domain.Student, error)
	GetByEmail(ctx context.Context, email string) (*domain.Student, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Student, error)
}

type StudentBalanceStore interface {
	StudentReader
	UpdateBalances(ctx context.Context, s *domain.Student) error
}

type InstallmentStore interface {
	ListByStudent(ctx context.Context, studentID string) ([]domain.Installment, error)
	ListOutstanding(ctx context.Context, studentID string) ([]domain.Installment, error)
	ApplyAllocation(ctx context.Context, in domain.Installment, previous decimal.Decimal) error
}

type PaymentStore interface {
	PaymentWriter
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	ListByStudent(ctx context.Context, studentID string) ([]domain.Payment, error)
	Sum(ctx context.Context, f repository.PaymentsFilter) (decimal.Decimal, error)
}

type PaymentNotifier interface {
	NotifyPaymentRecorded(ctx context.Context, studentID string, ev clients.PaymentEvent) error
}

type IdentifierType string

const (
	IdentifierEmail     IdentifierType = "email"
	IdentifierPhone     IdentifierType = "phone"
	IdentifierStudentID IdentifierType = "studentId"
)

type RecordPaymentRequest struct {
	Identifier     string
	IdentifierType IdentifierType
	Amount         decimal.Decimal
	// TransactionID is the client's idempotency key. Empty means a new one is drawn.
	TransactionID string
	Description   string
}

func (r RecordPaymentRequest) validate() error {
	v := &domain.ValidationError{}
	if strings.TrimSpace(r.Identifier) == "" {
		v.Add("identifier", "identifier is required")
	}
	switch r.IdentifierType {
	case IdentifierEmail, IdentifierPhone, IdentifierStudentID:
	default:
		v.Add("type", "type must be one of email, phone, studentId")
	}
	if !r.Amount.IsPositive() {
		v.Add("amount", "amount must be greater than zero")
	} else if !r.Amount.Equal(r.Amount.Round(2)) {
		v.Add("amount", "amount cannot have more than 2 decimal places")
	}
	if r.TransactionID != "" {
		if _, err := uuid.Parse(r.TransactionID); err != nil {
			v.Add("transactionId", "transactionId must be a UUID")
		}
	}
	return v.OrNil()
}

type PaymentResult struct {
	Payment      domain.Payment       `json:"payment"`
	Installments []domain.Installment `json:"installmentsUpdated"`
	Unallocated  decimal.Decimal      `json:"unallocated"`
	FeesPaid     decimal.Decimal      `json:"feesPaid"`
	DueAmount    decimal.Decimal      `json:"dueAmount"`
	// Replayed is true when the transaction id was already recorded and
	// nothing was allocated this time.
	Replayed bool `json:"replayed"`
}

type ReconcileResult struct {
	StudentID       string          `json:"studentId"`
	FeesPaidBefore  decimal.Decimal `json:"feesPaidBefore"`
	DueAmountBefore decimal.Decimal `json:"dueAmountBefore"`
	FeesPaid        decimal.Decimal `json:"feesPaid"`
	DueAmount       decimal.Decimal `json:"dueAmount"`
	Changed         bool            `json:"changed"`
}

type PaymentService struct {
	students     StudentBalanceStore
	installments InstallmentStore
	payments     PaymentStore
	ledger       *PaymentLedger
	locker       Locker
	notifier     PaymentNotifier
	gstRate      decimal.Decimal
}

func NewPaymentService(
	students StudentBalanceStore,
	installments InstallmentStore,
	payments PaymentStore,
	ledger *PaymentLedger,
	locker Locker,
	notifier PaymentNotifier,
	gstRate decimal.Decimal,
) *PaymentService {
	return &PaymentService{
		students:     students,
		installments: installments,
		payments:     payments,
		ledger:       ledger,
		locker:       locker,
		notifier:     notifier,
		gstRate:      gstRate,
	}
}

func (s *PaymentService) findStudent(ctx context.Context, kind IdentifierType, identifier string) (*domain.Student, error) {
	identifier = strings.TrimSpace(identifier)
	switch kind {
	case IdentifierEmail:
		return s.students.GetByEmail(ctx, identifier)
	case IdentifierPhone:
		return s.students.GetByPhone(ctx, identifier)
	default:
		return s.students.GetByID(ctx, identifier)
	}
}

// RecordPayment applies an admin-recorded payment to the student's
// installments, balances and payment ledger while holding the student lock.
func (s *PaymentService) RecordPayment(ctx context.Context, who domain.Identity, req RecordPaymentRequest) (*PaymentResult, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	student, err := s.findStudent(ctx, req.IdentifierType, req.Identifier)
	if err != nil {
		return nil, err
	}
	if student.Role != domain.RoleStudent {
		return nil, domain.NewValidationError("identifier", "payments can only be recorded for students")
	}

	if res, err := s.replay(ctx, student, req.TransactionID); res != nil || err != nil {
		return res, err
	}

	unlock, err := s.locker.Lock(ctx, student.StudentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// the balance may have moved while we waited for the lock
	student, err = s.students.GetByID(ctx, student.StudentID)
	if err != nil {
		return nil, err
	}
	if res, err := s.replay(ctx, student, req.TransactionID); res != nil || err != nil {
		return res, err
	}

	return s.allocate(ctx, student, req)
}

// replay returns the stored result for a transaction id that was already
// recorded for this student, or nil when the id is new.
func (s *PaymentService) replay(ctx context.Context, student *domain.Student, transactionID string) (*PaymentResult, error) {
	if transactionID == "" {
		return nil, nil
	}
	p, err := s.payments.GetByTransactionID(ctx, transactionID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup transaction %s: %w", transactionID, err)
	}
	if p.StudentID != student.StudentID {
		return nil, domain.ErrTransactionOwnership
	}
	return &PaymentResult{
		Payment:      *p,
		Installments: []domain.Installment{},
		Unallocated:  decimal.Zero,
		FeesPaid:     student.FeesPaid,
		DueAmount:    student.DueAmount,
		Replayed:     true,
	}, nil
}

func (s *PaymentService) allocate(ctx context.Context, student *domain.Student, req RecordPaymentRequest) (*PaymentResult, error) {
	tax := fees.ComputeTax(req.Amount, s.gstRate)

	outstanding, err := s.installments.ListOutstanding(ctx, student.StudentID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	previous := make(map[int64]decimal.Decimal, len(outstanding))
	for _, in := range outstanding {
		previous[in.ID] = in.Amount
	}

	touched, remainder := fees.Allocate(outstanding, req.Amount)
	applied := 0
	partial := func(stage domain.AllocationStage, err error) error {
		log.Printf("[PAY] partial allocation for %s: stage=%s applied=%d/%d err=%v",
			student.StudentID, stage, applied, len(touched), err)
		return &domain.PartialAllocationError{
			StudentID: student.StudentID,
			Stage:     stage,
			Applied:   applied,
			Total:     len(touched),
			Err:       err,
		}
	}

	for _, in := range touched {
		if err := s.installments.ApplyAllocation(ctx, in, previous[in.ID]); err != nil {
			if applied == 0 {
				return nil, fmt.Errorf("update installment %d: %w", in.Number, err)
			}
			return nil, partial(domain.StageInstallments, err)
		}
		applied++
	}

	before := *student
	student.FeesPaid = student.FeesPaid.Add(req.Amount)
	student.RecomputeDue()
	if err := s.students.UpdateBalances(ctx, student); err != nil {
		if applied == 0 {
			*student = before
			return nil, fmt.Errorf("update balances: %w", err)
		}
		return nil, partial(domain.StageStudent, err)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = domain.PaymentDescriptionInstallment
		if len(touched) == 0 {
			description = domain.PaymentDescriptionDefault
		}
	}
	payment := &domain.Payment{
		TransactionID: req.TransactionID,
		StudentID:     student.StudentID,
		PaidAmount:    req.Amount,
		Description:   description,
		GST:           &tax,
	}
	if err := s.ledger.Create(ctx, payment); err != nil {
		return nil, partial(domain.StagePayment, err)
	}

	if !remainder.IsZero() {
		log.Printf("[PAY] payment %s for %s exceeded outstanding installments by %s",
			payment.PaymentID, student.StudentID, remainder.StringFixed(2))
	}

	if s.notifier != nil {
		ev := clients.PaymentEvent{
			PaymentID:   payment.PaymentID,
			Amount:      payment.PaidAmount.StringFixed(2),
			FeesPaid:    student.FeesPaid.StringFixed(2),
			DueAmount:   student.DueAmount.StringFixed(2),
			Updated:     len(touched),
			Unallocated: remainder.StringFixed(2),
		}
		if err := s.notifier.NotifyPaymentRecorded(ctx, student.StudentID, ev); err != nil {
			log.Printf("[PAY] notify %s failed: %v", student.StudentID, err)
		}
	}

	if touched == nil {
		touched = []domain.Installment{}
	}
	return &PaymentResult{
		Payment:      *payment,
		Installments: touched,
		Unallocated:  remainder,
		FeesPaid:     student.FeesPaid,
		DueAmount:    student.DueAmount,
	}, nil
}

// History returns a student's payments, newest first.
func (s *PaymentService) History(ctx context.Context, who domain.Identity, studentID string) ([]domain.Payment, error) {
	if !who.CanView(studentID) {
		return nil, domain.ErrForbidden
	}
	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return payments, nil
}

// Reconcile rewrites the stored balance of a student from the sum of the
// payment ledger.
func (s *PaymentService) Reconcile(ctx context.Context, who domain.Identity, studentID string) (*ReconcileResult, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	unlock, err := s.locker.Lock(ctx, studentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	paid, err := s.payments.Sum(ctx, repository.PaymentsFilter{StudentID: &studentID})
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}

	res := &ReconcileResult{
		StudentID:       studentID,
		FeesPaidBefore:  student.FeesPaid,
		DueAmountBefore: student.DueAmount,
	}

	student.FeesPaid = paid
	student.RecomputeDue()
	res.FeesPaid = student.FeesPaid
	res.DueAmount = student.DueAmount
	res.Changed = !res.FeesPaid.Equal(res.FeesPaidBefore) || !res.DueAmount.Equal(res.DueAmountBefore)

	if res.Changed {
		if err := s.students.UpdateBalances(ctx, student); err != nil {
			return nil, fmt.Errorf("update balances: %w", err)
		}
		log.Printf("[PAY] reconciled %s: feesPaid %s -> %s, due %s -> %s", studentID,
			res.FeesPaidBefore.StringFixed(2), res.FeesPaid.StringFixed(2),
			res.DueAmountBefore.StringFixed(2), res.DueAmount.StringFixed(2))
	}
	return res, nil
}

// balanceView is the stored balance next to the one derived from the ledger.
type balanceView struct {
	FeesPaid        decimal.Decimal `json:"feesPaid"`
	DueAmount       decimal.Decimal `json:"dueAmount"`
	LedgerFeesPaid  decimal.Decimal `json:"ledgerFeesPaid"`
	LedgerDueAmount decimal.Decimal `json:"ledgerDueAmount"`
	Drift           decimal.Decimal `json:"drift"`
}

func newBalanceView(s *domain.Student, ledgerPaid decimal.Decimal) balanceView {
	return balanceView{
		FeesPaid:        s.FeesPaid,
		DueAmount:       s.DueAmount,
		LedgerFeesPaid:  ledgerPaid,
		LedgerDueAmount: s.TotalFees.Sub(ledgerPaid),
		Drift:           s.FeesPaid.Sub(ledgerPaid),
	}
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
