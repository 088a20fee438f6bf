package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/fees"
	"dhronas-fees/internal/repository"

	"github.com/shopspring/decimal"
)

type DashboardStudents interface {
	StudentReader
	CountByRole(ctx context.Context, role domain.Role) (int, error)
}

type DashboardInstallments interface {
	ListByStudent(ctx context.Context, studentID string) ([]domain.Installment, error)
	ListDue(ctx context.Context, f repository.InstallmentsFilter) ([]repository.DueInstallment, error)
	CountByStatus(ctx context.Context, status domain.InstallmentStatus) (int, error)
}

type DashboardPayments interface {
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	Latest(ctx context.Context, studentID string) (*domain.Payment, error)
	ListByStudent(ctx context.Context, studentID string) ([]domain.Payment, error)
	Sum(ctx context.Context, f repository.PaymentsFilter) (decimal.Decimal, error)
}

type InstituteInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
	GSTIN   string `json:"gstin,omitempty"`
}

type DashboardService struct {
	students     DashboardStudents
	installments DashboardInstallments
	payments     DashboardPayments
	mailer       clients.Mailer
	institute    InstituteInfo
	gstRate      decimal.Decimal
	dueWithin    time.Duration
	now          func() time.Time
}

func NewDashboardService(
	students DashboardStudents,
	installments DashboardInstallments,
	payments DashboardPayments,
	mailer clients.Mailer,
	institute InstituteInfo,
	gstRate decimal.Decimal,
	dueWithin time.Duration,
) *DashboardService {
	if dueWithin <= 0 {
		dueWithin = 7 * 24 * time.Hour
	}
	return &DashboardService{
		students:     students,
		installments: installments,
		payments:     payments,
		mailer:       mailer,
		institute:    institute,
		gstRate:      gstRate,
		dueWithin:    dueWithin,
		now:          time.Now,
	}
}

type PaymentLine struct {
	ID          string          `json:"id"`
	PaymentID   string          `json:"paymentId"`
	PaidAmount  decimal.Decimal `json:"PaidAmount"`
	PaymentDate time.Time       `json:"paymentDate"`
	Description string          `json:"description"`
}

type StudentDashboard struct {
	StudentID      string          `json:"studentId"`
	Name           string          `json:"name"`
	Course         string          `json:"course"`
	TotalFees      decimal.Decimal `json:"Total_fees"`
	InitialPayment decimal.Decimal `json:"initialPayment"`
	JoinedDate     time.Time       `json:"joinedDate"`
	BatchNo        string          `json:"batchNo"`
	balanceView
	Payments     []PaymentLine        `json:"payments"`
	Installments []domain.Installment `json:"installments"`
}

// StudentDashboard shows the stored balance together with the one derived
// from the payment ledger, so drift is visible to the student and operator.
func (s *DashboardService) StudentDashboard(ctx context.Context, who domain.Identity, studentID string) (*StudentDashboard, error) {
	if !who.CanView(studentID) {
		return nil, domain.ErrForbidden
	}
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	installments, err := s.installments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}

	paid := decimal.Zero
	lines := make([]PaymentLine, 0, len(payments))
	for _, p := range payments {
		paid = paid.Add(p.PaidAmount)
		description := p.Description
		if description == "" {
			description = domain.PaymentDescriptionDefault
		}
		lines = append(lines, PaymentLine{
			ID:          p.ID,
			PaymentID:   p.PaymentID,
			PaidAmount:  p.PaidAmount,
			PaymentDate: p.PaymentDate,
			Description: description,
		})
	}
	if installments == nil {
		installments = []domain.Installment{}
	}

	return &StudentDashboard{
		StudentID:      student.StudentID,
		Name:           student.Name,
		Course:         student.Course,
		TotalFees:      student.TotalFees,
		InitialPayment: student.InitialPayment,
		JoinedDate:     student.DateJoined,
		BatchNo:        student.BatchNo,
		balanceView:    newBalanceView(student, paid),
		Payments:       lines,
		Installments:   installments,
	}, nil
}

type AdminDashboard struct {
	TotalStudents            int             `json:"totalStudents"`
	TotalPayments            decimal.Decimal `json:"totalPayments"`
	TotalPendingInstallments int             `json:"totalPendingInstallments"`
}

func (s *DashboardService) AdminDashboard(ctx context.Context, who domain.Identity) (*AdminDashboard, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	students, err := s.students.CountByRole(ctx, domain.RoleStudent)
	if err != nil {
		return nil, err
	}
	total, err := s.payments.Sum(ctx, repository.PaymentsFilter{})
	if err != nil {
		return nil, err
	}
	pending, err := s.installments.CountByStatus(ctx, domain.InstallmentPending)
	if err != nil {
		return nil, err
	}
	return &AdminDashboard{TotalStudents: students, TotalPayments: total, TotalPendingInstallments: pending}, nil
}

// Notifications lists pending installments due within the notice window,
// overdue ones included. Students only see their own.
func (s *DashboardService) Notifications(ctx context.Context, who domain.Identity) ([]repository.DueInstallment, error) {
	if who.IsZero() {
		return nil, domain.ErrForbidden
	}
	status := domain.InstallmentPending
	before := s.now().Add(s.dueWithin)
	filter := repository.InstallmentsFilter{Status: &status, DueBefore: &before}
	if !who.IsAdmin() {
		id := who.StudentID()
		filter.StudentID = &id
	}

	list, err := s.installments.ListDue(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []repository.DueInstallment{}
	}
	return list, nil
}

type InvoiceStudent struct {
	StudentID  string          `json:"studentId"`
	Name       string          `json:"name"`
	Course     string          `json:"course"`
	Batch      string          `json:"batch"`
	DateJoined time.Time       `json:"dateJoined"`
	TotalFees  decimal.Decimal `json:"totalFees"`
}

type InvoiceGST struct {
	Rate     decimal.Decimal `json:"rate"`
	TotalGST decimal.Decimal `json:"totalGST"`
	CGST     decimal.Decimal `json:"CGST"`
	SGST     decimal.Decimal `json:"SGST"`
}

type Invoice struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	CurrentDate   string          `json:"currentDate"`
	Student       InvoiceStudent  `json:"student"`
	LatestPayment *domain.Payment `json:"latestPayment"`
	GSTDetails    InvoiceGST      `json:"gstDetails"`
	Institute     InstituteInfo   `json:"institute"`
}

func (s *DashboardService) buildInvoice(student *domain.Student, payment *domain.Payment) *Invoice {
	inv := &Invoice{
		InvoiceNumber: newAccountID("INV"),
		CurrentDate:   s.now().Format("02 Jan 2006"),
		Student: InvoiceStudent{
			StudentID:  student.StudentID,
			Name:       student.Name,
			Course:     student.Course,
			Batch:      student.BatchNo,
			DateJoined: student.DateJoined,
			TotalFees:  student.TotalFees,
		},
		LatestPayment: payment,
		Institute:     s.institute,
		GSTDetails:    InvoiceGST{Rate: s.gstRate, TotalGST: decimal.Zero, CGST: decimal.Zero, SGST: decimal.Zero},
	}
	if payment == nil {
		return inv
	}

	tax := payment.GST
	if tax == nil {
		computed := fees.ComputeTax(payment.PaidAmount, s.gstRate)
		tax = &computed
	}
	inv.GSTDetails = InvoiceGST{Rate: tax.Rate, TotalGST: tax.TotalGSTAmount, CGST: tax.CGST, SGST: tax.SGST}
	return inv
}

// InvoiceByPayment builds an invoice for the payment with the given internal id.
func (s *DashboardService) InvoiceByPayment(ctx context.Context, who domain.Identity, paymentID string) (*Invoice, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !who.CanView(payment.StudentID) {
		return nil, domain.ErrForbidden
	}
	student, err := s.students.GetByID(ctx, payment.StudentID)
	if err != nil {
		return nil, err
	}
	return s.buildInvoice(student, payment), nil
}

// LatestInvoiceByPhone builds an invoice for the most recent payment of the
// student with that phone. Students without payments get an empty invoice.
func (s *DashboardService) LatestInvoiceByPhone(ctx context.Context, who domain.Identity, phone string) (*Invoice, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	student, err := s.students.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.Latest(ctx, student.StudentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		payment = nil
	} else if err != nil {
		return nil, err
	}
	return s.buildInvoice(student, payment), nil
}

// EmailInvoice sends an already rendered invoice PDF to the paying student.
func (s *DashboardService) EmailInvoice(ctx context.Context, who domain.Identity, paymentID string, pdf []byte) error {
	if !who.IsAdmin() {
		return domain.ErrForbidden
	}
	v := &domain.ValidationError{}
	if strings.TrimSpace(paymentID) == "" {
		v.Add("paymentId", "paymentId is required")
	}
	if len(pdf) == 0 {
		v.Add("pdf", "invoice pdf is required")
	}
	if err := v.OrNil(); err != nil {
		return err
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	student, err := s.students.GetByID(ctx, payment.StudentID)
	if err != nil {
		return err
	}

	msg := clients.MailMessage{
		ToName:  student.Name,
		ToEmail: student.Email,
		Subject: "Payment Invoice",
		Text:    "Thank you for your payment. Please find your invoice attached.",
		Attachments: []clients.Attachment{{
			Filename:    "invoice-" + payment.TransactionID + ".pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	return nil
}
