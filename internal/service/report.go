package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/repository"

	"github.com/shopspring/decimal"
)

type ReportStudents interface {
	GetByID(ctx context.Context, studentID string) (*domain.Student, error)
	List(ctx context.Context, f repository.StudentsFilter) ([]domain.Student, error)
	CourseCounts(ctx context.Context) ([]repository.CourseCount, error)
}

type ReportInstallments interface {
	ListByStudent(ctx context.Context, studentID string) ([]domain.Installment, error)
}

type ReportPayments interface {
	ListByStudent(ctx context.Context, studentID string) ([]domain.Payment, error)
	List(ctx context.Context, f repository.PaymentsFilter) ([]repository.PaymentRecord, error)
	Sum(ctx context.Context, f repository.PaymentsFilter) (decimal.Decimal, error)
}

type PendingLister interface {
	ListSubmitted(ctx context.Context, now time.Time) ([]domain.PendingStudent, error)
}

type DownloadLogger interface {
	Append(e clients.DownloadEntry, now time.Time) error
}

type ReportService struct {
	students     ReportStudents
	installments ReportInstallments
	payments     ReportPayments
	pending      PendingLister
	downloads    DownloadLogger
	now          func() time.Time
}

func NewReportService(
	students ReportStudents,
	installments ReportInstallments,
	payments ReportPayments,
	pending PendingLister,
	downloads DownloadLogger,
) *ReportService {
	return &ReportService{
		students:     students,
		installments: installments,
		payments:     payments,
		pending:      pending,
		downloads:    downloads,
		now:          time.Now,
	}
}

// CSVFile is a generated report ready to be sent as an attachment.
type CSVFile struct {
	Name string
	Data []byte
}

// parseMonth reads a YYYY-MM value into the half-open range [from, to).
func parseMonth(month string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, time.Time{}, domain.NewValidationError("month", "month must be in YYYY-MM format")
	}
	return from, from.AddDate(0, 1, 0), nil
}

func writeCSV(w *csv.Writer, header []string, rows [][]string) error {
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func taxField(t *domain.Tax, pick func(domain.Tax) decimal.Decimal) string {
	if t == nil {
		return ""
	}
	return pick(*t).String()
}

func (s *ReportService) InvoicesCSV(ctx context.Context, who domain.Identity, month string) (*CSVFile, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if strings.TrimSpace(month) == "" {
		return nil, domain.NewValidationError("month", "month parameter is required in YYYY-MM format")
	}
	from, to, err := parseMonth(month)
	if err != nil {
		return nil, err
	}

	records, err := s.payments.List(ctx, repository.PaymentsFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		name := r.StudentName
		if name == "" {
			name = "Unknown"
		}
		rows = append(rows, []string{
			r.PaymentID,
			r.PaymentDate.UTC().Format("2006-01-02"),
			name,
			r.PaidAmount.String(),
			taxField(r.GST, func(t domain.Tax) decimal.Decimal { return t.TotalGSTAmount }),
			taxField(r.GST, func(t domain.Tax) decimal.Decimal { return t.CGST }),
			taxField(r.GST, func(t domain.Tax) decimal.Decimal { return t.SGST }),
		})
	}

	var buf bytes.Buffer
	header := []string{"invoiceNumber", "date", "studentName", "payment", "gstAmount", "CGST", "SGST"}
	if err := writeCSV(csv.NewWriter(&buf), header, rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return &CSVFile{Name: "invoice_report_" + from.Format("2006-01") + ".csv", Data: buf.Bytes()}, nil
}

type PendingPaymentEntry struct {
	StudentID    string               `json:"studentId"`
	StudentName  string               `json:"studentName"`
	RemainingFee decimal.Decimal      `json:"remainingFee"`
	Payments     []domain.Payment     `json:"payments"`
	Installments []domain.Installment `json:"installments"`
}

// PendingPayments lists the students of a batch who still owe fees.
func (s *ReportService) PendingPayments(ctx context.Context, who domain.Identity, batch string) ([]PendingPaymentEntry, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	batch = strings.TrimSpace(batch)
	if batch == "" {
		return nil, domain.NewValidationError("batch", "batch parameter is required")
	}

	role := domain.RoleStudent
	students, err := s.students.List(ctx, repository.StudentsFilter{Role: &role, BatchNo: &batch, WithDue: true})
	if err != nil {
		return nil, err
	}

	report := make([]PendingPaymentEntry, 0, len(students))
	for _, st := range students {
		payments, err := s.payments.ListByStudent(ctx, st.StudentID)
		if err != nil {
			return nil, err
		}
		installments, err := s.installments.ListByStudent(ctx, st.StudentID)
		if err != nil {
			return nil, err
		}
		if payments == nil {
			payments = []domain.Payment{}
		}
		if installments == nil {
			installments = []domain.Installment{}
		}
		report = append(report, PendingPaymentEntry{
			StudentID:    st.StudentID,
			StudentName:  st.Name,
			RemainingFee: st.DueAmount,
			Payments:     payments,
			Installments: installments,
		})
	}
	return report, nil
}

func (s *ReportService) CourseEnrollment(ctx context.Context, who domain.Identity) (map[string]int, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	counts, err := s.students.CourseCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.Course] = c.Count
	}
	return out, nil
}

// MonthlyPayments sums the payments received in the current calendar month.
func (s *ReportService) MonthlyPayments(ctx context.Context, who domain.Identity) (decimal.Decimal, error) {
	if !who.IsAdmin() {
		return decimal.Zero, domain.ErrForbidden
	}
	return s.monthToDate(ctx)
}

func (s *ReportService) monthToDate(ctx context.Context) (decimal.Decimal, error) {
	from := startOfMonth(s.now())
	to := from.AddDate(0, 1, 0)
	return s.payments.Sum(ctx, repository.PaymentsFilter{From: &from, To: &to})
}

type PendingSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type Stats struct {
	CourseEnrollments []repository.CourseCount `json:"courseEnrollments"`
	MonthlyPayments   decimal.Decimal          `json:"monthlyPayments"`
	PendingStudents   []PendingSummary         `json:"pendingStudents"`
}

func (s *ReportService) Stats(ctx context.Context, who domain.Identity) (*Stats, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	counts, err := s.students.CourseCounts(ctx)
	if err != nil {
		return nil, err
	}
	monthly, err := s.monthToDate(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.pending.ListSubmitted(ctx, s.now())
	if err != nil {
		return nil, err
	}

	summaries := make([]PendingSummary, 0, len(pending))
	for _, p := range pending {
		summaries = append(summaries, PendingSummary{Name: p.Name, Email: p.Email, Token: p.Token})
	}
	if counts == nil {
		counts = []repository.CourseCount{}
	}
	return &Stats{CourseEnrollments: counts, MonthlyPayments: monthly, PendingStudents: summaries}, nil
}

// StudentDataCSV exports a student's payments and installments as two CSV
// sections in one file.
func (s *ReportService) StudentDataCSV(ctx context.Context, who domain.Identity, studentID string) (*CSVFile, error) {
	if !who.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	installments, err := s.installments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	paymentRows := make([][]string, 0, len(payments))
	for _, p := range payments {
		paymentRows = append(paymentRows, []string{
			p.StudentID,
			p.PaidAmount.String(),
			p.PaymentDate.UTC().Format(time.RFC3339),
			taxField(p.GST, func(t domain.Tax) decimal.Decimal { return t.TotalGSTAmount }),
			taxField(p.GST, func(t domain.Tax) decimal.Decimal { return t.CGST }),
			taxField(p.GST, func(t domain.Tax) decimal.Decimal { return t.SGST }),
		})
	}
	installmentRows := make([][]string, 0, len(installments))
	for _, in := range installments {
		installmentRows = append(installmentRows, []string{
			in.StudentID,
			strconv.Itoa(in.Number),
			in.Amount.String(),
			in.DueDate.UTC().Format(time.RFC3339),
			string(in.Status),
		})
	}

	var buf bytes.Buffer
	buf.WriteString("Payments Data\n\n")
	w := csv.NewWriter(&buf)
	if err := writeCSV(w, []string{"studentId", "PaidAmount", "paymentDate", "TotalGSTAmount", "CGST", "SGST"}, paymentRows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	buf.WriteString("\nInstallments Data\n\n")
	if err := writeCSV(w, []string{"studentId", "installmentNumber", "amount", "dueDate", "status"}, installmentRows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return &CSVFile{Name: "data_export.csv", Data: buf.Bytes()}, nil
}

type DownloadLogRequest struct {
	StudentID     string `json:"studentId"`
	ActionType    string `json:"actionType"`
	InvoiceNumber string `json:"invoiceNumber"`
}

func (s *ReportService) LogDownload(ctx context.Context, req DownloadLogRequest) error {
	v := &domain.ValidationError{}
	if strings.TrimSpace(req.StudentID) == "" {
		v.Add("studentId", "studentId is required")
	}
	if strings.TrimSpace(req.ActionType) == "" {
		v.Add("actionType", "actionType is required")
	}
	if strings.TrimSpace(req.InvoiceNumber) == "" {
		v.Add("invoiceNumber", "invoiceNumber is required")
	}
	if err := v.OrNil(); err != nil {
		return err
	}
	if s.downloads == nil {
		return errors.New("download log not configured")
	}
	return s.downloads.Append(clients.DownloadEntry{
		StudentID:     req.StudentID,
		InvoiceNumber: req.InvoiceNumber,
		ActionType:    req.ActionType,
	}, s.now())
}
