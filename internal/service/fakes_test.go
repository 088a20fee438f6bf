package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/repository"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var admin = domain.NewIdentity("ADMIN-00000001", domain.RoleAdmin)

type fakeStudents struct {
	mu        sync.Mutex
	byID      map[string]*domain.Student
	failWrite error
}

func newFakeStudents(students ...*domain.Student) *fakeStudents {
	f := &fakeStudents{byID: map[string]*domain.Student{}}
	for _, s := range students {
		f.byID[s.StudentID] = s
	}
	return f
}

func (f *fakeStudents) get(match func(*domain.Student) bool) (*domain.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if match(s) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrStudentNotFound
}

func (f *fakeStudents) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	return f.get(func(s *domain.Student) bool { return s.StudentID == id })
}

func (f *fakeStudents) GetByEmail(ctx context.Context, email string) (*domain.Student, error) {
	email = strings.ToLower(email)
	return f.get(func(s *domain.Student) bool { return s.Email == email })
}

func (f *fakeStudents) GetByPhone(ctx context.Context, phone string) (*domain.Student, error) {
	return f.get(func(s *domain.Student) bool { return s.Phone == phone })
}

func (f *fakeStudents) GetByResetToken(ctx context.Context, hash string, now time.Time) (*domain.Student, error) {
	s, err := f.get(func(s *domain.Student) bool {
		return s.ResetTokenHash != nil && *s.ResetTokenHash == hash && s.ResetTokenExpiry.After(now)
	})
	if err != nil {
		return nil, domain.ErrInvalidResetToken
	}
	return s, nil
}

func (f *fakeStudents) UpdateBalances(ctx context.Context, s *domain.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return f.failWrite
	}
	stored, ok := f.byID[s.StudentID]
	if !ok || stored.Version != s.Version {
		return domain.ErrStaleWrite
	}
	stored.FeesPaid = s.FeesPaid
	stored.DueAmount = s.DueAmount
	stored.Version++
	s.Version++
	return nil
}

func (f *fakeStudents) CreateWithInstallments(ctx context.Context, s *domain.Student, installments []domain.Installment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == s.Email {
			return domain.ErrEmailTaken
		}
		if s.Phone != "" && existing.Phone == s.Phone {
			return domain.ErrPhoneTaken
		}
	}
	s.Version = 1
	cp := *s
	f.byID[s.StudentID] = &cp
	for i := range installments {
		installments[i].StudentID = s.StudentID
		installments[i].ID = int64(i + 1)
	}
	return nil
}

func (f *fakeStudents) SetResetToken(ctx context.Context, id, hash string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return domain.ErrStudentNotFound
	}
	s.ResetTokenHash = &hash
	s.ResetTokenExpiry = &expiry
	return nil
}

func (f *fakeStudents) UpdatePassword(ctx context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return domain.ErrStudentNotFound
	}
	s.PasswordHash = hash
	s.ResetTokenHash = nil
	s.ResetTokenExpiry = nil
	return nil
}

func (f *fakeStudents) AdminExists(ctx context.Context) (bool, error) {
	_, err := f.get(func(s *domain.Student) bool { return s.Role == domain.RoleAdmin })
	return err == nil, nil
}

func (f *fakeStudents) List(ctx context.Context, filter repository.StudentsFilter) ([]domain.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Student
	for _, s := range f.byID {
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		}
		if filter.BatchNo != nil && s.BatchNo != *filter.BatchNo {
			continue
		}
		if filter.WithDue && !s.DueAmount.IsPositive() {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStudents) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	list, _ := f.List(ctx, repository.StudentsFilter{Role: &role})
	return len(list), nil
}

func (f *fakeStudents) CourseCounts(ctx context.Context) ([]repository.CourseCount, error) {
	role := domain.RoleStudent
	list, _ := f.List(ctx, repository.StudentsFilter{Role: &role})
	counts := map[string]int{}
	for _, s := range list {
		counts[s.Course]++
	}
	var out []repository.CourseCount
	for course, n := range counts {
		out = append(out, repository.CourseCount{Course: course, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Course < out[j].Course })
	return out, nil
}

func (f *fakeStudents) stored(id string) domain.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

type fakeInstallments struct {
	mu        sync.Mutex
	items     []domain.Installment
	applies   int
	failApply int // 1-based apply call that fails, 0 never
	failErr   error
}

func (f *fakeInstallments) ListByStudent(ctx context.Context, studentID string) ([]domain.Installment, error) {
	return f.list(studentID, false), nil
}

func (f *fakeInstallments) ListOutstanding(ctx context.Context, studentID string) ([]domain.Installment, error) {
	return f.list(studentID, true), nil
}

func (f *fakeInstallments) list(studentID string, outstanding bool) []domain.Installment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Installment
	for _, in := range f.items {
		if in.StudentID != studentID || (outstanding && in.Status == domain.InstallmentPaid) {
			continue
		}
		out = append(out, in)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out
}

func (f *fakeInstallments) ApplyAllocation(ctx context.Context, in domain.Installment, previous decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies++
	if f.failApply != 0 && f.applies == f.failApply {
		return f.failErr
	}
	for i := range f.items {
		stored := &f.items[i]
		if stored.ID != in.ID {
			continue
		}
		if !stored.Amount.Equal(previous) || stored.Status == domain.InstallmentPaid {
			return domain.ErrStaleWrite
		}
		stored.Amount = in.Amount
		stored.Status = in.Status
		return nil
	}
	return domain.ErrStaleWrite
}

func (f *fakeInstallments) ListDue(ctx context.Context, filter repository.InstallmentsFilter) ([]repository.DueInstallment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.DueInstallment
	for _, in := range f.items {
		if filter.StudentID != nil && in.StudentID != *filter.StudentID {
			continue
		}
		if filter.Status != nil && in.Status != *filter.Status {
			continue
		}
		if filter.DueBefore != nil && in.DueDate.After(*filter.DueBefore) {
			continue
		}
		out = append(out, repository.DueInstallment{Installment: in})
	}
	return out, nil
}

func (f *fakeInstallments) CountByStatus(ctx context.Context, status domain.InstallmentStatus) (int, error) {
	list, _ := f.ListDue(ctx, repository.InstallmentsFilter{Status: &status})
	return len(list), nil
}

func (f *fakeInstallments) total(studentID string) decimal.Decimal {
	sum := decimal.Zero
	for _, in := range f.list(studentID, false) {
		sum = sum.Add(in.Amount)
	}
	return sum
}

type fakePayments struct {
	mu       sync.Mutex
	items    []domain.Payment
	creates  int
	failWith error
}

func (f *fakePayments) Create(ctx context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failWith != nil {
		return f.failWith
	}
	for _, existing := range f.items {
		if existing.PaymentID == p.PaymentID {
			return domain.ErrDuplicatePaymentID
		}
		if existing.TransactionID == p.TransactionID {
			return domain.ErrDuplicateTransaction
		}
	}
	f.items = append(f.items, *p)
	return nil
}

func (f *fakePayments) find(match func(domain.Payment) bool) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.items {
		if match(p) {
			cp := p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (f *fakePayments) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return f.find(func(p domain.Payment) bool { return p.ID == id })
}

func (f *fakePayments) GetByTransactionID(ctx context.Context, id string) (*domain.Payment, error) {
	return f.find(func(p domain.Payment) bool { return p.TransactionID == id })
}

func (f *fakePayments) Latest(ctx context.Context, studentID string) (*domain.Payment, error) {
	list, _ := f.ListByStudent(ctx, studentID)
	if len(list) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return &list[0], nil
}

func (f *fakePayments) ListByStudent(ctx context.Context, studentID string) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payment
	for _, p := range f.items {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaymentDate.After(out[j].PaymentDate) })
	return out, nil
}

func (f *fakePayments) matches(p domain.Payment, filter repository.PaymentsFilter) bool {
	if filter.StudentID != nil && p.StudentID != *filter.StudentID {
		return false
	}
	if filter.From != nil && p.PaymentDate.Before(*filter.From) {
		return false
	}
	if filter.To != nil && !p.PaymentDate.Before(*filter.To) {
		return false
	}
	return true
}

func (f *fakePayments) List(ctx context.Context, filter repository.PaymentsFilter) ([]repository.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.PaymentRecord
	for _, p := range f.items {
		if f.matches(p, filter) {
			out = append(out, repository.PaymentRecord{Payment: p})
		}
	}
	return out, nil
}

func (f *fakePayments) Sum(ctx context.Context, filter repository.PaymentsFilter) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, p := range f.items {
		if f.matches(p, filter) {
			sum = sum.Add(p.PaidAmount)
		}
	}
	return sum, nil
}

func (f *fakePayments) HasMoreThan(ctx context.Context, limit int64, filter repository.PaymentsFilter) (bool, error) {
	list, _ := f.List(ctx, filter)
	return int64(len(list)) > limit, nil
}

func (f *fakePayments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// sequenceIDs returns a generator that yields ids in order, then repeats the last one.
func sequenceIDs(ids ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id, nil
	}
}

type recordedEvent struct {
	studentID string
	payload   any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) record(studentID string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{studentID: studentID, payload: payload})
}

func (f *fakeNotifier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
