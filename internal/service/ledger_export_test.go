package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/domain"

	"github.com/xuri/excelize/v2"
)

func (f *fakeNotifier) NotifyExportProgress(ctx context.Context, userID, exportID string, progress float64, stage string) error {
	f.record(userID, stage)
	return nil
}

func (f *fakeNotifier) NotifyExportComplete(ctx context.Context, userID, exportID, url, filename string) error {
	f.record(userID, "complete:"+url)
	return nil
}

func (f *fakeNotifier) NotifyExportFailed(ctx context.Context, userID, exportID, errMsg string) error {
	f.record(userID, "failed")
	return nil
}

type memoryFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	failErr error
}

func (m *memoryFiles) Save(ctx context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return "", m.failErr
	}
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return name, nil
}

func (m *memoryFiles) URL(ctx context.Context, stored string) (string, error) {
	return "/files/" + stored, nil
}

func (m *memoryFiles) only(t *testing.T) []byte {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.files) != 1 {
		t.Fatalf("expected one stored file, got %d", len(m.files))
	}
	for _, data := range m.files {
		return data
	}
	return nil
}

type exportFixture struct {
	payments *fakePayments
	cache    *clients.MemoryCache
	files    *memoryFiles
	notifier *fakeNotifier
	svc      *LedgerExportService
	exports  *ExportService
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	f := newPaymentFixture()
	f.ledger.now = func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }
	if _, err := f.svc.RecordPayment(context.Background(), admin, pay("150")); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	x := &exportFixture{
		payments: f.payments,
		cache:    clients.NewMemoryCache(),
		files:    &memoryFiles{},
		notifier: &fakeNotifier{},
	}
	x.svc = NewLedgerExportService(x.payments, x.cache, x.files, x.notifier, 10)
	x.exports = NewExportService(x.cache)
	return x
}

func TestLedgerExport_WritesWorkbook(t *testing.T) {
	x := newExportFixture(t)
	ctx := context.Background()

	id, err := x.svc.StartLedgerExport(ctx, admin, LedgerExportRequest{Columns: []string{"paymentId", "paidAmount", "gst"}, Month: "2025-01"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	x.svc.Wait()

	wb, err := excelize.OpenReader(bytes.NewReader(x.files.only(t)))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	rows, err := wb.GetRows("Payments")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %v", rows)
	}
	if rows[0][0] != "Payment ID" || rows[0][1] != "Amount" || rows[0][2] != "GST" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "150" || rows[1][2] != "22.88" {
		t.Errorf("unexpected row %v", rows[1])
	}

	view, err := x.exports.GetExport(ctx, admin, id)
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	if view.Progress != 100 || view.FileURL == nil || view.Stage != "ready" {
		t.Errorf("unexpected status: %+v", view)
	}
	if view.CreatedAt != "just now" {
		t.Errorf("unexpected created_at %q", view.CreatedAt)
	}

	last := x.notifier.events[len(x.notifier.events)-1]
	if last.studentID != admin.StudentID() || last.payload != "complete:"+*view.FileURL {
		t.Errorf("unexpected final event: %+v", last)
	}
}

func TestLedgerExport_Validation(t *testing.T) {
	x := newExportFixture(t)
	ctx := context.Background()
	var verr *domain.ValidationError

	if _, err := x.svc.StartLedgerExport(ctx, admin, LedgerExportRequest{Columns: []string{"password"}}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for unknown column, got %v", err)
	}
	if _, err := x.svc.StartLedgerExport(ctx, admin, LedgerExportRequest{Month: "01-2025"}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for bad month, got %v", err)
	}
	if _, err := x.svc.StartLedgerExport(ctx, domain.NewIdentity("STU-1", domain.RoleStudent), LedgerExportRequest{}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	x.svc.maxRows = 0
	if _, err := x.svc.StartLedgerExport(ctx, admin, LedgerExportRequest{}); !errors.As(err, &verr) || verr.Fields[0].Field != "filters" {
		t.Errorf("expected row limit error, got %v", err)
	}
}

func TestLedgerExport_FailureIsReported(t *testing.T) {
	x := newExportFixture(t)
	ctx := context.Background()
	x.files.failErr = errors.New("disk full")

	id, err := x.svc.StartLedgerExport(ctx, admin, LedgerExportRequest{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	x.svc.Wait()

	view, err := x.exports.GetExport(ctx, admin, id)
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	if view.Stage != "failed" || view.FileURL != nil || view.Error == "disk full" {
		t.Errorf("unexpected status: %+v", view)
	}
}

func TestExportService_ScopedToOwner(t *testing.T) {
	x := newExportFixture(t)
	ctx := context.Background()

	id, err := x.svc.StartLedgerExport(ctx, admin, LedgerExportRequest{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	x.svc.Wait()

	other := domain.NewIdentity("ADMIN-00000002", domain.RoleAdmin)
	if _, err := x.exports.GetExport(ctx, other, id); !errors.Is(err, domain.ErrExportNotFound) {
		t.Errorf("expected ErrExportNotFound for another user, got %v", err)
	}
	list, err := x.exports.GetExports(ctx, other)
	if err != nil || len(list) != 0 {
		t.Errorf("expected no exports for another user, got %v %v", list, err)
	}

	mine, err := x.exports.GetExports(ctx, admin)
	if err != nil || len(mine) != 1 || mine[0].Key != id {
		t.Errorf("expected own export, got %v %v", mine, err)
	}
}

func TestHumanizeAgo(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		10 * time.Second: "just now",
		time.Minute:      "1 minute ago",
		5 * time.Minute:  "5 minutes ago",
		3 * time.Hour:    "3 hours ago",
		48 * time.Hour:   "2 days ago",
	}
	for ago, want := range cases {
		if got := humanizeAgo(now.Add(-ago), now); got != want {
			t.Errorf("%v: expected %q, got %q", ago, want, got)
		}
	}
	if got := humanizeAgo(now.AddDate(0, -2, 0), now); got != "01 Apr 2025 12:00" {
		t.Errorf("unexpected absolute date %q", got)
	}
}
