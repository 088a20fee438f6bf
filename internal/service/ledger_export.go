package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

type LedgerSource interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]repository.PaymentRecord, error)
	HasMoreThan(ctx context.Context, limit int64, f repository.PaymentsFilter) (bool, error)
}

// ExportStatusStore is implemented by clients.RedisClient and clients.MemoryCache.
type ExportStatusStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// FileStore is implemented by clients.StorageClient (local disk) and clients.S3Client.
type FileStore interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	URL(ctx context.Context, stored string) (string, error)
}

type ExportNotifier interface {
	NotifyExportProgress(ctx context.Context, userID, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, userID, exportID, url, filename string) error
	NotifyExportFailed(ctx context.Context, userID, exportID, errMsg string) error
}

type ExportStatus struct {
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	UserID   string         `json:"user_id"`
	Filters  map[string]any `json:"filters"`
	Progress float64        `json:"progress"`
	Stage    string         `json:"stage,omitempty"`
	FileURL  *string        `json:"file_url"`
	Error    string         `json:"error,omitempty"`
	Created  time.Time      `json:"created_at"`
}

const (
	exportTTL       = 20 * time.Minute
	exportChunkSize = 1000
)

func userExportsKey(userID string) string {
	return "exports:user:" + userID
}

type LedgerColumn struct {
	Header string
	Value  func(r repository.PaymentRecord) any
}

func gstValue(r repository.PaymentRecord, pick func(domain.Tax) float64) any {
	if r.GST == nil {
		return ""
	}
	return pick(*r.GST)
}

var ledgerColumns = map[string]LedgerColumn{
	"paymentId": {
		Header: "Payment ID",
		Value:  func(r repository.PaymentRecord) any { return r.PaymentID },
	},
	"transactionId": {
		Header: "Transaction ID",
		Value:  func(r repository.PaymentRecord) any { return r.TransactionID },
	},
	"studentId": {
		Header: "Student ID",
		Value:  func(r repository.PaymentRecord) any { return r.StudentID },
	},
	"studentName": {
		Header: "Student",
		Value:  func(r repository.PaymentRecord) any { return r.StudentName },
	},
	"course": {
		Header: "Course",
		Value:  func(r repository.PaymentRecord) any { return r.Course },
	},
	"batchNo": {
		Header: "Batch",
		Value:  func(r repository.PaymentRecord) any { return r.BatchNo },
	},
	"paymentDate": {
		Header: "Payment date",
		Value:  func(r repository.PaymentRecord) any { return r.PaymentDate.Format("2006-01-02 15:04:05") },
	},
	"paidAmount": {
		Header: "Amount",
		Value:  func(r repository.PaymentRecord) any { return r.PaidAmount.InexactFloat64() },
	},
	"gstRate": {
		Header: "GST rate",
		Value: func(r repository.PaymentRecord) any {
			return gstValue(r, func(t domain.Tax) float64 { return t.Rate.InexactFloat64() })
		},
	},
	"gst": {
		Header: "GST",
		Value: func(r repository.PaymentRecord) any {
			return gstValue(r, func(t domain.Tax) float64 { return t.TotalGSTAmount.InexactFloat64() })
		},
	},
	"cgst": {
		Header: "CGST",
		Value: func(r repository.PaymentRecord) any {
			return gstValue(r, func(t domain.Tax) float64 { return t.CGST.InexactFloat64() })
		},
	},
	"sgst": {
		Header: "SGST",
		Value: func(r repository.PaymentRecord) any {
			return gstValue(r, func(t domain.Tax) float64 { return t.SGST.InexactFloat64() })
		},
	},
	"description": {
		Header: "Description",
		Value:  func(r repository.PaymentRecord) any { return r.Description },
	},
}

var defaultLedgerColumns = []string{"paymentId", "studentName", "paymentDate", "paidAmount", "gst"}

type LedgerExportRequest struct {
	Columns []string
	Month   string
	Batch   string
}

type LedgerExportService struct {
	payments LedgerSource
	statuses ExportStatusStore
	files    FileStore
	notifier ExportNotifier
	maxRows  int64
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewLedgerExportService(
	payments LedgerSource,
	statuses ExportStatusStore,
	files FileStore,
	notifier ExportNotifier,
	maxRows int64,
) *LedgerExportService {
	if maxRows <= 0 {
		maxRows = 100_000
	}
	return &LedgerExportService{
		payments: payments,
		statuses: statuses,
		files:    files,
		notifier: notifier,
		maxRows:  maxRows,
		now:      time.Now,
	}
}

func (s *LedgerExportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.statuses.Set(ctx, st.Key, string(data), exportTTL); err != nil {
		return err
	}
	return s.statuses.SAdd(ctx, userExportsKey(st.UserID), st.Key)
}

func (s *LedgerExportService) progress(ctx context.Context, st *ExportStatus, progress float64, stage string) {
	st.Progress = progress
	st.Stage = stage
	if err := s.saveStatus(ctx, st); err != nil {
		log.Printf("[EXPORT] save status %s: %v", st.Key, err)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyExportProgress(ctx, st.UserID, st.Key, progress, stage)
	}
}

func (s *LedgerExportService) fail(ctx context.Context, st *ExportStatus, err error) {
	log.Printf("[EXPORT] %s failed: %v", st.Key, err)
	st.Stage = "failed"
	st.Error = "export failed"
	if err := s.saveStatus(ctx, st); err != nil {
		log.Printf("[EXPORT] save status %s: %v", st.Key, err)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyExportFailed(ctx, st.UserID, st.Key, st.Error)
	}
}

func (req LedgerExportRequest) filter() (repository.PaymentsFilter, []string, error) {
	var f repository.PaymentsFilter
	v := &domain.ValidationError{}

	columns := req.Columns
	if len(columns) == 0 {
		columns = defaultLedgerColumns
	}
	for _, c := range columns {
		if _, ok := ledgerColumns[c]; !ok {
			v.Add("columns", fmt.Sprintf("unknown column %q", c))
		}
	}
	if month := strings.TrimSpace(req.Month); month != "" {
		from, to, err := parseMonth(month)
		if err != nil {
			v.Add("month", "month must be in YYYY-MM format")
		} else {
			f.From, f.To = &from, &to
		}
	}
	if batch := strings.TrimSpace(req.Batch); batch != "" {
		f.BatchNo = &batch
	}
	return f, columns, v.OrNil()
}

// StartLedgerExport registers an export and builds it in the background.
// Progress is reported through the status store and the notifier.
func (s *LedgerExportService) StartLedgerExport(ctx context.Context, who domain.Identity, req LedgerExportRequest) (string, error) {
	if !who.IsAdmin() {
		return "", domain.ErrForbidden
	}
	filter, columns, err := req.filter()
	if err != nil {
		return "", err
	}

	tooMany, err := s.payments.HasMoreThan(ctx, s.maxRows, filter)
	if err != nil {
		return "", fmt.Errorf("count payments: %w", err)
	}
	if tooMany {
		return "", domain.NewValidationError("filters", fmt.Sprintf("export is limited to %d rows, narrow the filters", s.maxRows))
	}

	status := &ExportStatus{
		Key:     "exports:" + uuid.NewString(),
		Type:    "payments",
		UserID:  who.StudentID(),
		Filters: map[string]any{"month": req.Month, "batch": req.Batch, "fields": columns},
		Stage:   "queued",
		Created: s.now(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		return "", fmt.Errorf("save export status: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.Background(), status, columns, filter)
	}()

	return status.Key, nil
}

// Wait blocks until every running export has finished.
func (s *LedgerExportService) Wait() {
	s.wg.Wait()
}

func (s *LedgerExportService) run(ctx context.Context, status *ExportStatus, selected []string, filter repository.PaymentsFilter) {
	records, err := s.payments.List(ctx, filter)
	if err != nil {
		s.fail(ctx, status, err)
		return
	}

	cols := make([]LedgerColumn, 0, len(selected))
	for _, key := range selected {
		cols = append(cols, ledgerColumns[key])
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Payments"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		s.fail(ctx, status, err)
		return
	}
	_ = f.SetDocProps(&excelize.DocProperties{Creator: status.UserID, Title: "Payment ledger"})

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(records)
	for i, r := range records {
		for colIdx, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(r))
		}

		if (i+1)%exportChunkSize == 0 || i == total-1 {
			// 100 is reserved for when the file URL is ready
			progress := math.Min(math.Round(float64(i+1)/float64(total)*100), 95)
			s.progress(ctx, status, progress, "generating")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.fail(ctx, status, err)
		return
	}

	fileName := fmt.Sprintf("payments_%s.xlsx", s.now().Format("20060102_150405"))
	s.progress(ctx, status, 95, "uploading")

	stored, err := s.files.Save(ctx, fileName, buf.Bytes())
	if err != nil {
		s.fail(ctx, status, err)
		return
	}
	url, err := s.files.URL(ctx, stored)
	if err != nil {
		s.fail(ctx, status, err)
		return
	}

	status.FileURL = &url
	s.progress(ctx, status, 100, "ready")
	if s.notifier != nil {
		_ = s.notifier.NotifyExportComplete(ctx, status.UserID, status.Key, url, fileName)
	}
	log.Printf("[EXPORT] %s ready: %d rows", status.Key, total)
}
