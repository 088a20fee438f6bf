package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/repository"
	"dhronas-fees/internal/service"
	"dhronas-fees/internal/transport/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type AccountService interface {
	Login(ctx context.Context, identifier, password string) (*service.LoginResult, error)
	CreateAdmin(ctx context.Context, req service.CreateAdminRequest) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type PaymentService interface {
	RecordPayment(ctx context.Context, who domain.Identity, req service.RecordPaymentRequest) (*service.PaymentResult, error)
	History(ctx context.Context, who domain.Identity, studentID string) ([]domain.Payment, error)
	Reconcile(ctx context.Context, who domain.Identity, studentID string) (*service.ReconcileResult, error)
}

type EnrollmentService interface {
	Enroll(ctx context.Context, who domain.Identity, req service.EnrollRequest) (*service.EnrollmentResult, error)
	GenerateEnrollmentLink(ctx context.Context, who domain.Identity) (*service.EnrollmentLink, error)
	SubmitEnrollment(ctx context.Context, req service.SubmitEnrollmentRequest) error
	ApproveStudent(ctx context.Context, who domain.Identity, req service.ApproveRequest) (*service.EnrollmentResult, error)
	ListPending(ctx context.Context, who domain.Identity) ([]domain.PendingStudent, error)
	ExportPendingCSV(ctx context.Context, who domain.Identity) ([]byte, error)
	ListCourses(ctx context.Context) ([]domain.Course, error)
	AddCourse(ctx context.Context, who domain.Identity, name string) (*domain.Course, error)
	FindStudentByPhone(ctx context.Context, who domain.Identity, phone string) (string, error)
}

type DashboardService interface {
	StudentDashboard(ctx context.Context, who domain.Identity, studentID string) (*service.StudentDashboard, error)
	AdminDashboard(ctx context.Context, who domain.Identity) (*service.AdminDashboard, error)
	Notifications(ctx context.Context, who domain.Identity) ([]repository.DueInstallment, error)
	InvoiceByPayment(ctx context.Context, who domain.Identity, paymentID string) (*service.Invoice, error)
	LatestInvoiceByPhone(ctx context.Context, who domain.Identity, phone string) (*service.Invoice, error)
	EmailInvoice(ctx context.Context, who domain.Identity, paymentID string, pdf []byte) error
}

type ReportService interface {
	InvoicesCSV(ctx context.Context, who domain.Identity, month string) (*service.CSVFile, error)
	PendingPayments(ctx context.Context, who domain.Identity, batch string) ([]service.PendingPaymentEntry, error)
	CourseEnrollment(ctx context.Context, who domain.Identity) (map[string]int, error)
	MonthlyPayments(ctx context.Context, who domain.Identity) (decimal.Decimal, error)
	Stats(ctx context.Context, who domain.Identity) (*service.Stats, error)
	StudentDataCSV(ctx context.Context, who domain.Identity, studentID string) (*service.CSVFile, error)
	LogDownload(ctx context.Context, req service.DownloadLogRequest) error
}

type LedgerExporter interface {
	StartLedgerExport(ctx context.Context, who domain.Identity, req service.LedgerExportRequest) (string, error)
}

type FileResolver interface {
	Resolve(stored string) (path, downloadName string, err error)
}

type WebSocketHub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, userID string)
}

// Services bundles the handler dependencies. Files and Hub are optional.
type Services struct {
	Accounts    AccountService
	Payments    PaymentService
	Enrollments EnrollmentService
	Dashboards  DashboardService
	Reports     ReportService
	Exporter    LedgerExporter
	ExportList  ExportListService
	Files       FileResolver
	Hub         WebSocketHub
}

type Handler struct {
	accounts    AccountService
	payments    PaymentService
	enrollments EnrollmentService
	dashboards  DashboardService
	reports     ReportService
	exporter    LedgerExporter
	exportList  ExportListService
	files       FileResolver
	hub         WebSocketHub
}

func NewHandler(s Services) *Handler {
	return &Handler{
		accounts:    s.Accounts,
		payments:    s.Payments,
		enrollments: s.Enrollments,
		dashboards:  s.Dashboards,
		reports:     s.Reports,
		exporter:    s.Exporter,
		exportList:  s.ExportList,
		files:       s.Files,
		hub:         s.Hub,
	}
}

// InitRouterWithAuth mounts the public routes and, behind authMiddleware,
// the authenticated ones.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Dhronas fees API")
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		Success(w, "ok", nil)
	})

	r.Post("/login", h.login)
	r.Post("/create-admin", h.createAdmin)
	r.Post("/forgot-password", h.forgotPassword)
	r.Get("/reset-password/{token}", h.validateResetToken)
	r.Post("/reset-password/{token}", h.resetPassword)
	r.Post("/students/submit-enrollment", h.submitEnrollment)
	r.Get("/courses", h.listCourses)
	r.Post("/log-download", h.logDownload)
	if h.files != nil {
		r.Get("/files/{file}", h.serveFile)
	}

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Get("/ws", h.serveWebSocket)
		r.Get("/dashboard", h.studentDashboard)
		r.Get("/student-dashboard", h.studentDashboard)
		r.Get("/notifications", h.notifications)
		r.Get("/payments/{studentId}", h.paymentHistory)
		r.Get("/invoices/by-payment/{paymentId}", h.invoiceByPayment)
		r.Get("/exports", h.listExports)
		r.Get("/exports/{export_id}", h.getExport)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin())

			r.Post("/payments", h.recordPayment)
			r.Post("/pay", h.recordPayment)
			r.Post("/students/{studentId}/reconcile", h.reconcile)

			r.Post("/enroll", h.enroll)
			r.Get("/students/generate-enrollment-link", h.generateEnrollmentLink)
			r.Post("/students/approve-student", h.approveStudent)
			r.Get("/students/by-phone", h.studentByPhone)
			r.Get("/pending-students", h.pendingStudents)
			r.Get("/export-pending-csv", h.exportPendingCSV)
			r.Post("/courses", h.addCourse)

			r.Get("/admin-dashboard", h.adminDashboard)
			r.Get("/stats", h.stats)
			r.Post("/invoices/generate", h.generateInvoice)
			r.Get("/invoice/{phone}", h.invoiceByPhone)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/invoices", h.invoicesReport)
				r.Get("/pending-payments", h.pendingPaymentsReport)
				r.Get("/course-enrollment", h.courseEnrollmentReport)
				r.Get("/monthly-payments", h.monthlyPaymentsReport)
				r.Get("/export-data/{studentId}", h.exportStudentData)
			})

			r.Post("/exports/payments", h.exportPayments)
		})
	})

	return r
}

// identity returns the caller or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	who, err := auth.GetIdentity(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return domain.Identity{}, false
	}
	return who, true
}
