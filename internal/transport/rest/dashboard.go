package rest

import (
	"io"
	"net/http"
	"strings"

	"dhronas-fees/internal/domain"

	"github.com/go-chi/chi/v5"
)

const maxInvoiceBytes = 10 << 20

// studentDashboard shows the caller's own dashboard. Admins pick the student
// with ?studentId=.
func (h *Handler) studentDashboard(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	studentID := who.StudentID()
	if who.IsAdmin() {
		studentID = strings.TrimSpace(r.URL.Query().Get("studentId"))
		if studentID == "" {
			writeError(w, r, "studentDashboard", domain.NewValidationError("studentId", "studentId is required"))
			return
		}
	}

	dash, err := h.dashboards.StudentDashboard(r.Context(), who, studentID)
	if err != nil {
		writeError(w, r, "studentDashboard", err)
		return
	}
	Success(w, "", dash)
}

func (h *Handler) adminDashboard(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	dash, err := h.dashboards.AdminDashboard(r.Context(), who)
	if err != nil {
		writeError(w, r, "adminDashboard", err)
		return
	}
	Success(w, "", dash)
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	list, err := h.dashboards.Notifications(r.Context(), who)
	if err != nil {
		writeError(w, r, "notifications", err)
		return
	}
	Success(w, "", map[string]interface{}{"pendingInstallments": list})
}

func (h *Handler) invoiceByPayment(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	inv, err := h.dashboards.InvoiceByPayment(r.Context(), who, chi.URLParam(r, "paymentId"))
	if err != nil {
		writeError(w, r, "invoiceByPayment", err)
		return
	}
	Success(w, "", inv)
}

func (h *Handler) invoiceByPhone(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	inv, err := h.dashboards.LatestInvoiceByPhone(r.Context(), who, chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, r, "invoiceByPhone", err)
		return
	}
	Success(w, "", inv)
}

// generateInvoice takes a multipart upload with the rendered invoice in the
// "pdf" part and the internal payment id in "paymentId", and mails it.
func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxInvoiceBytes)
	if err := r.ParseMultipartForm(maxInvoiceBytes); err != nil {
		writeError(w, r, "generateInvoice", domain.NewValidationError("pdf", "a multipart form with a pdf file is required"))
		return
	}

	var pdf []byte
	file, _, err := r.FormFile("pdf")
	if err == nil {
		defer file.Close()
		pdf, err = io.ReadAll(file)
		if err != nil {
			writeError(w, r, "generateInvoice", domain.NewValidationError("pdf", "could not read uploaded pdf"))
			return
		}
	}

	if err := h.dashboards.EmailInvoice(r.Context(), who, r.FormValue("paymentId"), pdf); err != nil {
		writeError(w, r, "generateInvoice", err)
		return
	}
	Success(w, "Invoice sent successfully", nil)
}
