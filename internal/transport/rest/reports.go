package rest

import (
	"net/http"

	"dhronas-fees/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) invoicesReport(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	file, err := h.reports.InvoicesCSV(r.Context(), who, r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, r, "invoicesReport", err)
		return
	}
	Attachment(w, "text/csv", file.Name, file.Data)
}

func (h *Handler) pendingPaymentsReport(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	report, err := h.reports.PendingPayments(r.Context(), who, r.URL.Query().Get("batch"))
	if err != nil {
		writeError(w, r, "pendingPaymentsReport", err)
		return
	}
	Success(w, "", map[string]interface{}{"report": report})
}

func (h *Handler) courseEnrollmentReport(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	courses, err := h.reports.CourseEnrollment(r.Context(), who)
	if err != nil {
		writeError(w, r, "courseEnrollmentReport", err)
		return
	}
	Success(w, "", map[string]interface{}{"courses": courses})
}

func (h *Handler) monthlyPaymentsReport(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	total, err := h.reports.MonthlyPayments(r.Context(), who)
	if err != nil {
		writeError(w, r, "monthlyPaymentsReport", err)
		return
	}
	Success(w, "", map[string]interface{}{"totalPayments": total})
}

func (h *Handler) exportStudentData(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	file, err := h.reports.StudentDataCSV(r.Context(), who, chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, r, "exportStudentData", err)
		return
	}
	Attachment(w, "text/csv", file.Name, file.Data)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	stats, err := h.reports.Stats(r.Context(), who)
	if err != nil {
		writeError(w, r, "stats", err)
		return
	}
	Success(w, "", stats)
}

func (h *Handler) logDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "logDownload", err)
		return
	}

	err := h.reports.LogDownload(r.Context(), service.DownloadLogRequest{
		StudentID:     req.StudentID,
		ActionType:    req.ActionType,
		InvoiceNumber: req.InvoiceNumber,
	})
	if err != nil {
		writeError(w, r, "logDownload", err)
		return
	}
	Success(w, "Download log saved successfully", nil)
}
