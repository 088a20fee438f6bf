package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "recordPayment", err)
		return
	}

	res, err := h.payments.RecordPayment(r.Context(), who, req.toService(r))
	if err != nil {
		writeError(w, r, "recordPayment", err)
		return
	}
	if res.Replayed {
		Success(w, "Payment already recorded", res)
		return
	}
	SuccessCreated(w, "Payment recorded successfully", res)
}

func (h *Handler) paymentHistory(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	payments, err := h.payments.History(r.Context(), who, chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, r, "paymentHistory", err)
		return
	}
	Success(w, "", payments)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	res, err := h.payments.Reconcile(r.Context(), who, chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, r, "reconcile", err)
		return
	}
	Success(w, "Balance reconciled", res)
}
