package rest

import (
	"net/http"
)

func (h *Handler) exportPayments(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var req ledgerExportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "exportPayments", err)
		return
	}

	exportID, err := h.exporter.StartLedgerExport(r.Context(), who, req.toService())
	if err != nil {
		writeError(w, r, "exportPayments", err)
		return
	}

	SuccessAccepted(w, "Export queued", map[string]interface{}{"export_id": exportID})
}
