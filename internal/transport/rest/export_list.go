package rest

import (
	"context"
	"net/http"
	"strings"

	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/service"

	"github.com/go-chi/chi/v5"
)

type ExportListService interface {
	GetExports(ctx context.Context, who domain.Identity) ([]service.ExportView, error)
	GetExport(ctx context.Context, who domain.Identity, exportID string) (*service.ExportView, error)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	exports, err := h.exportList.GetExports(r.Context(), who)
	if err != nil {
		writeError(w, r, "listExports", err)
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	exportIDParam := chi.URLParam(r, "export_id")
	if exportIDParam == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}
	exportID := exportIDParam
	if !strings.HasPrefix(exportID, "exports:") {
		exportID = "exports:" + exportID
	}

	export, err := h.exportList.GetExport(r.Context(), who, exportID)
	if err != nil {
		writeError(w, r, "getExport", err)
		return
	}

	Success(w, "", export)
}
