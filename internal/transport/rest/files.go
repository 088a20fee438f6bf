package rest

import (
	"errors"
	"log"
	"net/http"

	"dhronas-fees/internal/clients"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	path, name, err := h.files.Resolve(chi.URLParam(r, "file"))
	if errors.Is(err, clients.ErrFileNotFound) {
		ErrorNotFound(w, "file not found")
		return
	}
	if err != nil {
		log.Printf("[HTTP] serveFile error: %v", err)
		ErrorInternal(w, "failed to read file")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		ErrorNotFound(w, "websocket notifications are disabled")
		return
	}
	h.hub.HandleWebSocket(w, r, who.StudentID())
}
