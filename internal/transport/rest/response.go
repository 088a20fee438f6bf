package rest

import (
	"encoding/json"
	"log"
	"net/http"
)

type APIResponse struct {
	ErrorCode int         `json:"error_code"`
	Status    string      `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode int, reason, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Reason:    reason,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[HTTP] write response error: %v", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "", "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "", "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "", "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message, reason string, httpStatus int, data interface{}) {
	Response(w, message, data, httpStatus, reason, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, "bad_request", http.StatusBadRequest, nil)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, "unauthorized", http.StatusUnauthorized, nil)
}

func ErrorForbidden(w http.ResponseWriter, message string) {
	Error(w, message, "forbidden", http.StatusForbidden, nil)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, "not_found", http.StatusNotFound, nil)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, "internal_error", http.StatusInternalServerError, nil)
}

// Attachment sends data as a file download.
func Attachment(w http.ResponseWriter, contentType, fileName string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[HTTP] write attachment error: %v", err)
	}
}
