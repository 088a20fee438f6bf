package rest

import (
	"errors"
	"log"
	"net/http"

	"dhronas-fees/internal/domain"

	"github.com/go-chi/chi/v5/middleware"
)

// writeError maps service errors onto the response envelope. Anything not
// recognised is logged and reported as a bare internal error.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		verr    *domain.ValidationError
		partial *domain.PartialAllocationError
	)

	switch {
	case errors.As(err, &verr):
		Error(w, verr.Error(), "validation_failed", http.StatusBadRequest, map[string]interface{}{"fields": verr.Fields})
	case errors.As(err, &partial):
		log.Printf("[HTTP] %s partial allocation (request %s): %v", op, middleware.GetReqID(r.Context()), err)
		Error(w, "Payment was only partially recorded", "partial_allocation", http.StatusInternalServerError, map[string]interface{}{
			"studentId": partial.StudentID,
			"stage":     partial.Stage,
			"applied":   partial.Applied,
			"total":     partial.Total,
		})
	case errors.Is(err, domain.ErrInvalidCredentials):
		Error(w, "Invalid credentials", "invalid_credentials", http.StatusUnauthorized, nil)
	case errors.Is(err, domain.ErrInvalidResetToken):
		Error(w, "Password reset token is invalid or has expired", "invalid_token", http.StatusBadRequest, nil)
	case errors.Is(err, domain.ErrEnrollmentExpired):
		Error(w, "Enrollment link has expired", "link_expired", http.StatusGone, nil)
	case errors.Is(err, domain.ErrForbidden):
		ErrorForbidden(w, "Access denied")
	case errors.Is(err, domain.ErrStudentNotFound):
		ErrorNotFound(w, "Student not found")
	case errors.Is(err, domain.ErrPaymentNotFound):
		ErrorNotFound(w, "Payment not found")
	case errors.Is(err, domain.ErrEnrollmentNotFound):
		ErrorNotFound(w, "Pending student not found")
	case errors.Is(err, domain.ErrExportNotFound):
		ErrorNotFound(w, "export not found")
	case errors.Is(err, domain.ErrNotFound):
		ErrorNotFound(w, "Not found")
	case errors.Is(err, domain.ErrAllocationBusy):
		Error(w, "Another payment for this student is in progress, retry shortly", "allocation_in_progress", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrStaleWrite):
		Error(w, "The record was changed by another request, retry shortly", "conflict", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrConflict):
		Error(w, conflictMessage(err), "conflict", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrPaymentCreation):
		log.Printf("[HTTP] %s payment creation (request %s): %v", op, middleware.GetReqID(r.Context()), err)
		Error(w, "Could not create payment record", "payment_creation_failed", http.StatusInternalServerError, nil)
	default:
		log.Printf("[HTTP] %s error (request %s): %v", op, middleware.GetReqID(r.Context()), err)
		ErrorInternal(w, "Internal Server Error")
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return "Email already registered"
	case errors.Is(err, domain.ErrPhoneTaken):
		return "Phone number already registered"
	case errors.Is(err, domain.ErrAdminExists):
		return "Admin user already exists"
	case errors.Is(err, domain.ErrCourseExists):
		return "Course already exists"
	case errors.Is(err, domain.ErrTransactionOwnership):
		return "Transaction id belongs to another student"
	}
	return "Conflict"
}
