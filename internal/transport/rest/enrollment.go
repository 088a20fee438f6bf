package rest

import (
	"net/http"
	"strings"

	"dhronas-fees/internal/domain"
)

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var body enrollRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, "enroll", err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, r, "enroll", err)
		return
	}

	res, err := h.enrollments.Enroll(r.Context(), who, req)
	if err != nil {
		writeError(w, r, "enroll", err)
		return
	}
	SuccessCreated(w, "Student enrolled successfully", res)
}

func (h *Handler) generateEnrollmentLink(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	link, err := h.enrollments.GenerateEnrollmentLink(r.Context(), who)
	if err != nil {
		writeError(w, r, "generateEnrollmentLink", err)
		return
	}
	Success(w, "", link)
}

func (h *Handler) submitEnrollment(w http.ResponseWriter, r *http.Request) {
	var req submitEnrollmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "submitEnrollment", err)
		return
	}

	if err := h.enrollments.SubmitEnrollment(r.Context(), req.toService()); err != nil {
		writeError(w, r, "submitEnrollment", err)
		return
	}
	Success(w, "Enrollment submitted for approval", nil)
}

func (h *Handler) approveStudent(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "approveStudent", err)
		return
	}

	res, err := h.enrollments.ApproveStudent(r.Context(), who, req.toService())
	if err != nil {
		writeError(w, r, "approveStudent", err)
		return
	}
	SuccessCreated(w, "Student approved successfully", res)
}

func (h *Handler) pendingStudents(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	pending, err := h.enrollments.ListPending(r.Context(), who)
	if err != nil {
		writeError(w, r, "pendingStudents", err)
		return
	}
	Success(w, "", pending)
}

func (h *Handler) exportPendingCSV(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	data, err := h.enrollments.ExportPendingCSV(r.Context(), who)
	if err != nil {
		writeError(w, r, "exportPendingCSV", err)
		return
	}
	Attachment(w, "text/csv", "pending_students.csv", data)
}

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.enrollments.ListCourses(r.Context())
	if err != nil {
		writeError(w, r, "listCourses", err)
		return
	}
	Success(w, "", courses)
}

func (h *Handler) addCourse(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var req courseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "addCourse", err)
		return
	}

	course, err := h.enrollments.AddCourse(r.Context(), who, req.Name)
	if err != nil {
		writeError(w, r, "addCourse", err)
		return
	}
	SuccessCreated(w, "Course added", course)
}

func (h *Handler) studentByPhone(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeError(w, r, "studentByPhone", domain.NewValidationError("phone", "phone is required"))
		return
	}

	id, err := h.enrollments.FindStudentByPhone(r.Context(), who, phone)
	if err != nil {
		writeError(w, r, "studentByPhone", err)
		return
	}
	Success(w, "", map[string]string{"studentId": id})
}
