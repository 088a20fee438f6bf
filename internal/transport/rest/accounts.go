package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "login", err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, "login", err)
		return
	}
	Success(w, "Login successful", res)
}

func (h *Handler) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "createAdmin", err)
		return
	}

	id, err := h.accounts.CreateAdmin(r.Context(), req.toService())
	if err != nil {
		writeError(w, r, "createAdmin", err)
		return
	}
	SuccessCreated(w, "Admin user created successfully", map[string]string{"adminId": id})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "forgotPassword", err)
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, "forgotPassword", err)
		return
	}
	Success(w, "If the email is registered, a password reset link has been sent", nil)
}

func (h *Handler) validateResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.ValidateResetToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(w, r, "validateResetToken", err)
		return
	}
	Success(w, "Token is valid", nil)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "resetPassword", err)
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		writeError(w, r, "resetPassword", err)
		return
	}
	Success(w, "Password has been reset successfully", nil)
}
