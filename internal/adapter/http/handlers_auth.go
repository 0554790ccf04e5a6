package http

import (
	"net/http"

	"github.com/bugspotter/demo-platform/internal/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// Login verifies admin credentials and returns an opaque bearer token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[loginRequest](w, r)
	if !ok {
		return
	}
	token, err := h.auth.Login(r.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		writeDomainError(w, err, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout revokes the caller's token.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "no token supplied")
		return
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		writeDomainError(w, err, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetupTOTP generates a fresh 2FA secret for the authenticated admin and
// returns the otpauth provisioning URL.
func (h *Handlers) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	url, err := h.auth.SetupTOTP(r.Context(), email)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"otpauth_url": url})
}

type confirmTOTPRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP enables 2FA once the admin proves their authenticator works.
func (h *Handlers) ConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	req, okBody := readJSON[confirmTOTPRequest](w, r)
	if !okBody {
		return
	}
	if err := h.auth.ConfirmTOTP(r.Context(), email, req.Code); err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
