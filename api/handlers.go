package api

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/MrEthical07/authx/middleware"
	"github.com/go-chi/chi/v5"
)

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Auth-X API is running",
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(w, r, "username", "email", "password")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	res, err := h.svc.Register(r.Context(), authx.RegisterRequest{
		Username: f["username"],
		Email:    f["email"],
		Password: f["password"],
	})
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	h.setSessionCookie(w, res.Token)
	h.ok(w, http.StatusCreated, "User Created Successfully", nil)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(w, r, "email", "password")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	res, err := h.svc.Login(r.Context(), authx.LoginRequest{
		Email:    f["email"],
		Password: f["password"],
	})
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	h.setSessionCookie(w, res.Token)
	h.ok(w, http.StatusOK, "Login successfull", &res.Account)
}

// logout clears the cookie. A still-valid cookie is resolved only to attribute the
// audit event.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookie.Name); err == nil && c.Value != "" {
		if account, err := h.svc.ResolveSession(r.Context(), c.Value); err == nil {
			h.svc.Logout(r.Context(), account.ID)
		}
	}

	h.clearSessionCookie(w)
	h.ok(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	account, _ := middleware.AccountFromContext(r.Context())

	if _, err := h.svc.LogoutAll(r.Context(), account.ID); err != nil {
		h.fail(w, r, statusForSessionError(err), err)
		return
	}

	h.clearSessionCookie(w)
	h.ok(w, http.StatusOK, "Logged out from all sessions", nil)
}

func (h *handler) checkAuth(w http.ResponseWriter, r *http.Request) {
	account, _ := middleware.AccountFromContext(r.Context())
	user := h.svc.CheckAuth(r.Context(), account)
	h.ok(w, http.StatusOK, "Authenticated", &user)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(w, r, "token")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	if _, err := h.svc.VerifyEmail(r.Context(), authx.VerifyEmailRequest{Code: f["token"]}); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.ok(w, http.StatusOK, "Email verfied successfully", nil)
}

func (h *handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(w, r, "email")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	if err := h.svc.ResendVerification(r.Context(), authx.ResendVerificationRequest{Email: f["email"]}); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.ok(w, http.StatusOK, "Verification email sent", nil)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(w, r, "email")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), authx.ForgotPasswordRequest{Email: f["email"]}); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.ok(w, http.StatusOK, "Email sent !", nil)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(w, r, "password")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	err = h.svc.ResetPassword(r.Context(), authx.ResetPasswordRequest{
		Code:     chi.URLParam(r, "code"),
		Password: f["password"],
	})
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.ok(w, http.StatusOK, "Password Changed Successfully", nil)
}

func statusForSessionError(err error) int {
	switch authx.KindOf(err) {
	case authx.KindUnauthorized:
		return http.StatusUnauthorized
	case authx.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
