package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/codechat-ai/codechat/internal/middleware"
	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/internal/service"
	"github.com/codechat-ai/codechat/internal/session"
	"github.com/codechat-ai/codechat/pkg/logger"
)

// AuthHandler handles registration, login and password recovery.
type AuthHandler struct {
	auth     *service.AuthService
	chat     *service.ChatService
	sessions *session.Manager
	identity *middleware.Identity
	logger   *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(
	auth *service.AuthService,
	chat *service.ChatService,
	sessions *session.Manager,
	identity *middleware.Identity,
	log *logger.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		chat:     chat,
		sessions: sessions,
		identity: identity,
		logger:   log,
	}
}

// Register handles POST /api/v1/auth/register. Registration does not
// sign the user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateDisplayName(req.DisplayName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, model.ErrDuplicateEmail.Error())
			return
		}
		h.logger.Error("registration failed")
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login. On success it sets the
// identity cookie and returns the signed-in view.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, model.ErrInvalidCredentials.Error())
			return
		}
		h.logger.Error("login failed")
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	value, err := h.identity.Encode(user.ID)
	if err != nil {
		h.logger.Error("failed to encode identity")
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.IdentityCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	sess := h.sessions.Get(user.ID)
	view, err := h.chat.SignIn(r.Context(), sess)
	if err != nil {
		h.logger.Error("failed to load conversations after sign-in")
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	view.User = user

	writeJSON(w, http.StatusOK, view)
}

// Logout handles POST /api/v1/auth/logout. It clears the session state
// and invalidates the identity cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r.Context()); user != nil {
		h.chat.SignOut(h.sessions.Get(user.ID))
		h.sessions.Drop(user.ID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.IdentityCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// RequestReset handles POST /api/v1/auth/password-reset/request. The
// raw token is returned to the caller, who owns out-of-band delivery.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req model.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("failed to create reset token")
		writeError(w, http.StatusInternalServerError, "failed to request reset")
		return
	}
	if token == nil {
		writeError(w, http.StatusNotFound, "email not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":      token.Token,
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	})
}

// ConfirmReset handles POST /api/v1/auth/password-reset/confirm.
func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req model.ResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.logger.Error("failed to reset password")
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
