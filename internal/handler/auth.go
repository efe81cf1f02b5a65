package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/auth"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/service"
)

// Authenticator is the login workflow used by AuthHandler.
type Authenticator interface {
	Verify(ctx context.Context, username, password string) (*service.Verification, error)
	Complete(ctx context.Context, username, password string, v *service.Verification) (*service.LoginResult, error)
	Account(ctx context.Context, id int64) (*model.Account, error)
	LinkedLogins(ctx context.Context, id int64) ([]model.LinkedLogin, error)
	Capabilities() service.Capabilities
}

type AuthHandler struct {
	svc           Authenticator
	sessionTTL    time.Duration
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(svc Authenticator, sessionTTL time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:           svc,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User    *model.Account `json:"user"`
	Created bool           `json:"created"`
}

// loginFailed is the only thing a rejected login ever sees.
var loginFailed = ErrorResponse{Error: "unauthorized", Message: "invalid username or password"}

// HandleLogin verifies the credentials with SARH, provisions the local
// account and sets the session cookie.
//
// HTTP: POST /login (JSON body or form fields "username" and "password")
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(w, r)
	if err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid login request"))
		return
	}

	v, err := h.svc.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		h.rejectLogin(w, err)
		return
	}

	res, err := h.svc.Complete(r.Context(), req.Username, req.Password, v)
	if err != nil {
		h.rejectLogin(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{User: res.Account, Created: res.Created})
}

// rejectLogin answers 401 for every credential or provisioning failure and
// 500 for anything else. The cause only reaches the log.
func (h *AuthHandler) rejectLogin(w http.ResponseWriter, err error) {
	for _, s := range []error{
		apperror.ErrUnauthorized,
		apperror.ErrAuthFailed,
		apperror.ErrCreationBlocked,
		apperror.ErrForbidden,
	} {
		if errors.Is(err, s) {
			h.logger.Info("login rejected", slog.String("reason", err.Error()))
			writeJSON(w, http.StatusUnauthorized, loginFailed)
			return
		}
	}
	h.logger.Error("login failed", slog.String("error", err.Error()))
	writeError(w, err)
}

// HandleLogout clears the session cookie. The token itself stays valid
// until it expires.
//
// HTTP: POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the session owner.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	account, err := h.svc.Account(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleLinkedLogins lists the SARH usernames linked to the session owner.
//
// HTTP: GET /api/me/linked-logins (RequireAuth)
func (h *AuthHandler) HandleLinkedLogins(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	logins, err := h.svc.LinkedLogins(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if logins == nil {
		logins = []model.LinkedLogin{}
	}
	writeJSON(w, http.StatusOK, logins)
}

// HandleCapabilities reports what the host may do with these accounts.
//
// HTTP: GET /auth/capabilities
func (h *AuthHandler) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Capabilities())
}

func decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, nil
}
