package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ingeweb/contactws/internal/apperror"
)

// ErrorResponse is the body of every error response:
//
//	{"error": "not_found", "message": "task not found with id nope"}
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

var errorStatus = []struct {
	sentinel error
	status   int
	code     string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrAlreadyRunning, http.StatusConflict, "already_running"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrAuthFailed, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrCreationBlocked, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrRemote, http.StatusBadGateway, "remote_error"},
}

// writeError maps err onto a status code through the apperror sentinels.
// Errors outside that vocabulary become a 500 with a generic message so
// that storage details never leak.
func writeError(w http.ResponseWriter, err error) {
	for _, m := range errorStatus {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		msg := m.sentinel.Error()
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		writeJSON(w, m.status, ErrorResponse{Error: m.code, Message: msg})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
