package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/rplanner/internal/apperr"
)

const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeTooLarge     = "too_large"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

func errorBody(msg, code string) errResponse {
	return errResponse{Error: msg, Code: code}
}

// writeError maps a service error to its status code. Unexpected failures
// are logged and reported without detail.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	code := apperr.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidOp, apperr.CodeOutOfRange, apperr.CodeInvalidRange:
		status = http.StatusUnprocessableEntity
	case apperr.CodeAlreadyExists:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, status, errorBody("internal error", code))
		return
	}
	writeJSON(w, status, errorBody(err.Error(), code))
}
