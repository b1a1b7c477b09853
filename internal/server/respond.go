package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"inkshelf/internal/app"
	"inkshelf/internal/util"
)

// envelope is the fixed response shape for every endpoint.
type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string, errs []fieldError) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: errs})
}

// writeAppError maps the application error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := app.KindOf(err)
	message := app.MessageOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case app.KindValidation:
		status = http.StatusBadRequest
	case app.KindAuth:
		status = http.StatusUnauthorized
	case app.KindForbidden:
		status = http.StatusForbidden
	case app.KindNotFound:
		status = http.StatusNotFound
	case app.KindConflict:
		status = http.StatusConflict
	case app.KindUpstream:
		slog.Error("upstream failure", "requestId", util.RequestIDFromRequest(r), "error", err)
	default:
		slog.Error("internal error", "requestId", util.RequestIDFromRequest(r), "error", err)
	}
	writeFail(w, status, message, sortedFieldErrors(app.FieldsOf(err)))
}

func sortedFieldErrors(fields map[string]string) []fieldError {
	if len(fields) == 0 {
		return nil
	}
	out := make([]fieldError, 0, len(fields))
	for field, message := range fields {
		out = append(out, fieldError{Field: field, Message: message})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func methodNotAllowed(w http.ResponseWriter) {
	writeFail(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

func notFound(w http.ResponseWriter) {
	writeFail(w, http.StatusNotFound, "Not found", nil)
}
