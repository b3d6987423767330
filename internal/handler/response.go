package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/evaluator/internal/grading"
	appI18n "github.com/pavelanni/evaluator/internal/i18n"
	"github.com/pavelanni/evaluator/internal/store"
)

const maxBodyBytes = 10 << 20

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) sendSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, APIResponse{Success: true, Data: data, Message: h.msg(r, "Success")})
}

func sendError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIResponse{Success: false, Message: message})
}

// sendErr maps err to a status code. Details of internal errors are logged,
// not returned.
func (h *Handler) sendErr(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, grading.ErrInvalidInput):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, grading.ErrPrecondition):
		sendError(w, http.StatusConflict, h.msg(r, "NotEvaluated"))
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, h.msg(r, "SubmissionNotFound"))
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		sendError(w, http.StatusInternalServerError, h.msg(r, "InternalError"))
	}
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		sendError(w, http.StatusBadRequest, h.msg(r, "InvalidRequest")+": "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.sendErr(w, r, err)
		return false
	}
	return true
}

func (h *Handler) msg(r *http.Request, id string) string {
	if c := appI18n.FromContext(r.Context()); c != nil {
		return c.T(id)
	}
	return h.catalog.T(id)
}
