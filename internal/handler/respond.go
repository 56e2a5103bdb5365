package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/validation"
)

const maxBodyBytes = 1 << 20

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string      `json:"error"`
	Code    apperr.Code `json:"code"`
	Details any         `json:"details,omitempty"`
}

// writeError maps err to its HTTP status. Errors that are not domain
// errors are logged and reported as a bare 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code == apperr.CodeInternal {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: apperr.CodeInternal})
		return
	}
	writeJSON(w, appErr.HTTPStatus(), errorResponse{Error: appErr.Message, Code: appErr.Code, Details: appErr.Details})
}

// decodeJSON reads a JSON body of at most maxBodyBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validationf("request body is required")
		}
		return apperr.Validationf("invalid JSON: %v", err)
	}
	return nil
}

// decodeValid decodes the body into dst and validates it.
func decodeValid(w http.ResponseWriter, r *http.Request, v *validation.Validator, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	return v.Validate(dst)
}

func badID() error {
	return apperr.Validationf("invalid id")
}
