package httpx

import (
	"errors"
	"net/http"

	"github.com/rawdatain/backoffice/internal/shared"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, shared.ErrPosting):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, http.StatusText(status), detail)
}

// Fail writes a failed action envelope. Internal errors are reported without detail.
func Fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	result := ActionResult{Success: false, Error: err.Error()}
	if status == http.StatusInternalServerError {
		result.Error = http.StatusText(status)
	}
	var ve *shared.ValidationError
	if errors.As(err, &ve) {
		result.Fields = ve.Fields
	}
	JSON(w, status, result)
}
