package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across the domain layer. Module packages wrap these
// so handlers can map any failure to a status code with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrExpired           = errors.New("expired")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
)

// RespondError maps domain errors to envelope responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrConflict):
		Error(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Error(w, http.StatusInternalServerError, "Internal Error", err.Error())
	}
}
