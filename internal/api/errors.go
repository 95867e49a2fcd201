package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// AppError is an error with the HTTP status it should be reported as. Its
// Message is shown to the caller verbatim.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrInvalidToken   = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrForbidden      = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrBadGateway     = &AppError{Code: http.StatusBadGateway, Message: "delivery failed"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

// NewValidationError reports a request that failed struct validation.
func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "validation failed: " + msg}
}

// HandleError writes err as a JSON error body. Anything that is not an
// AppError is logged and hidden behind a 500.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	slog.Error("unhandled request error", "error", err)
	JSONErrorMessage(w, ErrInternalServer.Code, ErrInternalServer.Message)
}
