package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses on the
// admin surface. Business outcomes on the bus (insufficient funds,
// unknown payout, already-claimed) are status fields in response
// payloads, not errors; AppError is reserved for infrastructure faults
// and invalid admin input.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Message bus (BUS) ----

func ErrBusConnect(err error) *AppError {
	return Wrap("BUS_001", "Message bus connection failed", http.StatusServiceUnavailable, err)
}

func ErrBusPublish(err error) *AppError {
	return Wrap("BUS_002", "Message bus publish failed", http.StatusServiceUnavailable, err)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ---- Admin input (ADM) ----

// Validation returns an invalid-admin-input error.
func Validation(message string) *AppError {
	return New("ADM_001", message, http.StatusBadRequest)
}

func ErrUnknownMode(mode string) *AppError {
	return New("ADM_002", fmt.Sprintf("Unknown mode %q", mode), http.StatusBadRequest)
}
