package httpx

import (
	"fmt"
	"net/http"
)

// Business error codes
const (
	CodeSuccess = 0

	// Authentication/Authorization errors (1000-1099)
	CodeUnauthorized = 1001
	CodeInvalidToken = 1002
	CodeTokenExpired = 1003
	CodeForbidden    = 1004

	// Parameter errors (2000-2099)
	CodeParamMissing = 2001
	CodeParamInvalid = 2002 // malformed body or path parameter
	CodeParamIllegal = 2003 // well formed but rejected by validation

	// Resource/Business errors (3000-3999)
	CodeNotFound      = 3001
	CodeAlreadyExists = 3002
	CodeStateConflict = 3003

	// System and upstream errors (5000-5999)
	CodeInternalError    = 5001
	CodeDatabaseError    = 5002
	CodeExternalError    = 5003
	CodeTimeout          = 5004 // CA or DNS did not settle in time
	CodeCAError          = 5005 // Data is a CAProblem
	CodeDNSProviderError = 5006 // Data is a DNSProblem
)

// AppError carries the HTTP status and business code of a failed request.
// Err is logged, never returned to the client.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Err        error
	Data       interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

func newError(httpStatus, code int, message, fallback string, err error) *AppError {
	if message == "" {
		message = fallback
	}
	return NewAppError(httpStatus, code, message, err)
}

// ErrUnauthorized creates a 401 error for a missing or malformed token
func ErrUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message, "unauthorized", nil)
}

// ErrInvalidToken creates a 401 error for a token that fails verification
func ErrInvalidToken(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeInvalidToken, message, "invalid token", nil)
}

// ErrTokenExpired creates a 401 error for an expired token
func ErrTokenExpired(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeTokenExpired, message, "token expired", nil)
}

// ErrForbidden creates a 403 error
func ErrForbidden(message string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, message, "forbidden", nil)
}

// ErrParamMissing creates a 400 error for an absent parameter
func ErrParamMissing(message string) *AppError {
	return newError(http.StatusBadRequest, CodeParamMissing, message, "parameter missing", nil)
}

// ErrParamInvalid creates a 400 error for a malformed parameter
func ErrParamInvalid(message string) *AppError {
	return newError(http.StatusBadRequest, CodeParamInvalid, message, "parameter format error", nil)
}

// ErrParamIllegal creates a 400 error for a rejected parameter value
func ErrParamIllegal(message string) *AppError {
	return newError(http.StatusBadRequest, CodeParamIllegal, message, "parameter value illegal", nil)
}

// ErrNotFound creates a 404 error
func ErrNotFound(message string) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, message, "resource not found", nil)
}

// ErrStateConflict creates a 409 error for an operation the current state forbids
func ErrStateConflict(message string) *AppError {
	return newError(http.StatusConflict, CodeStateConflict, message, "current state does not allow operation", nil)
}

// ErrInternalError creates a 500 error
func ErrInternalError(message string, err error) *AppError {
	return newError(http.StatusInternalServerError, CodeInternalError, message, "internal error", err)
}

// ErrTimeout creates a 504 error
func ErrTimeout(message string, err error) *AppError {
	return newError(http.StatusGatewayTimeout, CodeTimeout, message, "operation timed out", err)
}

// CAProblem is the CA problem document returned with CodeCAError
type CAProblem struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// ErrCAError creates a 502 error carrying the CA problem document, if any
func ErrCAError(message string, problem *CAProblem, err error) *AppError {
	e := newError(http.StatusBadGateway, CodeCAError, message, "certificate authority error", err)
	if problem != nil {
		e.Data = problem
	}
	return e
}

// DNSProblem describes a failed DNS provider call
type DNSProblem struct {
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
	Code     string `json:"code,omitempty"`
}

// ErrDNSProviderError creates a 502 error carrying the provider failure
func ErrDNSProviderError(message string, problem *DNSProblem, err error) *AppError {
	e := newError(http.StatusBadGateway, CodeDNSProviderError, message, "dns provider error", err)
	if problem != nil {
		e.Data = problem
	}
	return e
}
