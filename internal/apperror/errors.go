// Package apperror defines the error taxonomy shared by every layer. Errors are
// built once where a failure is first classified (the ledger boundary, the token
// manager, the access guard) and consumed everywhere else through errors.Is or
// CodeOf, never by matching message text.
package apperror

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error identifier exposed to clients.
type Code string

// Authentication codes.
const (
	CodeTokenInvalid        Code = "AUTH_INVALID"
	CodeTokenExpired        Code = "AUTH_EXPIRED"
	CodeTokenRevoked        Code = "AUTH_REVOKED"
	CodeInvalidRefreshToken Code = "AUTH_INVALID_REFRESH_TOKEN"
	CodeInvalidCredentials  Code = "AUTH_INVALID_CREDENTIALS"
)

// Access codes.
const (
	CodeForbidden  Code = "ACCESS_FORBIDDEN"
	CodeUnverified Code = "ACCESS_UNVERIFIED"
)

// Ledger codes.
const (
	CodeLedgerUnavailable    Code = "LEDGER_UNAVAILABLE"
	CodeExecutionReverted    Code = "LEDGER_EXECUTION_REVERTED"
	CodeInsufficientFunds    Code = "LEDGER_INSUFFICIENT_FUNDS"
	CodeLedgerOutcomeUnknown Code = "LEDGER_OUTCOME_UNKNOWN"
)

// Domain codes.
const (
	CodeBatchNotFound            Code = "BATCH_NOT_FOUND"
	CodeStakeholderNotFound      Code = "STAKEHOLDER_NOT_FOUND"
	CodeBatchAlreadyExists       Code = "BATCH_ALREADY_EXISTS"
	CodeStakeholderAlreadyExists Code = "STAKEHOLDER_ALREADY_EXISTS"
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeTransferNotAllowed       Code = "TRANSFER_NOT_ALLOWED"
	CodeBatchRecalled            Code = "BATCH_RECALLED"
	CodeDocumentNotFound         Code = "DOCUMENT_NOT_FOUND"
)

// Integrity codes.
const (
	CodeMalformedPayload     Code = "MALFORMED_PAYLOAD"
	CodeIntegrityCheckFailed Code = "INTEGRITY_CHECK_FAILED"
)

// Generic codes.
const (
	CodeValidation  Code = "VALIDATION_FAILED"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeInternal    Code = "INTERNAL"
)

var statusByCode = map[Code]int{
	CodeTokenInvalid:        http.StatusUnauthorized,
	CodeTokenExpired:        http.StatusUnauthorized,
	CodeTokenRevoked:        http.StatusUnauthorized,
	CodeInvalidRefreshToken: http.StatusUnauthorized,
	CodeInvalidCredentials:  http.StatusUnauthorized,

	CodeForbidden:  http.StatusForbidden,
	CodeUnverified: http.StatusForbidden,

	CodeLedgerUnavailable:    http.StatusServiceUnavailable,
	CodeExecutionReverted:    http.StatusUnprocessableEntity,
	CodeInsufficientFunds:    http.StatusServiceUnavailable,
	CodeLedgerOutcomeUnknown: http.StatusServiceUnavailable,

	CodeBatchNotFound:            http.StatusNotFound,
	CodeStakeholderNotFound:      http.StatusNotFound,
	CodeDocumentNotFound:         http.StatusNotFound,
	CodeBatchAlreadyExists:       http.StatusConflict,
	CodeStakeholderAlreadyExists: http.StatusConflict,
	CodeInvalidTransition:        http.StatusUnprocessableEntity,
	CodeTransferNotAllowed:       http.StatusForbidden,
	CodeBatchRecalled:            http.StatusConflict,

	CodeMalformedPayload:     http.StatusBadRequest,
	CodeIntegrityCheckFailed: http.StatusUnprocessableEntity,

	CodeValidation:  http.StatusBadRequest,
	CodeRateLimited: http.StatusTooManyRequests,
	CodeInternal:    http.StatusInternalServerError,
}

// Error is the single structured error type of the service.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error carrying the same code, which lets the
// package-level sentinels below match wrapped instances with different messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an error with the given code that keeps cause in its chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Sentinels for errors.Is checks.
var (
	ErrTokenInvalid        = New(CodeTokenInvalid, "invalid token")
	ErrTokenExpired        = New(CodeTokenExpired, "token has expired")
	ErrTokenRevoked        = New(CodeTokenRevoked, "token has been revoked")
	ErrInvalidRefreshToken = New(CodeInvalidRefreshToken, "invalid refresh token")
	ErrInvalidCredentials  = New(CodeInvalidCredentials, "invalid credentials")

	ErrForbidden  = New(CodeForbidden, "forbidden")
	ErrUnverified = New(CodeUnverified, "stakeholder is not verified")

	ErrLedgerUnavailable    = New(CodeLedgerUnavailable, "ledger unavailable")
	ErrExecutionReverted    = New(CodeExecutionReverted, "ledger execution reverted")
	ErrInsufficientFunds    = New(CodeInsufficientFunds, "insufficient funds for ledger fees")
	ErrLedgerOutcomeUnknown = New(CodeLedgerOutcomeUnknown, "ledger outcome unknown")

	ErrBatchNotFound            = New(CodeBatchNotFound, "batch not found")
	ErrStakeholderNotFound      = New(CodeStakeholderNotFound, "stakeholder not found")
	ErrBatchAlreadyExists       = New(CodeBatchAlreadyExists, "batch already exists")
	ErrStakeholderAlreadyExists = New(CodeStakeholderAlreadyExists, "stakeholder already exists")
	ErrInvalidTransition        = New(CodeInvalidTransition, "invalid status transition")
	ErrTransferNotAllowed       = New(CodeTransferNotAllowed, "transfer not allowed")
	ErrBatchRecalled            = New(CodeBatchRecalled, "batch has been recalled")
	ErrDocumentNotFound         = New(CodeDocumentNotFound, "document not found")

	ErrMalformedPayload     = New(CodeMalformedPayload, "malformed payload")
	ErrIntegrityCheckFailed = New(CodeIntegrityCheckFailed, "integrity check failed")

	ErrValidation = New(CodeValidation, "validation failed")
	ErrInternal   = New(CodeInternal, "internal error")
)

// CodeOf extracts the code from err, defaulting to CodeInternal for errors that
// never passed through a classification point.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the human message of a classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
