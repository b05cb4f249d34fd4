// Copyright 2025 ClearCheck
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Code    string                 `json:"code"`
	Status  int                    `json:"-"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so sentinel comparison works through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a copy carrying extra client-visible details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// WithMessage returns a copy with a more specific client-safe message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

// WithCause returns a copy wrapping an underlying error. The cause is kept
// for logs and errors.Is chains; it is never serialized to clients.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.cause = err
	return &clone
}

func define(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Authentication (AUTH_1xxx).
var (
	ErrInvalidCredentials = define("AUTH_1001", http.StatusUnauthorized, "Invalid username or password")
	ErrTokenExpired       = define("AUTH_1002", http.StatusUnauthorized, "Token has expired")
	ErrTokenInvalid       = define("AUTH_1003", http.StatusUnauthorized, "Token is invalid")
	ErrMFARequired        = define("AUTH_1004", http.StatusUnauthorized, "MFA code required")
	ErrMFAInvalid         = define("AUTH_1005", http.StatusUnauthorized, "Invalid MFA code")
	ErrAccountLocked      = define("AUTH_1006", http.StatusUnauthorized, "Account is temporarily locked")
	ErrAccountInactive    = define("AUTH_1007", http.StatusUnauthorized, "Account is inactive")
	ErrSessionExpired     = define("AUTH_1008", http.StatusUnauthorized, "Session has expired")
	ErrCSRFFailed         = define("AUTH_1009", http.StatusForbidden, "CSRF verification failed")
)

// Authorization (AUTHZ_2xxx).
var (
	ErrPermissionDenied    = define("AUTHZ_2001", http.StatusForbidden, "Permission denied")
	ErrInsufficientRole    = define("AUTHZ_2002", http.StatusForbidden, "Insufficient role")
	ErrEntitlementDenied   = define("AUTHZ_2003", http.StatusForbidden, "No entitlement covers this item")
	ErrDualControlRequired = define("AUTHZ_2004", http.StatusForbidden, "Dual control approval required")
	ErrSelfApprovalDenied  = define("AUTHZ_2005", http.StatusForbidden, "Reviewer cannot approve their own recommendation")
)

// Validation (VAL_3xxx).
var (
	ErrValidation     = define("VAL_3001", http.StatusBadRequest, "Validation error")
	ErrInvalidInput   = define("VAL_3002", http.StatusBadRequest, "Invalid input")
	ErrMissingField   = define("VAL_3003", http.StatusBadRequest, "Missing required field")
	ErrInvalidFormat  = define("VAL_3004", http.StatusBadRequest, "Invalid format")
	ErrOutOfRange     = define("VAL_3005", http.StatusBadRequest, "Value out of range")
	ErrDuplicateEntry = define("VAL_3006", http.StatusConflict, "Duplicate entry")
)

// Resource (RES_4xxx).
var (
	ErrNotFound      = define("RES_4001", http.StatusNotFound, "Resource not found")
	ErrAlreadyExists = define("RES_4002", http.StatusConflict, "Resource already exists")
	ErrLocked        = define("RES_4003", http.StatusConflict, "Resource is locked")
	ErrExpired       = define("RES_4004", http.StatusGone, "Resource has expired")
	ErrConflict      = define("RES_4005", http.StatusConflict, "Resource conflict")
)

// Business (BIZ_5xxx).
var (
	ErrInvalidStateTransition = define("BIZ_5001", http.StatusConflict, "Invalid state transition")
	ErrPolicyViolation        = define("BIZ_5002", http.StatusUnprocessableEntity, "Policy violation")
	ErrAIFlagsNotAcknowledged = define("BIZ_5003", http.StatusUnprocessableEntity, "AI advisory flags must be acknowledged")
	ErrWorkflow               = define("BIZ_5004", http.StatusUnprocessableEntity, "Workflow error")
	ErrLimitExceeded          = define("BIZ_5005", http.StatusUnprocessableEntity, "Limit exceeded")
)

// System (SYS_6xxx).
var (
	ErrInternal           = define("SYS_6001", http.StatusInternalServerError, "Internal server error")
	ErrDatabase           = define("SYS_6002", http.StatusInternalServerError, "Database error")
	ErrExternalService    = define("SYS_6003", http.StatusBadGateway, "External service error")
	ErrRateLimitExceeded  = define("SYS_6004", http.StatusTooManyRequests, "Rate limit exceeded")
	ErrServiceUnavailable = define("SYS_6005", http.StatusServiceUnavailable, "Service unavailable")
)

// CodeOf extracts the taxonomy code from an error chain.
// Unknown errors map to SYS_6001.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// StatusOf extracts the suggested HTTP status from an error chain.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// AsError converts any error to an *Error, wrapping unknowns as SYS_6001.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsRetryable reports whether the error is a transient database or external
// failure the caller may retry with backoff.
func IsRetryable(err error) bool {
	code := CodeOf(err)
	return code == ErrDatabase.Code || code == ErrExternalService.Code
}
