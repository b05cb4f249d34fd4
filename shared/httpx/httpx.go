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

// Package httpx holds the small HTTP helpers shared by every API handler:
// the wire error format, JSON writing, body limits, and tenant-context
// extraction.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// MaxRequestBodySize limits request bodies to 1MB to prevent memory
// exhaustion.
const MaxRequestBodySize = 1 << 20

// ErrorResponse is the wire format for every error the API returns.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError maps a taxonomy error to the wire format. Internal errors are
// flattened to a generic message; the detail stays in logs only.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	// Isolation violations read as not-found: the response never confirms
	// the resource exists in another tenant.
	var iso *tenant.IsolationError
	if errors.As(err, &iso) {
		err = errs.ErrNotFound
	}
	e := errs.AsError(err)

	message := e.Message
	if e.Status >= 500 {
		message = "Internal server error"
	}

	requestID := ""
	if tc, ok := tenant.FromContext(r.Context()); ok {
		requestID = tc.RequestID
	}

	WriteJSON(w, e.Status, ErrorResponse{
		Error:     http.StatusText(e.Status),
		Code:      e.Code,
		Message:   message,
		Details:   e.Details,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RequireTenant extracts the authenticated tenant context or writes a 401.
func RequireTenant(w http.ResponseWriter, r *http.Request) (tenant.Context, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok || tc.TenantID == "" {
		WriteError(w, r, errs.ErrTokenInvalid.WithMessage("Missing authentication context"))
		return tenant.Context{}, false
	}
	return tc, true
}

// DecodeBody decodes a JSON request body with the standard size limit.
func DecodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.ErrInvalidInput.WithMessage("Malformed JSON body").WithCause(err)
	}
	return nil
}
